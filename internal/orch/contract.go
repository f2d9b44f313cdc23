package orch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"devloop/pkg/config"
)

// ErrContractViolation is returned when the repository lacks a file the
// orchestrator needs.
var ErrContractViolation = errors.New("project does not satisfy the orchestrator contract")

// CheckContract verifies repoDir is a git repository holding the project
// facts and the task files named by cfg.
func CheckContract(repoDir string, cfg *config.Config) error {
	info, err := os.Stat(repoDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: repository %s does not exist", ErrContractViolation, repoDir)
	}

	var missing []string
	// .git is a directory in a clone and a file in a worktree.
	if _, err := os.Stat(filepath.Join(repoDir, ".git")); err != nil {
		missing = append(missing, ".git")
	}
	for _, rel := range []string{cfg.Paths.Facts, cfg.Paths.Backlog, cfg.Paths.Done, cfg.Paths.Problems} {
		if _, err := os.Stat(filepath.Join(repoDir, rel)); err != nil {
			missing = append(missing, rel)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrContractViolation, strings.Join(missing, ", "))
	}
	return nil
}
