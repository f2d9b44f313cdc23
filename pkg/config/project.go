package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Check is one project verification command, e.g. {name: test, cmd: [go, test, ./...]}.
type Check struct {
	Name string   `yaml:"name" validate:"required"`
	Cmd  []string `yaml:"cmd" validate:"min=1,dive,required"`
}

// ProjectFile is the repository's docs/orchestrator.yaml.
type ProjectFile struct {
	Checks []Check `yaml:"checks" validate:"dive"`
}

// LoadProjectFile parses the project file at path. A missing file means no checks.
func LoadProjectFile(path string) (*ProjectFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &ProjectFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read project file: %w", err)
	}

	var pf ProjectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("failed to parse project file %s: %w", path, err)
	}
	if err := validate.Struct(&pf); err != nil {
		return nil, fmt.Errorf("invalid project file %s: %w", path, err)
	}
	return &pf, nil
}
