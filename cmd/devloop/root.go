package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"devloop/pkg/config"
)

// PasswordEnv supplies the secrets password without a prompt.
const PasswordEnv = "DEVLOOP_PASSWORD"

type globalFlags struct {
	repo       string
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:          "devloop",
		Short:        "Drive backlog tasks through a developer and reviewer model",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.repo, "repo", ".", "target repository")
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default <repo>/.devloop/config.json)")

	root.AddCommand(newRunCmd(g), newNextCmd(g), newSecretsCmd(g), newVersionCmd())
	return root
}

// loadConfig resolves the repository and reads its configuration.
func (g *globalFlags) loadConfig() (string, *config.Config, error) {
	dir, err := filepath.Abs(g.repo)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}
	if g.configPath != "" {
		cfg, err := config.LoadFile(g.configPath)
		return dir, cfg, err
	}
	cfg, err := config.Load(dir)
	return dir, cfg, err
}

// unlockSecrets decrypts the project secrets file, if there is one, so API
// keys resolve from it before the environment.
func unlockSecrets(cmd *cobra.Command, dir string) error {
	if !config.SecretsFileExists(dir) {
		return nil
	}
	password, err := readPassword(cmd, false)
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(dir, password)
	if err != nil {
		return err
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// readPassword takes the password from the environment, else prompts on the
// terminal. confirm asks twice, for creating a new secrets file.
func readPassword(cmd *cobra.Command, confirm bool) (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("secrets file is encrypted: set %s", PasswordEnv)
	}

	out := cmd.ErrOrStderr()
	fmt.Fprint(out, "Secrets password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if !confirm {
		return string(first), nil
	}

	fmt.Fprint(out, "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
