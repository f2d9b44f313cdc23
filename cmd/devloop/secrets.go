package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"devloop/pkg/config"
)

func newSecretsCmd(g *globalFlags) *cobra.Command {
	secrets := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted project secrets file",
	}
	secrets.AddCommand(&cobra.Command{
		Use:   "set NAME [VALUE]",
		Short: "Store a secret such as ANTHROPIC_API_KEY",
		Long: "Store a secret in .devloop/secrets.json.enc. Without VALUE the secret\n" +
			"is read from the terminal, or from the first line of stdin when piped.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := filepath.Abs(g.repo)
			if err != nil {
				return fmt.Errorf("failed to resolve repository path: %w", err)
			}
			name := args[0]
			value := ""
			if len(args) == 2 {
				value = args[1]
			} else if value, err = readSecretValue(cmd, name); err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("empty value for %s", name)
			}

			password, err := readPassword(cmd, !config.SecretsFileExists(dir))
			if err != nil {
				return err
			}
			if err := config.SetSecretInFile(dir, password, name, value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in %s\n", name, config.SecretsFilePath(dir))
			return nil
		},
	})
	return secrets
}

func readSecretValue(cmd *cobra.Command, name string) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // fd fits in int
	if term.IsTerminal(fd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Value for %s: ", name)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read value from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
