package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nimec77/deepseek-json/frontend/cli/pkg/terminal"
	"github.com/nimec77/deepseek-json/shared/keyring"
)

func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the DeepSeek API key stored in the system keyring",
		Long: `Manage the DeepSeek API key stored in the system keyring.

The key in DEEPSEEK_API_KEY (environment or .env file) always takes precedence.
The keyring is only consulted when that variable is unset.`,
		GroupID: "system",
	}

	cmd.AddCommand(NewAuthSetCmd())
	cmd.AddCommand(NewAuthDeleteCmd())

	return cmd
}

func NewAuthSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store the API key read from stdin",
		Example: `  # Enter the key interactively
  deepseek-json auth set

  # Pipe the key from a password manager
  pass show deepseek | deepseek-json auth set`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Enter your DeepSeek API key: ")
			if err != nil {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			if apiKey == "" {
				return errors.New("API key cannot be empty")
			}

			if err := getKeyring(cmd.Context()).Set(keyring.APIKeySecret, apiKey); err != nil {
				return fmt.Errorf("failed to store API key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s API key stored in the system keyring\n", terminal.SuccessSymbol)
			return nil
		},
	}

	return cmd
}

func NewAuthDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delete",
		Short:   "Remove the stored API key",
		Aliases: []string{"rm"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := getKeyring(cmd.Context()).Delete(keyring.APIKeySecret)
			if errors.Is(err, &keyring.ErrSecretNotFound{}) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s No API key stored\n", terminal.InfoSymbol)
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to delete API key: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s API key removed from the system keyring\n", terminal.SuccessSymbol)
			return nil
		},
	}

	return cmd
}

// readSecret reads one line from in. Terminal input is not echoed.
func readSecret(in io.Reader, prompt io.Writer, message string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, message)
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
