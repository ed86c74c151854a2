package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flavien-hugs/apikey-hub/internal/config"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter apikeyhub.yaml",
		Long: `Write a starter configuration file in the current directory. The server
secret is prompted for without echo; leave it empty to generate a random one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing apikeyhub.yaml")

	return cmd
}

func runInit(cmd *cobra.Command, force bool) error {
	const path = "apikeyhub.yaml"

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	secret, err := promptSecret(cmd)
	if err != nil {
		return err
	}
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			return fmt.Errorf("generate server secret: %w", err)
		}
		secret = hex.EncodeToString(buf)
		fmt.Fprintln(cmd.OutOrStdout(), "Generated a random server secret.")
	}

	if err := config.WriteFile(path, config.StarterFile(secret)); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Review it, then start the server with: apikeyhub serve")
	return nil
}

// promptSecret reads the server secret without echoing it. When stdin is not
// a terminal (scripts, CI) the prompt is skipped and a secret is generated.
func promptSecret(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	fmt.Fprint(cmd.OutOrStdout(), "Server secret (empty to generate): ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	return string(raw), nil
}
