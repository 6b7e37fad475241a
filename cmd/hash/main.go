// Package main prints a bcrypt hash of an admin token for auth.admin_token_hash.
// The token is read from the first argument or, when absent, from stdin. With
// --generate a random token is created and printed alongside its hash.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/model-registry/model-registry/internal/auth"
)

func newRootCmd() *cobra.Command {
	var generate bool
	cmd := &cobra.Command{
		Use:           "hash [TOKEN]",
		Short:         "Print the bcrypt hash of an admin token",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var token string
			switch {
			case generate:
				key, _, _, err := auth.GenerateAPIKey("adm-")
				if err != nil {
					return err
				}
				token = key
				fmt.Fprintf(out, "token: %s\n", token)
			case len(args) > 0:
				token = args[0]
			default:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && err != io.EOF {
					return fmt.Errorf("failed to read token: %w", err)
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return errors.New("empty token")
			}

			hash, err := auth.HashAdminToken(token)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "admin_token_hash: %s\n", hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a random admin token")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
