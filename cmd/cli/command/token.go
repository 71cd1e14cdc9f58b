package command

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gamebridge/internal/control"
)

const tokenSubject = "gamebridgectl"

func mintToken(secret string) (string, error) {
	return control.NewTokenValidator(secret).IssueToken(tokenSubject, 5*time.Minute)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token signed with the shared secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if secret == "" {
			return fmt.Errorf("--secret (or CONTROL_JWT_SECRET) is required")
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		tok, err := control.NewTokenValidator(secret).IssueToken(tokenSubject, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}
