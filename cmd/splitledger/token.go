package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/splitledger/api"
	"github.com/warp/splitledger/ledger"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <party>",
		Short: "Issue a bearer token for a party",
		Long: `Sign an HS256 token carrying the party as its user_id claim, using
auth.jwt_secret. Meant for local testing of an authenticated server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")
			token, err := api.NewAuthenticator(cfg.Auth.JWTSecret).IssueToken(ledger.PartyID(args[0]), ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	return cmd
}
