package main

import (
	"fmt"
	"time"

	"jobpilot/internal/pkg/jwt"

	"github.com/spf13/cobra"
)

func tokenCMD() *cobra.Command {
	var client string
	var secret string
	var expiry time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for the browser extension",
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := jwt.NewHMACService(secret, expiry).Issue(client)
			if err != nil {
				return fmt.Errorf("issue token (is AUTH_JWT_SECRET set?): %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&client, "client", "", "client id recorded in the token (random when empty)")
	cmd.Flags().StringVar(&secret, "secret", getenv("AUTH_JWT_SECRET", ""), "signing secret")
	cmd.Flags().DurationVar(&expiry, "expiry", 30*24*time.Hour, "token lifetime, 0 for none")
	return cmd
}
