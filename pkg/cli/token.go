package cli

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/TechXTT/pgraph/internal/auth"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
		extra  map[string]string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token with JWT_SECRET for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			claims := jwt.MapClaims{}
			for k, v := range extra {
				claims[k] = v
			}
			if userID != "" {
				claims[a.cfg.UserIDClaim] = userID
			}
			token, err := auth.NewVerifier(a.cfg.JWTSecret, a.cfg.JWTAudience, a.log).Sign(claims, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "value for the caller id claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime; 0 disables expiry")
	cmd.Flags().StringToStringVar(&extra, "claim", nil, "extra claims as key=value")
	return cmd
}
