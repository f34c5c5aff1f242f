package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/studio233/batchd/config"
	"github.com/studio233/batchd/security/jwt"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		email string
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an API access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.Auth.JWT.Secret == "" {
				return errors.New("auth.jwt.secret is not configured")
			}
			if ttl <= 0 {
				ttl = cfg.Auth.JWT.Expire
			}
			tm := jwt.NewTokenManager(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer)
			token, err := tm.GenerateAccessToken(uuid.NewString(), jwt.TokenPayload{
				UserID: args[0],
				Email:  email,
				Roles:  roles,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "e-mail for completion notices")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "roles to embed")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.jwt.expire)")
	return cmd
}
