package cmd

import (
	"fmt"
	"time"

	"github.com/frahmantamala/care-access/internal/auth"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token [user-id]",
	Short: "Issue a bearer token for a user",
	Long:  `Issue a signed access token for local development and operations tooling.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", args[0], err)
		}
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}

		ttl := cfg.Security.AccessTokenDuration
		if tokenTTL > 0 {
			ttl = tokenTTL
		}
		tokens := auth.NewJWTTokenGenerator(cfg.Security.JWTSecret, ttl)
		if cfg.Security.Issuer != "" {
			tokens.Issuer = cfg.Security.Issuer
		}
		signed, expiresAt, err := tokens.GenerateAccessToken(user)
		if err != nil {
			return err
		}
		fmt.Println(signed)
		fmt.Printf("# expires %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}

var tokenTTL time.Duration

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (overrides config)")
}
