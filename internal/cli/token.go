package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"realtime-whiteboard/internal/auth"
)

type tokenOptions struct {
	UserID string
	Name   string
	Email  string
	TTL    time.Duration
	Secret string
}

// newTokenCommand mints an access token signed with the relay's secret, for
// local development.
func newTokenCommand() *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		Long: `Mint an access token the relay accepts. The signing secret comes from
--secret or JWT_SECRET (a .env file in the working directory is read too).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := opts.Secret
			if secret == "" {
				_ = godotenv.Load()
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return errors.New("no signing secret: set --secret or JWT_SECRET")
			}

			token, err := auth.NewJWTManager(secret, opts.TTL).GenerateAccessToken(opts.UserID, opts.Email, opts.Name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing secret (default $JWT_SECRET)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
