package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"timed-quiz/internal/config"
	"timed-quiz/internal/domain"
	transport "timed-quiz/internal/transport/http"
)

// NewTokenCmd mints a bearer token signed with the server's secret, for local use.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		userID string
		name   string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(*configPath)
			if err != nil {
				return err
			}
			secret := jwtSecret(cfg)
			if secret == "" {
				return errors.New("no jwt secret: set auth.jwt_secret or QUIZ_JWT_SECRET")
			}
			token, err := transport.NewAuthenticator(secret).IssueTokenFor(domain.User{ID: userID, Name: name, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (token subject)")
	cmd.Flags().StringVar(&name, "name", "", "display name shown on results")
	cmd.Flags().StringVar(&role, "role", domain.RoleStudent, "student or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
