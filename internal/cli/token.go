package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"conduit/internal/platform/auth"
	"conduit/internal/platform/config"
)

// TokenOptions are the claims of an operator-issued access token.
type TokenOptions struct {
	UserID   string
	TenantID string
	Role     string
}

// NewTokenCommand issues an access token signed with the configured JWT
// secret, for smoke tests and scripted calls against the API.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.UserID == "" || opts.TenantID == "" {
				return errors.New("--user and --tenant are required")
			}

			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}

			token, err := auth.NewTokenService(cfg.JWT).GenerateAccessToken(opts.UserID, opts.TenantID, opts.Role)
			if err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), map[string]string{"access_token": token}, token)
		},
	}
	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id (uid claim)")
	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "tenant id (tid claim)")
	cmd.Flags().StringVar(&opts.Role, "role", "admin", "role claim")

	return cmd
}
