package cli

import (
	"github.com/spf13/cobra"

	"conduit/internal/engine/vault"
)

// NewKeygenCommand prints 32 random bytes, base64 encoded. The output is a
// valid VAULT_KEY and serves equally as STATE_SECRET or JWT_SECRET. It needs
// no config.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a vault key or signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := vault.GenerateKey()
			if err != nil {
				return err
			}
			return rootOpts.print(cmd.OutOrStdout(), map[string]string{"key": key}, key)
		},
	}
}
