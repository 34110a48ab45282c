package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"conduit/internal/engine/gohighlevel"
	"conduit/internal/engine/providers"
	"conduit/internal/platform/models"
)

// catalog lists the providers this build ships a connector for.
var catalog = map[string]func() models.Provider{
	gohighlevel.Slug: gohighlevel.Provider,
}

// ProviderSettingsOptions maps flags to platform settings keys. Empty values
// leave the stored key untouched.
type ProviderSettingsOptions struct {
	Enable        bool
	Disable       bool
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	Scopes        string
	WebhookSecret string
}

func (o *ProviderSettingsOptions) changed() bool {
	return o.Enable || o.Disable || o.ClientID != "" || o.ClientSecret != "" ||
		o.RedirectURI != "" || o.Scopes != "" || o.WebhookSecret != ""
}

func (o *ProviderSettingsOptions) apply(s *models.PlatformProviderSettings) {
	if s.Settings == nil {
		s.Settings = models.JSONMap{}
	}
	for key, val := range map[string]string{
		"oauthClientId":     o.ClientID,
		"oauthClientSecret": o.ClientSecret,
		"oauthRedirectUri":  o.RedirectURI,
		"oauthScopes":       o.Scopes,
		"webhookSecret":     o.WebhookSecret,
	} {
		if val != "" {
			s.Settings[key] = val
		}
	}
	if o.Enable {
		s.Enabled = true
	}
	if o.Disable {
		s.Enabled = false
	}
}

func NewProviderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage the provider catalog and platform settings",
	}

	opts := &ProviderSettingsOptions{}
	install := &cobra.Command{
		Use:   "install <slug>",
		Short: "Install a provider and optionally configure it",
		Long: `Install adds the provider to the catalog. Running it again refreshes the
catalog entry and applies any settings flags on top of the stored settings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, rootOpts, opts, args[0])
		},
	}
	install.Flags().BoolVar(&opts.Enable, "enable", false, "enable the provider for tenants")
	install.Flags().BoolVar(&opts.Disable, "disable", false, "disable the provider for tenants")
	install.Flags().StringVar(&opts.ClientID, "client-id", "", "OAuth client id")
	install.Flags().StringVar(&opts.ClientSecret, "client-secret", "", "OAuth client secret")
	install.Flags().StringVar(&opts.RedirectURI, "redirect-uri", "", "OAuth redirect URI override")
	install.Flags().StringVar(&opts.Scopes, "scopes", "", "space or comma separated OAuth scopes")
	install.Flags().StringVar(&opts.WebhookSecret, "webhook-secret", "", "shared secret for inbound webhook signatures")
	install.MarkFlagsMutuallyExclusive("enable", "disable")
	cmd.AddCommand(install)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed providers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, rootOpts)
		},
	})

	return cmd
}

func knownSlugs() []string {
	slugs := make([]string, 0, len(catalog))
	for s := range catalog {
		slugs = append(slugs, s)
	}
	sort.Strings(slugs)
	return slugs
}

func runInstall(cmd *cobra.Command, rootOpts *RootOptions, opts *ProviderSettingsOptions, slug string) error {
	entry, ok := catalog[slug]
	if !ok {
		return fmt.Errorf("unknown provider %q: available %s", slug, strings.Join(knownSlugs(), ", "))
	}

	_, db, err := rootOpts.load()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	registry := providers.NewRegistry(db)

	provider, err := registry.Install(ctx, entry())
	if err != nil {
		return err
	}

	settings, err := registry.GetPlatformSettings(ctx, provider.ID)
	if err != nil {
		return err
	}
	if settings == nil {
		settings = &models.PlatformProviderSettings{ProviderID: provider.ID, Settings: models.JSONMap{}}
	}
	if opts.changed() {
		opts.apply(settings)
		if err := registry.SetPlatformSettings(ctx, *settings); err != nil {
			return err
		}
	}

	state := "disabled"
	if settings.Enabled {
		state = "enabled"
	}
	return rootOpts.print(cmd.OutOrStdout(),
		map[string]any{"provider": provider, "enabled": settings.Enabled},
		fmt.Sprintf("installed %s (%s), %s", provider.Slug, provider.ID, state))
}

func runList(cmd *cobra.Command, rootOpts *RootOptions) error {
	_, db, err := rootOpts.load()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	registry := providers.NewRegistry(db)

	list, err := registry.List(ctx)
	if err != nil {
		return err
	}

	type row struct {
		models.Provider
		Enabled bool `json:"enabled"`
	}
	rows := make([]row, 0, len(list))
	var b strings.Builder
	for _, p := range list {
		enabled, err := registry.IsEnabled(ctx, p.ID)
		if err != nil {
			return err
		}
		rows = append(rows, row{Provider: p, Enabled: enabled})
		fmt.Fprintf(&b, "%-16s %-10s %-8s enabled=%t\n", p.Slug, p.Category, p.AuthType, enabled)
	}
	return rootOpts.print(cmd.OutOrStdout(), rows, strings.TrimRight(b.String(), "\n"))
}
