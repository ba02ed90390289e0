// Command validate-license calls the Licentra validation API directly with
// the application credentials taken from the environment.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/licentra/licentra-go/internal/cli"
	"github.com/licentra/licentra-go/internal/config"
	"github.com/licentra/licentra-go/internal/observability"
	"github.com/licentra/licentra-go/licentra"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		if !cli.Reported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-license",
		Short: "Validate a license key against the Licentra API",
		Long: `Validate a license key by calling /api/licenses/validate directly.

Credentials come from LICENTRA_APP_ID and LICENTRA_APP_SECRET. The license key
comes from --license-key, LICENTRA_LICENSE_KEY, or an interactive prompt.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().String("license-key", "", "License key to validate (default $LICENTRA_LICENSE_KEY)")
	cmd.Flags().String("base-url", "", "Licentra base URL (default $LICENTRA_BASE_URL or "+config.DefaultBaseURL+")")
	cmd.Flags().Bool("bind-machine", false, "Send this machine's fingerprint as hwid (or $LICENTRA_HWID when set)")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.InitLogger(cfg.Log.Format, cfg.Log.Level)

	if v, _ := cmd.Flags().GetString("base-url"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	licenseKey := cfg.LicenseKey
	if v, _ := cmd.Flags().GetString("license-key"); v != "" {
		licenseKey = v
	}

	out := cmd.OutOrStdout()
	creds := cfg.ClientCredentials()

	var opts []licentra.ClientOption
	bind, _ := cmd.Flags().GetBool("bind-machine")
	if bind || cfg.HWID != "" {
		hwid, err := licentra.GenerateFingerprint()
		if err != nil {
			return fmt.Errorf("generate fingerprint: %w", err)
		}
		opts = append(opts, licentra.WithHWID(hwid))
	}
	client := licentra.NewClient(cfg.Upstream.BaseURL, creds, opts...)

	runner := &cli.Runner{
		Title: "Basic license validation client",
		Settings: []cli.Setting{
			{Name: "Base URL", Value: cfg.Upstream.BaseURL},
			{Name: "App ID", Value: creds.AppID},
		},
		Heading:   "Response:",
		Validator: client,
		In:        cmd.InOrStdin(),
		Out:       out,
		Logger:    logger,
	}
	runner.Banner()

	if err := creds.Validate(); err != nil {
		return cli.Fail(out, "Configure LICENTRA_APP_ID and LICENTRA_APP_SECRET first.", err)
	}
	return runner.Run(cmd.Context(), licenseKey)
}
