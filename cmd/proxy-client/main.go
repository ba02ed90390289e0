// Command proxy-client validates a license key through license-proxy, so no
// application credentials are needed on this side.
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
		Use:           "proxy-client",
		Short:         "Validate a license key through the credential-hiding proxy",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().String("license-key", "", "License key to validate (default $LICENTRA_LICENSE_KEY)")
	cmd.Flags().String("proxy-url", "", "Proxy endpoint (default $PROXY_URL or "+config.DefaultProxyURL+")")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.InitLogger(cfg.Log.Format, cfg.Log.Level)

	if v, _ := cmd.Flags().GetString("proxy-url"); v != "" {
		cfg.Proxy.URL = v
	}
	licenseKey := cfg.LicenseKey
	if v, _ := cmd.Flags().GetString("license-key"); v != "" {
		licenseKey = v
	}

	runner := &cli.Runner{
		Title:     "Proxy client",
		Settings:  []cli.Setting{{Name: "Proxy URL", Value: cfg.Proxy.URL}},
		Heading:   "Proxy response:",
		Validator: licentra.NewProxyClient(cfg.Proxy.URL),
		In:        cmd.InOrStdin(),
		Out:       cmd.OutOrStdout(),
		Logger:    logger,
	}
	runner.Banner()
	return runner.Run(cmd.Context(), licenseKey)
}
