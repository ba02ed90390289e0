// Command license-proxy keeps the Licentra application credentials server
// side: clients POST {"licenseKey": "..."} to /validate-license and the proxy
// forwards it with the credentials attached.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/licentra/licentra-go/internal/config"
	"github.com/licentra/licentra-go/internal/observability"
	"github.com/licentra/licentra-go/internal/proxy"
	"github.com/licentra/licentra-go/licentra"
)

const shutdownTimeout = 15 * time.Second

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		observability.Fatal("license-proxy failed", "error", err)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license-proxy",
		Short: "Serve /validate-license with server-held Licentra credentials",
		Long: `Serve POST /validate-license, forwarding each license key to the Licentra
API with LICENTRA_APP_ID and LICENTRA_APP_SECRET, which must both be set.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.Flags().IntP("port", "p", 0, "Port to listen on (default $PORT or "+strconv.Itoa(config.DefaultPort)+")")
	cmd.Flags().String("metrics-addr", "", "Separate listen address for /metrics (default $METRICS_ADDR, disabled when empty)")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.InitLogger(cfg.Log.Format, cfg.Log.Level)

	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Proxy.Port = v
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.Proxy.MetricsAddr = v
	}

	creds := cfg.Credentials()
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("LICENTRA_APP_ID and LICENTRA_APP_SECRET must be set: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	upstream := licentra.NewClient(cfg.Upstream.BaseURL, creds, licentra.WithUserAgent("licentra-proxy/1.0"))
	server := proxy.NewServer(upstream, creds,
		proxy.WithLogger(logger),
		proxy.WithMetrics(proxy.NewMetrics(reg)),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	servers := []*http.Server{{
		Addr:    cfg.ListenAddr(),
		Handler: server.Routes(),
	}}
	if cfg.Proxy.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		servers = append(servers, &http.Server{
			Addr:              cfg.Proxy.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	logger.Info("proxy listening",
		"addr", cfg.ListenAddr(),
		"url", fmt.Sprintf("http://localhost:%d%s", cfg.Proxy.Port, proxy.ValidatePath),
		"upstream", upstream.Endpoint(),
		"metrics_addr", cfg.Proxy.MetricsAddr,
	)
	return serve(ctx, logger, servers)
}

// serve runs every server until ctx is done or one of them fails, then shuts
// all of them down.
func serve(ctx context.Context, logger *slog.Logger, servers []*http.Server) error {
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown", "addr", srv.Addr, "error", err)
		}
	}
	if runErr == nil {
		logger.Info("server stopped")
	}
	return runErr
}
