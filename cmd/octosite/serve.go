package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coffyg/octosite"
	"github.com/coffyg/octosite/config"
	"github.com/coffyg/octosite/formproxy"
	"github.com/coffyg/octosite/kvasset"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the server",
	Long: `Start serving the site.

Examples:
  # Serve a built directory from memory
  OCTOSITE_STORE_DIR=./dist octosite serve

  # Serve from a sqlite store filled with "octosite import"
  octosite --config /etc/octosite/octosite.yaml serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log)
	octosite.SetupLogger(&log)
	if used := loader.ConfigFileUsed(); used != "" {
		log.Info().Str("file", used).Msg("configuration loaded")
	}
	if cfg.Debug {
		log.Warn().Msg("debug mode: edge cache bypassed, error details exposed")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Store.Dir != "" {
		n, err := kvasset.ImportDir(ctx, store, cfg.Store.Dir)
		if err != nil {
			return err
		}
		log.Info().Int("files", n).Str("dir", cfg.Store.Dir).Msg("site loaded into asset store")
	}

	shutdownTracing, err := setupTracing(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := octosite.NewMetrics(reg)

	site, err := buildSite(cfg, store, metrics, &log)
	if err != nil {
		return err
	}

	public := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           site,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}
	servers := []*http.Server{public}
	if cfg.Metrics.Addr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           adminHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			useTLS := srv == public && cfg.Server.TLSEnabled()
			log.Info().Str("addr", srv.Addr).Bool("tls", useTLS).Msg("listening")
			var err error
			if useTLS {
				err = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(srv)
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err = <-errCh:
		log.Error().Err(err).Msg("listener failed")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range servers {
		if serr := srv.Shutdown(sctx); serr != nil {
			log.Warn().Err(serr).Str("addr", srv.Addr).Msg("shutdown")
		}
	}
	return err
}

func buildSite(cfg *config.Config, store kvasset.Store, metrics *octosite.Metrics, log *zerolog.Logger) (*octosite.Router[octosite.SiteState], error) {
	policy, err := octosite.ParseFallbackPolicy(cfg.Server.FallbackPolicy)
	if err != nil {
		return nil, err
	}

	assets := kvasset.NewHandler(store, kvasset.HandlerConfig{
		CacheMaxSize:  cfg.Store.CacheMaxSize,
		CacheMaxFiles: cfg.Store.CacheMaxFiles,
		CacheTTL:      cfg.Store.CacheTTL,
	})
	form := formproxy.New(formproxy.Config{
		BaseURL:       cfg.FormProxy.BaseURL,
		APIToken:      cfg.FormProxy.APIToken,
		AllowedOrigin: cfg.FormProxy.AllowedOrigin,
		Prefix:        octosite.FormPrefix,
		Timeout:       cfg.FormProxy.Timeout,
	}, formproxy.WithLogger(log))
	if !form.Configured() {
		log.Warn().Msg("formproxy.base_url or api_token missing: /ac/ requests will answer 503")
	}

	headers := octosite.DefaultSecurityHeaders()
	log.Debug().Strs("headers", headers.Names()).Msg("asset security headers")

	return octosite.NewSite(octosite.SiteConfig{
		Debug: cfg.Debug,
		Guard: octosite.GuardConfig{
			TrustForwardedProto: cfg.Server.TrustForwardedProto,
			PreserveQuery:       cfg.Server.PreserveQuery,
		},
		Headers:        headers,
		FallbackPath:   cfg.Server.FallbackPath,
		FallbackPolicy: policy,
		AssetPrefix:    cfg.Server.AssetPrefix,
		Metrics:        metrics,
	}, assets, form), nil
}

func adminHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	return mux
}
