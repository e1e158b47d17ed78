package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/checkpoint/internal/config"
	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/ledger"
	"github.com/kozaktomas/checkpoint/internal/logger"
	"github.com/kozaktomas/checkpoint/internal/matching"
	"github.com/kozaktomas/checkpoint/internal/metrics"
	"github.com/kozaktomas/checkpoint/internal/oracle"
	"github.com/kozaktomas/checkpoint/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the checkpoint API server",
	Long: `Start the checkpoint HTTP API.
Staff log in for one section and submit probe images; the server scans the
section gallery through the comparison service and records confirmed visits.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT or 8080)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST or 0.0.0.0)")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (default WEB_SESSION_SECRET)")
	serveCmd.Flags().Float64("threshold", 0, "Match confidence threshold, 0-100 (default FACEPP_THRESHOLD or 70)")
	serveCmd.Flags().Bool("allow-missing-oracle", false, "Start without FACEPP_KEY/FACEPP_SECRET; scans answer 503 (development only)")
}

// applyServeFlags lets flags override the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
	if mustGetBool(cmd, "allow-missing-oracle") {
		cfg.Oracle.AllowMissing = true
	}
	if threshold := mustGetFloat64(cmd, "threshold"); threshold != 0 {
		cfg.Matching.Threshold = threshold
	}
	if cfg.Matching.Threshold < 0 || cfg.Matching.Threshold > 100 {
		return fmt.Errorf("threshold %.1f is outside 0-100", cfg.Matching.Threshold)
	}
	return nil
}

// buildServer wires storage, the comparison service and the matching engine into the HTTP server.
func buildServer(ctx context.Context, cfg *config.Config, log *logger.Logger, b *backends) (*web.Server, error) {
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	comparator, err := oracle.New(cfg.Oracle, m)
	switch {
	case errors.Is(err, oracle.ErrNotConfigured) && cfg.Oracle.AllowMissing:
		// A nil client answers every comparison with ErrNotConfigured, so scans fail with 503.
		log.Warn("FACEPP_KEY or FACEPP_SECRET missing, scans will be rejected")
	case errors.Is(err, oracle.ErrNotConfigured):
		return nil, fmt.Errorf("%w: FACEPP_KEY and FACEPP_SECRET are required", err)
	case err != nil:
		return nil, fmt.Errorf("configuring comparison service: %w", err)
	}

	gallery, err := database.GetGalleryReader(ctx)
	if err != nil {
		return nil, err
	}
	visits, err := database.GetVisitWriter(ctx)
	if err != nil {
		return nil, err
	}
	staff, err := database.GetStaffReader(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := b.sessionRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	l := ledger.New(visits, log.With("component", "ledger"), m)
	engine := matching.NewEngine(gallery, comparator, l, cfg.Matching, log.With("component", "matching"), m)

	return web.NewServer(cfg, web.Dependencies{
		Catalog:  catalog,
		Engine:   engine,
		Ledger:   l,
		Gallery:  gallery,
		Staff:    staff,
		Sessions: sessions,
		Gatherer: reg,
		Logger:   log,
	}), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := openBackends(cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	server, err := buildServer(ctx, cfg, log, b)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("error during shutdown", "error", err)
		}
	}()

	log.Info("checkpoint API listening",
		"host", cfg.Web.Host, "port", cfg.Web.Port,
		"threshold", cfg.Matching.Threshold, "call_delay", cfg.Matching.CallDelay)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
