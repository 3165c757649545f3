package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinic-appointments/internal/adapters/auth/odin"
	"clinic-appointments/internal/adapters/capabilities/plansfeatures"
	"clinic-appointments/internal/adapters/session/static"
	"clinic-appointments/internal/platform/config"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/ports/auth"
	"clinic-appointments/internal/ports/capabilities"
	"clinic-appointments/internal/ports/session"
	"clinic-appointments/internal/reconcile"
	"clinic-appointments/internal/router"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Levanta la API HTTP y el reconciler",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(cfg.LoggerOptions())

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	verifier, err := buildVerifier(cfg)
	if err != nil {
		return err
	}
	if verifier == nil {
		log.Warn("odin not configured, auth runs in dev mode", nil)
	}

	manager := reconcile.NewManager(reconcile.ManagerOptions{
		Feed:         store,
		Resolver:     buildSessionResolver(cfg, verifier, log),
		Capabilities: buildCapabilities(cfg, log),
		Sweeper: reconcile.SweeperConfig{
			Interval: cfg.Reconcile.SweepInterval,
			Grace:    cfg.Reconcile.OverdueGrace,
			Location: loc,
		},
		ResolveInterval: cfg.Reconcile.ResolveInterval,
		Logger:          log,
	})

	r := router.NewRouter(router.Options{
		AuthVerifier: verifier,
		Store:        store,
		Manager:      manager,
		Location:     loc,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: 5 * time.Second,
		// sin WriteTimeout: /appointments/live es una conexión larga
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return manager.Run(gctx)
	})

	g.Go(func() error {
		log.Info("starting server", map[string]any{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down", nil)
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildVerifier(cfg config.Config) (auth.AuthVerifier, error) {
	client, err := odin.NewClient(odin.Config{
		BaseURL: cfg.Odin.BaseURL,
		APIKey:  cfg.Odin.APIKey,
		Timeout: cfg.Odin.Timeout,
	})
	if err != nil {
		return nil, err
	}
	if !client.IsConfigured() {
		return nil, nil
	}
	return odin.NewVerifier(client), nil
}

// buildSessionResolver: CLINIC_ID fijo gana; si no, token de servicio contra Odin.
func buildSessionResolver(cfg config.Config, verifier auth.AuthVerifier, log logger.Logger) session.Resolver {
	if cfg.Reconcile.ClinicID != "" {
		log.Info("reconcile session pinned to clinic", map[string]any{"clinic_id": cfg.Reconcile.ClinicID})
		return static.NewResolver(cfg.Reconcile.ClinicID)
	}
	if verifier == nil || cfg.Odin.ServiceToken == "" {
		log.Warn("no CLINIC_ID and no odin service token, reconciler stays idle", nil)
	}
	return odin.NewSessionResolver(verifier, cfg.Odin.ServiceToken)
}

func buildCapabilities(cfg config.Config, log logger.Logger) capabilities.CapabilitiesResolver {
	if cfg.AllowAllCapabilities {
		return plansfeatures.NewResolver(nil, true)
	}
	client, err := plansfeatures.NewClient(plansfeatures.Config{
		BaseURL: cfg.Plans.BaseURL,
		APIKey:  cfg.Plans.APIKey,
		Timeout: cfg.Plans.Timeout,
	})
	if err != nil || !client.IsConfigured() {
		// sin plans-features no hay gate
		return nil
	}
	log.Info("auto no-show gated by plan capability", map[string]any{"feature": capabilities.FeatureAutoNoShow})
	return plansfeatures.NewResolver(client, false)
}
