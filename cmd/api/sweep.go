package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"clinic-appointments/internal/platform/config"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/reconcile"

	"github.com/spf13/cobra"
)

var (
	sweepClinic  string
	sweepTimeout time.Duration
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Corre un único sweep de no-shows para una clínica y sale",
	Long: `Abre la suscripción de la clínica, espera el primer snapshot,
corre un tick del sweeper y muestra el resultado como JSON.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		clinicID := strings.TrimSpace(sweepClinic)
		if clinicID == "" {
			clinicID = cfg.Reconcile.ClinicID
		}
		if clinicID == "" {
			return errors.New("--clinic (o CLINIC_ID) es requerido")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()

		res, err := sweepOnce(ctx, cfg, clinicID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		if res.Error != "" {
			return fmt.Errorf("sweep failed: %s", res.Error)
		}
		return nil
	},
}

func init() {
	sweepCmd.Flags().StringVar(&sweepClinic, "clinic", "", "ID de la clínica a barrer (default: CLINIC_ID)")
	sweepCmd.Flags().DurationVar(&sweepTimeout, "timeout", 30*time.Second, "tiempo máximo para snapshot + escritura")
	rootCmd.AddCommand(sweepCmd)
}

func sweepOnce(ctx context.Context, cfg config.Config, clinicID string) (reconcile.TickView, error) {
	log := logger.New(cfg.LoggerOptions())

	loc, err := cfg.Location()
	if err != nil {
		return reconcile.TickView{}, err
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return reconcile.TickView{}, err
	}
	defer closeStore()

	syncer := reconcile.NewSynchronizer(store, clinicID, log)
	if err := syncer.Start(ctx); err != nil {
		return reconcile.TickView{}, err
	}
	defer syncer.Close()

	if err := waitFirstSnapshot(ctx, syncer); err != nil {
		return reconcile.TickView{}, err
	}

	sweeper := reconcile.NewSweeper(syncer, store, reconcile.SweeperConfig{
		Interval: cfg.Reconcile.SweepInterval,
		Grace:    cfg.Reconcile.OverdueGrace,
		Location: loc,
	}, log)

	return reconcile.ViewTick(sweeper.Tick(ctx)), nil
}

func waitFirstSnapshot(ctx context.Context, src reconcile.SnapshotSource) error {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		if !src.Snapshot().ReceivedAt.IsZero() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for first snapshot: %w", ctx.Err())
		case <-t.C:
		}
	}
}
