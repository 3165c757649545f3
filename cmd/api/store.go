package main

import (
	"context"
	"fmt"
	"strings"

	"clinic-appointments/internal/adapters/storage/memory"
	"clinic-appointments/internal/adapters/storage/postgres"
	"clinic-appointments/internal/domain/appointments"
	"clinic-appointments/internal/platform/config"
	"clinic-appointments/internal/platform/logger"
)

// openStore elige Postgres si hay DB_DSN; si no, memoria (modo dev).
func openStore(ctx context.Context, cfg config.Config, log logger.Logger) (appointments.Store, func(), error) {
	dsn := strings.TrimSpace(cfg.DBDSN)
	if dsn == "" {
		log.Warn("DB_DSN not set, using in-memory store", nil)
		return memory.NewAppointmentStore(), func() {}, nil
	}

	db, err := postgres.Open(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	log.Info("using postgres store", nil)
	return postgres.NewAppointmentsStore(db, dsn), func() { _ = db.Close() }, nil
}
