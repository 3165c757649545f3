package reconcile

import (
	"context"
	"sync"

	"clinic-appointments/internal/domain/appointments"
	"clinic-appointments/internal/platform/logger"
)

// Session es el reconciler de una clínica: una suscripción + un sweeper.
// Cambiar de clínica es crear otra Session, nunca mutar esta.
type Session struct {
	clinicID string
	syncer   *Synchronizer
	sweeper  *Sweeper
	log      logger.Logger

	cancel context.CancelFunc
	done   chan struct{}

	stopOnce sync.Once
}

// StartSession abre la suscripción y arranca el sweeper. Si la suscripción
// falla no queda nada corriendo.
func StartSession(ctx context.Context, feed appointments.Feed, clinicID string, cfg SweeperConfig, log logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(map[string]any{"clinic_id": clinicID})

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	syncer := NewSynchronizer(feed, clinicID, log)
	if err := syncer.Start(runCtx); err != nil {
		cancel()
		syncer.Close()
		return nil, err
	}

	s := &Session{
		clinicID: clinicID,
		syncer:   syncer,
		sweeper:  NewSweeper(syncer, feed, cfg, log),
		log:      log,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		s.sweeper.Run(runCtx)
	}()

	activeSessions.Inc()
	s.log.Info("reconcile session started", nil)
	return s, nil
}

func (s *Session) ClinicID() string { return s.clinicID }

func (s *Session) Snapshot() Snapshot { return s.syncer.Snapshot() }

func (s *Session) LastTick() (TickResult, bool) { return s.sweeper.Last() }

// SweepNow corre un tick fuera del timer (mismo guard de solapamiento).
func (s *Session) SweepNow(ctx context.Context) TickResult { return s.sweeper.Tick(ctx) }

// Stop detiene el timer y libera la suscripción. Idempotente.
func (s *Session) Stop() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
		s.syncer.Close()
		activeSessions.Dec()
		s.log.Info("reconcile session stopped", nil)
	})
}
