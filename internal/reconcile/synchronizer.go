package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"clinic-appointments/internal/domain/appointments"
	"clinic-appointments/internal/platform/logger"
)

var ErrClosed = errors.New("synchronizer closed")

// Snapshot es la última vista completa de las citas de una clínica.
// Se reemplaza entera; nunca se modifica una vez publicada.
type Snapshot struct {
	ClinicID     string
	Appointments []appointments.Appointment
	ReceivedAt   time.Time
}

func (s Snapshot) Empty() bool { return len(s.Appointments) == 0 }

// SnapshotSource es lo único que el Sweeper necesita del Synchronizer.
type SnapshotSource interface {
	Snapshot() Snapshot
}

// Synchronizer mantiene una suscripción al store para una clínica y publica
// cada result set como Snapshot. Es el único writer del snapshot.
type Synchronizer struct {
	feed     appointments.Feed
	clinicID string
	log      logger.Logger
	now      func() time.Time

	current atomic.Pointer[Snapshot]
	stopped atomic.Bool

	mu     sync.Mutex
	sub    appointments.Subscription
	closed bool
}

func NewSynchronizer(feed appointments.Feed, clinicID string, log logger.Logger) *Synchronizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Synchronizer{
		feed:     feed,
		clinicID: strings.TrimSpace(clinicID),
		log:      log.With(map[string]any{"component": "synchronizer", "clinic_id": strings.TrimSpace(clinicID)}),
		now:      time.Now,
	}
}

// Start abre la suscripción. Llamarlo dos veces no abre una segunda.
func (s *Synchronizer) Start(ctx context.Context) error {
	if s.clinicID == "" {
		return errors.New("clinic id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.sub != nil {
		return nil
	}

	sub, err := s.feed.Subscribe(ctx, s.clinicID, s.publish, s.reportError)
	if err != nil {
		return err
	}
	s.sub = sub
	s.log.Info("subscription opened", nil)
	return nil
}

// Snapshot devuelve el último snapshot publicado (vacío si todavía no llegó ninguno).
func (s *Synchronizer) Snapshot() Snapshot {
	if p := s.current.Load(); p != nil {
		return *p
	}
	return Snapshot{ClinicID: s.clinicID}
}

// Close libera la suscripción. Idempotente y seguro aunque Start no haya corrido.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopped.Store(true)
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
		s.log.Info("subscription closed", nil)
	}
	snapshotSize.DeleteLabelValues(s.clinicID)
}

func (s *Synchronizer) publish(items []appointments.Appointment) {
	if s.stopped.Load() {
		return
	}
	// copia propia: el slice del store no es nuestro
	own := make([]appointments.Appointment, len(items))
	copy(own, items)

	s.current.Store(&Snapshot{
		ClinicID:     s.clinicID,
		Appointments: own,
		ReceivedAt:   s.now(),
	})
	snapshotSize.WithLabelValues(s.clinicID).Set(float64(len(own)))
	s.log.Debug("snapshot replaced", map[string]any{"appointments": len(own)})
}

// reportError: los errores de suscripción son transitorios; el último
// snapshot bueno sigue visible.
func (s *Synchronizer) reportError(err error) {
	if err == nil {
		return
	}
	subscriptionErrors.Inc()
	s.log.Warn("subscription error", map[string]any{"err": err.Error()})
}
