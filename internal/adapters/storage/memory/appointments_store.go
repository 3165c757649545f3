package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"clinic-appointments/internal/domain/appointments"
)

// AppointmentStore es un store in-memory con suscripciones por clínica.
// Cada cambio notifica a los suscriptores de esa clínica; cada suscriptor
// recibe el result set completo y, si va lento, solo el último.
type AppointmentStore struct {
	mu   sync.RWMutex
	byID map[string]appointments.Appointment

	subs    map[string]map[uint64]*subscription // clinicID -> subs
	nextSub uint64

	now func() time.Time
}

func NewAppointmentStore() *AppointmentStore {
	return &AppointmentStore{
		byID: make(map[string]appointments.Appointment),
		subs: make(map[string]map[uint64]*subscription),
		now:  time.Now,
	}
}

var _ appointments.Store = (*AppointmentStore)(nil)

func (s *AppointmentStore) Create(ctx context.Context, a appointments.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(a.ID) == "" {
		return errors.New("appointment id required")
	}
	if _, exists := s.byID[a.ID]; exists {
		return errors.New("appointment already exists")
	}
	s.byID[a.ID] = a
	s.notifyLocked(a.ClinicID)
	return nil
}

func (s *AppointmentStore) GetByID(ctx context.Context, id string) (appointments.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return appointments.Appointment{}, appointments.ErrNotFound
	}
	return a, nil
}

func (s *AppointmentStore) ListByClinic(ctx context.Context, clinicID string) ([]appointments.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listLocked(clinicID), nil
}

func (s *AppointmentStore) UpdateStatus(ctx context.Context, id string, status appointments.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return appointments.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	s.byID[id] = a
	s.notifyLocked(a.ClinicID)
	return nil
}

// Delete borra una cita (lo usan tests y herramientas de dev).
func (s *AppointmentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return appointments.ErrNotFound
	}
	delete(s.byID, id)
	s.notifyLocked(a.ClinicID)
	return nil
}

// ApplyStatusChanges aplica todo el batch o nada: si alguna cita no existe,
// cambió de clínica o ya no está en From, se rechaza el batch completo.
func (s *AppointmentStore) ApplyStatusChanges(ctx context.Context, changes []appointments.StatusChange) error {
	if len(changes) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		a, ok := s.byID[c.ID]
		if !ok {
			return fmt.Errorf("%w: appointment %s not found", appointments.ErrConditionFailed, c.ID)
		}
		if a.ClinicID != c.ClinicID {
			return fmt.Errorf("%w: appointment %s belongs to another clinic", appointments.ErrConditionFailed, c.ID)
		}
		if a.Status != c.From {
			return fmt.Errorf("%w: appointment %s is %s, expected %s", appointments.ErrConditionFailed, c.ID, a.Status, c.From)
		}
	}

	now := s.now()
	touched := map[string]struct{}{}
	for _, c := range changes {
		a := s.byID[c.ID]
		a.Status = c.To
		a.UpdatedAt = now
		s.byID[c.ID] = a
		touched[a.ClinicID] = struct{}{}
	}
	for clinicID := range touched {
		s.notifyLocked(clinicID)
	}
	return nil
}

// Subscribe entrega el snapshot inicial y luego uno por cada cambio en la clínica.
// La suscripción termina con Unsubscribe o cuando ctx se cancela.
func (s *AppointmentStore) Subscribe(
	ctx context.Context,
	clinicID string,
	onSnapshot func([]appointments.Appointment),
	onError func(error),
) (appointments.Subscription, error) {
	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return nil, errors.New("clinic id required")
	}
	if onSnapshot == nil {
		return nil, errors.New("onSnapshot required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextSub++
	sub := &subscription{
		store:      s,
		id:         s.nextSub,
		clinicID:   clinicID,
		onSnapshot: onSnapshot,
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	if s.subs[clinicID] == nil {
		s.subs[clinicID] = make(map[uint64]*subscription)
	}
	s.subs[clinicID][sub.id] = sub
	sub.signal <- struct{}{} // snapshot inicial
	s.mu.Unlock()

	go sub.loop(ctx)
	return sub, nil
}

// Subscribers cuenta suscripciones activas de una clínica.
func (s *AppointmentStore) Subscribers(clinicID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[clinicID])
}

func (s *AppointmentStore) listLocked(clinicID string) []appointments.Appointment {
	out := make([]appointments.Appointment, 0)
	for _, a := range s.byID {
		if a.ClinicID == clinicID {
			out = append(out, a)
		}
	}
	// Orden estable por created_at asc (solo para consistencia en dev)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *AppointmentStore) notifyLocked(clinicID string) {
	for _, sub := range s.subs[clinicID] {
		select {
		case sub.signal <- struct{}{}:
		default:
			// ya hay una notificación pendiente; va a leer el estado más nuevo
		}
	}
}

func (s *AppointmentStore) remove(sub *subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.subs[sub.clinicID]
	delete(m, sub.id)
	if len(m) == 0 {
		delete(s.subs, sub.clinicID)
	}
}

type subscription struct {
	store      *AppointmentStore
	id         uint64
	clinicID   string
	onSnapshot func([]appointments.Appointment)

	signal chan struct{}
	done   chan struct{}
	once   sync.Once
}

func (sub *subscription) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.done)
		sub.store.remove(sub)
	})
}

func (sub *subscription) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			return
		case <-sub.done:
			return
		case <-sub.signal:
			sub.store.mu.RLock()
			items := sub.store.listLocked(sub.clinicID)
			sub.store.mu.RUnlock()

			select {
			case <-sub.done:
				return
			default:
			}
			sub.onSnapshot(items)
		}
	}
}
