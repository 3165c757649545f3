package reconcile

import (
	"context"
	"sync"
	"time"

	"clinic-appointments/internal/domain/appointments"
	"clinic-appointments/internal/platform/logger"
	"clinic-appointments/internal/ports/capabilities"
	"clinic-appointments/internal/ports/session"
)

const DefaultResolveInterval = 30 * time.Second

type ManagerOptions struct {
	Feed     appointments.Feed
	Resolver session.Resolver

	// Capabilities es opcional; si viene, la clínica necesita
	// capabilities.FeatureAutoNoShow para tener sesión.
	Capabilities capabilities.CapabilitiesResolver

	Sweeper         SweeperConfig
	ResolveInterval time.Duration
	Logger          logger.Logger
}

// Manager sigue a la sesión actual: arranca una Session para la clínica
// resuelta, la baja cuando no hay sesión y la reemplaza si cambia la clínica.
type Manager struct {
	opts ManagerOptions
	log  logger.Logger

	// lifecycle serializa Reconcile y Stop; mu solo protege current.
	lifecycle sync.Mutex

	mu      sync.RWMutex
	current *Session
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.ResolveInterval <= 0 {
		opts.ResolveInterval = DefaultResolveInterval
	}
	return &Manager{
		opts: opts,
		log:  opts.Logger.With(map[string]any{"component": "reconcile_manager"}),
	}
}

// Run resuelve la sesión ahora y luego cada ResolveInterval. Al cancelar ctx
// baja la sesión activa.
func (m *Manager) Run(ctx context.Context) error {
	defer m.Stop()

	m.Reconcile(ctx)

	ticker := time.NewTicker(m.opts.ResolveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reconcile(ctx)
		}
	}
}

// Reconcile compara la clínica de la sesión con la Session activa y corrige.
// Los errores transitorios (resolver o capabilities) dejan la Session como está.
func (m *Manager) Reconcile(ctx context.Context) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	clinicID, ok, err := m.opts.Resolver.CurrentClinicID(ctx)
	if err != nil {
		m.log.Warn("session resolve failed", map[string]any{"err": err.Error()})
		return
	}
	if ok {
		allowed, err := m.allowed(ctx, clinicID)
		if err != nil {
			m.log.Warn("capability check failed", map[string]any{"clinic_id": clinicID, "err": err.Error()})
			return
		}
		ok = allowed
	}

	m.mu.Lock()
	cur := m.current
	if cur != nil && ok && cur.ClinicID() == clinicID {
		m.mu.Unlock()
		return
	}
	m.current = nil
	m.mu.Unlock()

	// Stop espera al tick en curso; fuera del lock para no trabar Status.
	if cur != nil {
		m.log.Info("stopping session", map[string]any{"clinic_id": cur.ClinicID()})
		cur.Stop()
	}
	if !ok {
		return
	}

	s, err := StartSession(ctx, m.opts.Feed, clinicID, m.opts.Sweeper, m.opts.Logger)
	if err != nil {
		m.log.Error("session start failed", map[string]any{"clinic_id": clinicID, "err": err.Error()})
		return
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
}

func (m *Manager) allowed(ctx context.Context, clinicID string) (bool, error) {
	if m.opts.Capabilities == nil {
		return true, nil
	}
	return m.opts.Capabilities.HasFeature(ctx, capabilities.CapabilityCheck{
		Subject: clinicID,
		Feature: capabilities.FeatureAutoNoShow,
	})
}

// Current devuelve la Session activa (nil si no hay sesión).
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Snapshot de la sesión activa; vacío si no hay sesión.
func (m *Manager) Snapshot() Snapshot {
	if s := m.Current(); s != nil {
		return s.Snapshot()
	}
	return Snapshot{}
}

// Stop baja la sesión activa. Idempotente.
func (m *Manager) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	cur := m.current
	m.current = nil
	m.mu.Unlock()

	cur.Stop()
}

// Status es lo que expone GET /reconciler/status.
type Status struct {
	Active       bool       `json:"active"`
	ClinicID     string     `json:"clinic_id,omitempty"`
	Appointments int        `json:"appointments"`
	SnapshotAt   *time.Time `json:"snapshot_at,omitempty"`
	LastTick     *TickView  `json:"last_tick,omitempty"`
}

type TickView struct {
	At          time.Time `json:"at"`
	Evaluated   int       `json:"evaluated"`
	Transitions int       `json:"transitions"`
	Unparseable int       `json:"unparseable"`
	Error       string    `json:"error,omitempty"`
}

func (m *Manager) Status() Status {
	s := m.Current()
	if s == nil {
		return Status{}
	}

	snap := s.Snapshot()
	out := Status{
		Active:       true,
		ClinicID:     s.ClinicID(),
		Appointments: len(snap.Appointments),
	}
	if !snap.ReceivedAt.IsZero() {
		t := snap.ReceivedAt
		out.SnapshotAt = &t
	}
	if res, ok := s.LastTick(); ok {
		v := ViewTick(res)
		out.LastTick = &v
	}
	return out
}

// ViewTick es la forma JSON de un TickResult.
func ViewTick(res TickResult) TickView {
	v := TickView{
		At:          res.At,
		Evaluated:   res.Evaluated,
		Transitions: res.Transitions,
		Unparseable: res.Unparseable,
	}
	if res.Err != nil {
		v.Error = res.Err.Error()
	}
	return v
}
