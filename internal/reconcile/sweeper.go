package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"clinic-appointments/internal/domain/appointments"
	"clinic-appointments/internal/platform/logger"
)

const DefaultSweepInterval = 300 * time.Second

var ErrSweepInProgress = errors.New("sweep already in progress")

// StatusWriter es el lado de escritura del store que usa el Sweeper.
type StatusWriter interface {
	ApplyStatusChanges(ctx context.Context, changes []appointments.StatusChange) error
}

type SweeperConfig struct {
	Interval time.Duration
	Grace    time.Duration
	Location *time.Location
}

func (c SweeperConfig) withDefaults() SweeperConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultSweepInterval
	}
	if c.Grace <= 0 {
		c.Grace = appointments.DefaultOverdueGrace
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	return c
}

// Plan es lo que un tick propone escribir.
type Plan struct {
	Changes     []appointments.StatusChange
	Unparseable []string // IDs con date/time inválidos (se reintentan el próximo tick)
}

// TickResult resume un tick. Err nunca se propaga más allá del log/métricas
// cuando el tick lo dispara el timer.
type TickResult struct {
	At          time.Time
	Evaluated   int
	Transitions int
	Unparseable int
	Err         error
}

// Sweeper evalúa periódicamente el snapshot y marca no_show lo vencido,
// con una sola escritura batch por tick.
type Sweeper struct {
	source SnapshotSource
	writer StatusWriter
	cfg    SweeperConfig
	log    logger.Logger
	now    func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	last atomic.Pointer[TickResult]
}

func NewSweeper(source SnapshotSource, writer StatusWriter, cfg SweeperConfig, log logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		source: source,
		writer: writer,
		cfg:    cfg.withDefaults(),
		log:    log.With(map[string]any{"component": "sweeper"}),
		now:    time.Now,
	}
}

// Plan es puro: mismo snapshot + mismo now => mismo plan.
func (s *Sweeper) Plan(snap Snapshot, now time.Time) Plan {
	var p Plan
	for _, a := range snap.Appointments {
		if !appointments.Eligible(a.Status) {
			continue
		}
		overdue, err := appointments.IsOverdue(a.Date, a.Time, now, s.cfg.Location, s.cfg.Grace)
		if err != nil {
			p.Unparseable = append(p.Unparseable, a.ID)
			continue
		}
		if !overdue {
			continue
		}
		p.Changes = append(p.Changes, appointments.StatusChange{
			ID:       a.ID,
			ClinicID: a.ClinicID,
			From:     a.Status,
			To:       appointments.StatusNoShow,
		})
	}
	return p
}

// Tick corre un sweep ahora. Devuelve ErrSweepInProgress si ya hay uno corriendo.
func (s *Sweeper) Tick(ctx context.Context) TickResult {
	if !s.running.CompareAndSwap(false, true) {
		sweepSkipped.Inc()
		return TickResult{At: s.now(), Err: ErrSweepInProgress}
	}
	defer s.running.Store(false)

	res := s.tick(ctx)
	s.last.Store(&res)
	return res
}

func (s *Sweeper) tick(ctx context.Context) TickResult {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	now := s.now()
	res := TickResult{At: now}

	snap := s.source.Snapshot()
	if snap.Empty() {
		sweepTotal.WithLabelValues("empty").Inc()
		return res
	}

	plan := s.Plan(snap, now)
	res.Evaluated = len(snap.Appointments)
	res.Unparseable = len(plan.Unparseable)
	if len(plan.Unparseable) > 0 {
		unparseableSchedules.Add(float64(len(plan.Unparseable)))
		s.log.Debug("skipping appointments with invalid schedule", map[string]any{
			"clinic_id": snap.ClinicID,
			"ids":       plan.Unparseable,
		})
	}

	if len(plan.Changes) == 0 {
		sweepTotal.WithLabelValues("noop").Inc()
		return res
	}

	if err := s.writer.ApplyStatusChanges(ctx, plan.Changes); err != nil {
		// Aislado al tick: las citas siguen elegibles y vencidas, el próximo tick reintenta.
		sweepTotal.WithLabelValues("failed").Inc()
		s.log.Error("no-show batch failed", map[string]any{
			"clinic_id": snap.ClinicID,
			"changes":   len(plan.Changes),
			"err":       err.Error(),
		})
		res.Err = err
		return res
	}

	res.Transitions = len(plan.Changes)
	sweepTotal.WithLabelValues("applied").Inc()
	noShowTransitions.Add(float64(len(plan.Changes)))
	s.log.Info("appointments marked no_show", map[string]any{
		"clinic_id": snap.ClinicID,
		"count":     len(plan.Changes),
	})
	return res
}

// Run dispara un tick cada Interval hasta que ctx se cancele. Cada tick corre
// en su propia goroutine para no atrasar el timer; si el anterior no terminó,
// el disparo se saltea. Al salir espera al tick en curso.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	defer s.wg.Wait()

	s.log.Info("sweeper started", map[string]any{
		"interval": s.cfg.Interval.String(),
		"grace":    s.cfg.Grace.String(),
	})

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped", nil)
			return
		case <-ticker.C:
			if s.running.Load() {
				sweepSkipped.Inc()
				s.log.Warn("previous sweep still running, skipping", nil)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				s.Tick(ctx)
			}()
		}
	}
}

// Last devuelve el resultado del último tick (ok=false si no hubo ninguno).
func (s *Sweeper) Last() (TickResult, bool) {
	if p := s.last.Load(); p != nil {
		return *p, true
	}
	return TickResult{}, false
}
