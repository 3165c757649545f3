package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"clinic-appointments/internal/domain/appointments"

	"github.com/jackc/pgx/v5"
)

const notifyChannel = "appointments_changed"

const selectAppointment = `
	SELECT
		id, clinic_id,
		patient_name, notes,
		scheduled_date, scheduled_time,
		status,
		created_at, updated_at
	FROM appointments
`

type AppointmentsStore struct {
	db  *sql.DB
	dsn string // para la conexión dedicada de LISTEN

	now func() time.Time

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewAppointmentsStore usa db para queries/escrituras y abre una conexión
// pgx aparte (dsn) por cada suscripción.
func NewAppointmentsStore(db *sql.DB, dsn string) *AppointmentsStore {
	return &AppointmentsStore{
		db:         db,
		dsn:        dsn,
		now:        time.Now,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

var _ appointments.Store = (*AppointmentsStore)(nil)

func (r *AppointmentsStore) Create(ctx context.Context, a appointments.Appointment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO appointments (
			id, clinic_id,
			patient_name, notes,
			scheduled_date, scheduled_time,
			status,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		a.ID,
		a.ClinicID,
		a.PatientName,
		a.Notes,
		a.Date,
		a.Time,
		string(a.Status),
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func (r *AppointmentsStore) GetByID(ctx context.Context, id string) (appointments.Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return appointments.Appointment{}, appointments.ErrNotFound
	}

	a, err := scanAppointment(r.db.QueryRowContext(ctx, selectAppointment+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appointments.Appointment{}, appointments.ErrNotFound
		}
		return appointments.Appointment{}, err
	}
	return a, nil
}

func (r *AppointmentsStore) ListByClinic(ctx context.Context, clinicID string) ([]appointments.Appointment, error) {
	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, selectAppointment+`
		WHERE clinic_id = $1
		ORDER BY created_at ASC
	`, clinicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]appointments.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AppointmentsStore) UpdateStatus(ctx context.Context, id string, status appointments.Status, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = $3
		WHERE id = $1
	`, id, string(status), at)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return appointments.ErrNotFound
	}
	return nil
}

// ApplyStatusChanges aplica el batch en una transacción. Cada UPDATE lleva la
// condición (clínica + status esperado); si alguno no afecta exactamente una
// fila se hace rollback de todo.
func (r *AppointmentsStore) ApplyStatusChanges(ctx context.Context, changes []appointments.StatusChange) error {
	if len(changes) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now()
	for _, c := range changes {
		res, err := tx.ExecContext(ctx, `
			UPDATE appointments
			SET status = $1, updated_at = $2
			WHERE id = $3 AND clinic_id = $4 AND status = $5
		`, string(c.To), now, c.ID, c.ClinicID, string(c.From))
		if err != nil {
			return fmt.Errorf("update %s: %w", c.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update %s: %w", c.ID, err)
		}
		if n != 1 {
			return fmt.Errorf("%w: appointment %s is no longer %s", appointments.ErrConditionFailed, c.ID, c.From)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Subscribe escucha NOTIFY appointments_changed en una conexión dedicada y,
// por cada notificación de la clínica, relee el result set completo.
// Si la conexión se cae, reporta a onError y reconecta con backoff.
// Unsubscribe no debe llamarse desde onSnapshot.
func (r *AppointmentsStore) Subscribe(
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
	if strings.TrimSpace(r.dsn) == "" {
		return nil, errors.New("postgres: dsn required to subscribe")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &pgSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		r.listen(subCtx, clinicID, onSnapshot, onError)
	}()

	return sub, nil
}

func (r *AppointmentsStore) listen(
	ctx context.Context,
	clinicID string,
	onSnapshot func([]appointments.Appointment),
	onError func(error),
) {
	backoff := r.minBackoff
	for {
		connected, err := r.listenOnce(ctx, clinicID, onSnapshot)
		if ctx.Err() != nil {
			return
		}
		if err != nil && onError != nil {
			onError(err)
		}
		if connected {
			backoff = r.minBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

func (r *AppointmentsStore) listenOnce(
	ctx context.Context,
	clinicID string,
	onSnapshot func([]appointments.Appointment),
) (bool, error) {
	conn, err := pgx.Connect(ctx, r.dsn)
	if err != nil {
		return false, fmt.Errorf("listen connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return false, fmt.Errorf("listen: %w", err)
	}

	// Snapshot inicial después del LISTEN, así no se pierde ningún cambio intermedio.
	push := func() error {
		items, err := r.ListByClinic(ctx, clinicID)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		onSnapshot(items)
		return nil
	}
	if err := push(); err != nil {
		return true, err
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, fmt.Errorf("wait notification: %w", err)
		}
		if n.Payload != clinicID {
			continue
		}
		if err := push(); err != nil {
			return true, err
		}
	}
}

type pgSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *pgSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (appointments.Appointment, error) {
	var a appointments.Appointment
	var status string
	if err := row.Scan(
		&a.ID,
		&a.ClinicID,
		&a.PatientName,
		&a.Notes,
		&a.Date,
		&a.Time,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return appointments.Appointment{}, err
	}
	a.Status = appointments.Status(status)
	return a, nil
}
