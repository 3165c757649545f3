package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

type testRepo struct {
	byID    map[string]Appointment
	updates int
	getErr  error
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Appointment{}}
}

func (r *testRepo) Create(ctx context.Context, a Appointment) error {
	if a.ID == "" {
		return errors.New("repo: id required")
	}
	if _, ok := r.byID[a.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[a.ID] = a
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Appointment, error) {
	if r.getErr != nil {
		return Appointment{}, r.getErr
	}
	a, ok := r.byID[id]
	if !ok {
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (r *testRepo) ListByClinic(ctx context.Context, clinicID string) ([]Appointment, error) {
	out := make([]Appointment, 0)
	for _, a := range r.byID {
		if a.ClinicID == clinicID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *testRepo) UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error {
	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = at
	r.byID[id] = a
	r.updates++
	return nil
}

func newTestService(t *testing.T) (*Service, *testRepo, time.Time) {
	t.Helper()
	repo := newTestRepo()
	svc := NewService(repo, time.UTC)
	now := time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, repo, now
}

func TestBook(t *testing.T) {
	svc, repo, now := newTestService(t)
	ctx := context.Background()

	a, err := svc.Book(ctx, "clinic-1", BookInput{
		PatientName: "  Ana  ",
		Date:        "5 March 2025",
		Time:        "10:00 am",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "clinic-1", a.ClinicID)
	assert.Equal(t, "Ana", a.PatientName)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, now, a.CreatedAt)

	stored, ok := repo.byID[a.ID]
	require.True(t, ok)
	assert.Equal(t, a, stored)
}

func TestBook_Rejects(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, "", BookInput{PatientName: "Ana", Date: "5 March 2025", Time: "10:00 am"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Book(ctx, "clinic-1", BookInput{PatientName: " ", Date: "5 March 2025", Time: "10:00 am"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	// formato no canónico: el reconciler no podría evaluarla
	_, err = svc.Book(ctx, "clinic-1", BookInput{PatientName: "Ana", Date: "2025-03-05", Time: "10:00"})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = svc.Book(ctx, "clinic-1", BookInput{PatientName: "Ana", Date: "5 March 2025", Time: "10:00 AM"})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	assert.Empty(t, repo.byID)
}

func TestGetByID_OtherClinicIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Book(ctx, "clinic-1", BookInput{PatientName: "Ana", Date: "5 March 2025", Time: "10:00 am"})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, "clinic-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = svc.GetByID(ctx, "clinic-2", a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetByID(ctx, "clinic-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetStatus(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Book(ctx, "clinic-1", BookInput{PatientName: "Ana", Date: "5 March 2025", Time: "10:00 am"})
	require.NoError(t, err)

	later := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return later }

	got, err := svc.SetStatus(ctx, "clinic-1", a.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
	assert.Equal(t, later, got.UpdatedAt)
	assert.Equal(t, StatusConfirmed, repo.byID[a.ID].Status)
	assert.Equal(t, 1, repo.updates)

	// idempotente: no vuelve a escribir
	_, err = svc.SetStatus(ctx, "clinic-1", a.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.updates)
}

func TestSetStatus_Rejects(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Book(ctx, "clinic-1", BookInput{PatientName: "Ana", Date: "5 March 2025", Time: "10:00 am"})
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, "clinic-1", a.ID, StatusNoShow)
	assert.ErrorIs(t, err, ErrReservedStatus)

	_, err = svc.SetStatus(ctx, "clinic-1", a.ID, Status("lost"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.SetStatus(ctx, "clinic-2", a.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Equal(t, StatusPending, repo.byID[a.ID].Status)
	assert.Zero(t, repo.updates)
}

func TestSetStatus_NoShowIsTerminal(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	repo.byID["a1"] = Appointment{ID: "a1", ClinicID: "c1", Date: "5 March 2025", Time: "10:00 am", Status: StatusNoShow}

	for _, to := range []Status{StatusConfirmed, StatusPending, StatusSkipped, StatusCompleted} {
		_, err := svc.SetStatus(ctx, "c1", "a1", to)
		assert.ErrorIs(t, err, ErrTerminalStatus, "no_show -> %s", to)
	}

	assert.Equal(t, StatusNoShow, repo.byID["a1"].Status)
	assert.Zero(t, repo.updates)
}

func TestGetByID_RepoErrorIsNotNotFound(t *testing.T) {
	svc, repo, _ := newTestService(t)
	boom := errors.New("connection refused")
	repo.getErr = boom

	_, err := svc.GetByID(context.Background(), "c1", "a1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = svc.SetStatus(context.Background(), "c1", "a1", StatusConfirmed)
	assert.ErrorIs(t, err, boom)
}
