package appointments

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrReservedStatus = errors.New("status reserved for the reconciler")
	ErrTerminalStatus = errors.New("appointment is in a terminal status")
)

type Service struct {
	repo Repository
	loc  *time.Location
	now  func() time.Time
}

// NewService crea el servicio. loc es la zona horaria de la clínica (nil => time.Local).
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo: repo,
		loc:  loc,
		now:  time.Now,
	}
}

type BookInput struct {
	PatientName string
	Notes       string
	Date        string
	Time        string
}

// Book crea una cita en pending. date/time tienen que venir en el formato
// canónico; si no, el reconciler nunca podría evaluarla.
func (s *Service) Book(ctx context.Context, clinicID string, in BookInput) (Appointment, error) {
	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return Appointment{}, ErrInvalidInput
	}
	if strings.TrimSpace(in.PatientName) == "" {
		return Appointment{}, ErrInvalidInput
	}

	date := strings.TrimSpace(in.Date)
	clock := strings.TrimSpace(in.Time)
	if err := ValidateSchedule(date, clock, s.loc); err != nil {
		return Appointment{}, err
	}

	now := s.now()
	a := Appointment{
		ID:          uuid.NewString(),
		ClinicID:    clinicID,
		PatientName: strings.TrimSpace(in.PatientName),
		Notes:       strings.TrimSpace(in.Notes),
		Date:        date,
		Time:        clock,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, a); err != nil {
		return Appointment{}, err
	}
	return a, nil
}

// GetByID devuelve la cita solo si pertenece a clinicID.
func (s *Service) GetByID(ctx context.Context, clinicID, id string) (Appointment, error) {
	clinicID = strings.TrimSpace(clinicID)
	id = strings.TrimSpace(id)
	if clinicID == "" || id == "" {
		return Appointment{}, ErrInvalidInput
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Appointment{}, err
	}
	if a.ClinicID != clinicID {
		// no filtramos existencia entre clínicas
		return Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *Service) ListByClinic(ctx context.Context, clinicID string) ([]Appointment, error) {
	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByClinic(ctx, clinicID)
}

// SetStatus aplica transiciones de actores externos (recepción, médico, etc).
// no_show queda reservado para el reconciler y es terminal: una cita marcada
// no_show no se mueve más.
func (s *Service) SetStatus(ctx context.Context, clinicID, id string, status Status) (Appointment, error) {
	if !status.Valid() {
		return Appointment{}, ErrInvalidInput
	}
	if status == StatusNoShow {
		return Appointment{}, ErrReservedStatus
	}

	a, err := s.GetByID(ctx, clinicID, id)
	if err != nil {
		return Appointment{}, err
	}

	if a.Status == StatusNoShow {
		return Appointment{}, ErrTerminalStatus
	}

	// Idempotente
	if a.Status == status {
		return a, nil
	}

	now := s.now()
	if err := s.repo.UpdateStatus(ctx, a.ID, status, now); err != nil {
		return Appointment{}, err
	}
	a.Status = status
	a.UpdatedAt = now
	return a, nil
}
