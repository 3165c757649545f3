package appointments

import "time"

// Status es el estado de una cita.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusSkipped    Status = "skipped"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no_show"
)

// Valid indica si el status es uno de los conocidos.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusSkipped, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// Appointment es una cita de una clínica.
// Date/Time/ClinicID no cambian después de creada; Status es lo único que muta.
type Appointment struct {
	ID       string
	ClinicID string

	PatientName string
	Notes       string

	Date string // "5 March 2025" (hora local de la clínica)
	Time string // "02:30 pm"

	Status Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StatusChange es una transición condicional: solo aplica si el status actual
// sigue siendo From.
type StatusChange struct {
	ID       string
	ClinicID string
	From     Status
	To       Status
}
