package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Formatos exactos con los que se escriben date/time en la cita.
// Cualquier cambio acá tiene que ir de la mano con el writer.
const (
	DateLayout = "2 January 2006"
	TimeLayout = "03:04 pm"
)

// DefaultOverdueGrace es la ventana después de la hora agendada antes de marcar no-show.
const DefaultOverdueGrace = 5 * time.Hour

var ErrInvalidSchedule = errors.New("invalid schedule")

// Eligible: solo confirmed y skipped pueden pasar a no_show.
func Eligible(s Status) bool {
	return s == StatusConfirmed || s == StatusSkipped
}

// ParseScheduled convierte date+time al instante absoluto en loc.
func ParseScheduled(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if date == "" || clock == "" {
		return time.Time{}, ErrInvalidSchedule
	}
	t, err := time.ParseInLocation(DateLayout+" "+TimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q %q: %v", ErrInvalidSchedule, date, clock, err)
	}
	return t, nil
}

// IsOverdue devuelve true si now > scheduled + grace.
func IsOverdue(date, clock string, now time.Time, loc *time.Location, grace time.Duration) (bool, error) {
	scheduled, err := ParseScheduled(date, clock, loc)
	if err != nil {
		return false, err
	}
	return now.After(scheduled.Add(grace)), nil
}

// FormatSchedule es el lado writer: produce date/time en los formatos exactos.
func FormatSchedule(t time.Time) (date, clock string) {
	return t.Format(DateLayout), t.Format(TimeLayout)
}

// ValidateSchedule exige round-trip exacto (parse -> format == input).
// No se aceptan variantes "parecidas" ("05 March 2025", "2:30 PM", etc).
func ValidateSchedule(date, clock string, loc *time.Location) error {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)

	t, err := ParseScheduled(date, clock, loc)
	if err != nil {
		return err
	}
	d, c := FormatSchedule(t)
	if d != date || c != clock {
		return fmt.Errorf("%w: %q %q is not canonical (want %q %q)", ErrInvalidSchedule, date, clock, d, c)
	}
	return nil
}
