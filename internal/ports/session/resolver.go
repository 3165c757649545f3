package session

import "context"

// Resolver devuelve la clínica de la sesión actual.
// ok=false significa que no hay sesión activa (no es un error).
type Resolver interface {
	CurrentClinicID(ctx context.Context) (clinicID string, ok bool, err error)
}
