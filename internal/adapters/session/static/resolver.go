package static

import (
	"context"
	"strings"
)

// Resolver devuelve siempre la misma clínica (CLINIC_ID). Vacío => sin sesión.
type Resolver struct {
	clinicID string
}

func NewResolver(clinicID string) *Resolver {
	return &Resolver{clinicID: strings.TrimSpace(clinicID)}
}

func (r *Resolver) CurrentClinicID(ctx context.Context) (string, bool, error) {
	if r == nil || r.clinicID == "" {
		return "", false, nil
	}
	return r.clinicID, true, nil
}
