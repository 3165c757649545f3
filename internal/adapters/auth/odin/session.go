package odin

import (
	"context"
	"errors"
	"strings"

	"clinic-appointments/internal/ports/auth"
)

// SessionResolver resuelve la clínica de la sesión verificando un token de
// servicio contra Odin. Token vacío o rechazado => no hay sesión.
type SessionResolver struct {
	verifier auth.AuthVerifier
	token    string
}

func NewSessionResolver(verifier auth.AuthVerifier, serviceToken string) *SessionResolver {
	return &SessionResolver{
		verifier: verifier,
		token:    strings.TrimSpace(serviceToken),
	}
}

func (r *SessionResolver) CurrentClinicID(ctx context.Context) (string, bool, error) {
	if r == nil || r.verifier == nil || r.token == "" {
		return "", false, nil
	}

	claims, err := r.verifier.Verify(ctx, r.token)
	if err != nil {
		// Token rechazado: la sesión terminó. Cualquier otra cosa es transitoria.
		if errors.Is(err, ErrOdinUnauthorized) {
			return "", false, nil
		}
		return "", false, err
	}

	clinicID := strings.TrimSpace(claims.TenantID)
	if clinicID == "" {
		return "", false, nil
	}
	return clinicID, true, nil
}
