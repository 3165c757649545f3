package appointments

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrConditionFailed: al menos una transición del batch ya no coincide
	// con el status esperado; no se aplicó ninguna.
	ErrConditionFailed = errors.New("condition failed")
)

type Repository interface {
	Create(ctx context.Context, a Appointment) error
	GetByID(ctx context.Context, id string) (Appointment, error)
	ListByClinic(ctx context.Context, clinicID string) ([]Appointment, error)
	UpdateStatus(ctx context.Context, id string, status Status, at time.Time) error
}

// Subscription es el handle de una suscripción viva.
type Subscription interface {
	Unsubscribe()
}

// Feed es el borde con el store remoto que consume el reconciler.
//
// Subscribe entrega el result set completo de la clínica en cada cambio
// (no parches). onError recibe errores transitorios; la suscripción sigue viva.
// ApplyStatusChanges es atómico: se aplican todas las transiciones o ninguna.
type Feed interface {
	Subscribe(ctx context.Context, clinicID string, onSnapshot func([]Appointment), onError func(error)) (Subscription, error)
	ApplyStatusChanges(ctx context.Context, changes []StatusChange) error
}

// Store agrupa lo que implementan los adapters de storage.
type Store interface {
	Repository
	Feed
}
