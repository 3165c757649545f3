package plansfeatures

import (
	"context"
	"errors"
	"strings"

	"clinic-appointments/internal/ports/capabilities"
)

// Resolver implementa capabilities.CapabilitiesResolver contra plans-features.
type Resolver struct {
	client   *Client
	allowAll bool
}

// NewResolver crea un resolver. allowAll=true (ALLOW_ALL_CAPABILITIES) responde
// true a todo sin llamar a upstream (modo dev / fallback).
func NewResolver(client *Client, allowAll bool) *Resolver {
	return &Resolver{
		client:   client,
		allowAll: allowAll,
	}
}

func (r *Resolver) HasFeature(ctx context.Context, in capabilities.CapabilityCheck) (bool, error) {
	feature := strings.TrimSpace(in.Feature)
	if feature == "" {
		return false, errors.New("feature required")
	}

	if r == nil {
		return false, ErrPlansNotConfigured
	}
	if r.allowAll {
		return true, nil
	}
	if r.client == nil || !r.client.IsConfigured() {
		// preferimos fallar explícito en vez de "permitir" sin control
		return false, ErrPlansNotConfigured
	}

	resp, err := r.client.GetCapabilities(ctx, in.Subject)
	if err != nil {
		return false, err
	}
	return resp.Capabilities[feature], nil
}
