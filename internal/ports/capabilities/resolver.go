package capabilities

import "context"

// FeatureAutoNoShow habilita el marcado automático de no-show por clínica.
const FeatureAutoNoShow = "appointments:auto_no_show"

type CapabilityCheck struct {
	// Subject es el dueño del plan: en este servicio, la clínica.
	Subject string
	Feature string
}

type CapabilitiesResolver interface {
	HasFeature(ctx context.Context, in CapabilityCheck) (bool, error)
}
