package reconcile

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"clinic-appointments/internal/middleware"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, m *Manager) {
	r.Route("/reconciler", func(rr chi.Router) {
		rr.Get("/status", statusHandler(m))
		rr.Post("/sweep", sweepHandler(m))
	})
}

func statusHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, m.Status())
	}
}

// sweepHandler corre un tick a demanda para la clínica del usuario,
// solo si es la clínica de la sesión activa.
func sweepHandler(m *Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetClaims(r.Context())
		if !ok || strings.TrimSpace(claims.UserID) == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		s := m.Current()
		if s == nil {
			http.Error(w, "no active session", http.StatusConflict)
			return
		}
		if s.ClinicID() != claims.TenantID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		res := s.SweepNow(r.Context())
		if errors.Is(res.Err, ErrSweepInProgress) {
			http.Error(w, res.Err.Error(), http.StatusConflict)
			return
		}

		writeJSON(w, http.StatusOK, ViewTick(res))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
