package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"clinic-appointments/internal/middleware"
	"clinic-appointments/internal/platform/logger"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service, feed Feed, log logger.Logger) {
	r.Route("/appointments", func(ar chi.Router) {
		ar.Post("/", bookHandler(svc))
		ar.Get("/", listHandler(svc))

		// Stream del snapshot de la clínica (mismo feed que usa el reconciler)
		ar.Get("/live", liveHandler(feed, log))

		ar.Get("/{appointmentID}", getHandler(svc))
		ar.Post("/{appointmentID}/status", setStatusHandler(svc))
	})
}

type bookRequest struct {
	PatientName string `json:"patient_name"`
	Notes       string `json:"notes"`
	Date        string `json:"date"` // "5 March 2025"
	Time        string `json:"time"` // "02:30 pm"
}

type setStatusRequest struct {
	Status Status `json:"status"`
}

type appointmentResponse struct {
	ID          string    `json:"id"`
	ClinicID    string    `json:"clinic_id"`
	PatientName string    `json:"patient_name"`
	Notes       string    `json:"notes,omitempty"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type liveMessage struct {
	ClinicID     string                `json:"clinic_id"`
	ReceivedAt   time.Time             `json:"received_at"`
	Appointments []appointmentResponse `json:"appointments"`
}

// clinicFromRequest exige usuario autenticado con clínica.
func clinicFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims, ok := middleware.GetClaims(r.Context())
	if !ok || strings.TrimSpace(claims.UserID) == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	if strings.TrimSpace(claims.TenantID) == "" {
		http.Error(w, "forbidden", http.StatusForbidden)
		return "", false
	}
	return claims.TenantID, true
}

// @Summary Agendar cita
// @Tags appointments
// @Accept json
// @Produce json
// @Success 201 {object} appointmentResponse
// @Router /appointments [post]
func bookHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		var req bookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		a, err := svc.Book(r.Context(), clinicID, BookInput{
			PatientName: req.PatientName,
			Notes:       req.Notes,
			Date:        req.Date,
			Time:        req.Time,
		})
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, ErrInvalidSchedule):
				http.Error(w, "date must look like \"5 March 2025\" and time like \"02:30 pm\"", http.StatusBadRequest)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}

		writeJSON(w, http.StatusCreated, toResponse(a))
	}
}

func listHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		// status=confirmed,skipped (CSV opcional)
		allowed := parseStatusFilter(r.URL.Query().Get("status"))

		items, err := svc.ListByClinic(r.Context(), clinicID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		out := make([]appointmentResponse, 0, len(items))
		for _, a := range items {
			if len(allowed) > 0 {
				if _, ok := allowed[a.Status]; !ok {
					continue
				}
			}
			out = append(out, toResponse(a))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func getHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		a, err := svc.GetByID(r.Context(), clinicID, chi.URLParam(r, "appointmentID"))
		if err != nil {
			switch {
			case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidInput):
				http.Error(w, "appointment not found", http.StatusNotFound)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, toResponse(a))
	}
}

func setStatusHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}

		var req setStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		a, err := svc.SetStatus(r.Context(), clinicID, chi.URLParam(r, "appointmentID"), req.Status)
		if err != nil {
			switch {
			case errors.Is(err, ErrInvalidInput):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, ErrReservedStatus), errors.Is(err, ErrTerminalStatus):
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, ErrNotFound):
				http.Error(w, "appointment not found", http.StatusNotFound)
			default:
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
			return
		}
		writeJSON(w, http.StatusOK, toResponse(a))
	}
}

// liveHandler abre un websocket y empuja el snapshot completo de la clínica
// en cada notificación del store. Si el cliente es lento, se saltean
// snapshots intermedios y se manda siempre el último.
func liveHandler(feed Feed, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clinicID, ok := clinicFromRequest(w, r)
		if !ok {
			return
		}
		if feed == nil {
			http.Error(w, "live feed not available", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			// Accept ya escribió la respuesta
			return
		}
		defer conn.CloseNow()

		// No leemos nada del cliente; CloseRead cancela ctx cuando se va.
		ctx := conn.CloseRead(r.Context())

		latest := make(chan []Appointment, 1)
		sub, err := feed.Subscribe(ctx, clinicID, func(items []Appointment) {
			select {
			case <-latest:
			default:
			}
			latest <- items
		}, func(err error) {
			log.Warn("live feed error", map[string]any{"clinic_id": clinicID, "err": err.Error()})
		})
		if err != nil {
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			return
		}
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case items := <-latest:
				if err := writeLive(ctx, conn, clinicID, items); err != nil {
					return
				}
			}
		}
	}
}

func writeLive(ctx context.Context, conn *websocket.Conn, clinicID string, items []Appointment) error {
	msg := liveMessage{
		ClinicID:     clinicID,
		ReceivedAt:   time.Now().UTC(),
		Appointments: make([]appointmentResponse, 0, len(items)),
	}
	for _, a := range items {
		msg.Appointments = append(msg.Appointments, toResponse(a))
	}

	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, conn, msg)
}

func toResponse(a Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          a.ID,
		ClinicID:    a.ClinicID,
		PatientName: a.PatientName,
		Notes:       a.Notes,
		Date:        a.Date,
		Time:        a.Time,
		Status:      a.Status,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func parseStatusFilter(raw string) map[Status]struct{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[Status]struct{}{}
	for _, p := range strings.Split(raw, ",") {
		s := Status(strings.TrimSpace(p))
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
