package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clinic-appointments/internal/adapters/session/static"
	"clinic-appointments/internal/adapters/storage/memory"
	"clinic-appointments/internal/reconcile"
	"clinic-appointments/internal/router"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type apptJSON struct {
	ID       string `json:"id"`
	ClinicID string `json:"clinic_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Status   string `json:"status"`
}

func newServer(t *testing.T, clinicID string) (*httptest.Server, *reconcile.Manager) {
	t.Helper()

	store := memory.NewAppointmentStore()
	m := reconcile.NewManager(reconcile.ManagerOptions{
		Feed:     store,
		Resolver: static.NewResolver(clinicID),
		Sweeper:  reconcile.SweeperConfig{Interval: time.Hour, Location: time.UTC},
	})
	t.Cleanup(m.Stop)

	ts := httptest.NewServer(router.NewRouter(router.Options{
		AuthVerifier: nil, // modo dev
		Store:        store,
		Manager:      m,
		Location:     time.UTC,
	}))
	t.Cleanup(ts.Close)
	return ts, m
}

func TestHTTP_EndToEnd_NoShowSweep(t *testing.T) {
	ts, m := newServer(t, "clinic-1")
	const user, clinic = "recep-1", "clinic-1"

	// 1) Agendar una cita vieja y una futura
	overdueID := book(t, ts.URL, user, clinic, "5 March 2020", "10:00 am")
	futureID := book(t, ts.URL, user, clinic, "5 March 2099", "10:00 am")

	// 2) Formato no canónico => 400
	{
		st, body := doReq(t, ts.URL, "POST", "/appointments", user, clinic, map[string]any{
			"patient_name": "Ana",
			"date":         "2020-03-05",
			"time":         "10:00",
		})
		if st != http.StatusBadRequest {
			t.Fatalf("expected 400 for bad schedule, got %d body=%s", st, string(body))
		}
	}

	// 3) Recepción confirma ambas
	setStatus(t, ts.URL, user, clinic, overdueID, "confirmed", http.StatusOK)
	setStatus(t, ts.URL, user, clinic, futureID, "confirmed", http.StatusOK)

	// 4) no_show es del reconciler
	setStatus(t, ts.URL, user, clinic, overdueID, "no_show", http.StatusConflict)

	// 5) Arranca la sesión y corre un sweep a demanda
	m.Reconcile(context.Background())
	waitFor(t, func() bool { return len(m.Snapshot().Appointments) == 2 })
	{
		st, body := doReq(t, ts.URL, "POST", "/reconciler/sweep", user, clinic, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 sweep, got %d body=%s", st, string(body))
		}
		var tick reconcile.TickView
		if err := json.Unmarshal(body, &tick); err != nil {
			t.Fatalf("unmarshal tick: %v", err)
		}
		if tick.Transitions != 1 {
			t.Fatalf("expected 1 transition, got %d", tick.Transitions)
		}
	}

	// 6) La vieja quedó no_show; la futura sigue confirmed
	if got := getAppt(t, ts.URL, user, clinic, overdueID).Status; got != "no_show" {
		t.Fatalf("expected no_show, got %s", got)
	}
	if got := getAppt(t, ts.URL, user, clinic, futureID).Status; got != "confirmed" {
		t.Fatalf("expected confirmed, got %s", got)
	}

	// no_show es terminal
	setStatus(t, ts.URL, user, clinic, overdueID, "confirmed", http.StatusConflict)

	// 7) Filtro por status
	{
		st, body := doReq(t, ts.URL, "GET", "/appointments?status=no_show", user, clinic, nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 list, got %d", st)
		}
		var items []apptJSON
		if err := json.Unmarshal(body, &items); err != nil {
			t.Fatalf("unmarshal list: %v", err)
		}
		if len(items) != 1 || items[0].ID != overdueID {
			t.Fatalf("expected only %s, got %+v", overdueID, items)
		}
	}

	// 8) Status del reconciler
	{
		st, body := doReq(t, ts.URL, "GET", "/reconciler/status", "", "", nil)
		if st != http.StatusOK {
			t.Fatalf("expected 200 status, got %d", st)
		}
		var out reconcile.Status
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatalf("unmarshal status: %v", err)
		}
		if !out.Active || out.ClinicID != clinic || out.LastTick == nil {
			t.Fatalf("unexpected status: %+v", out)
		}
	}
}

func TestHTTP_ClinicIsolation(t *testing.T) {
	ts, _ := newServer(t, "")

	id := book(t, ts.URL, "u1", "clinic-1", "5 March 2025", "10:00 am")

	// otra clínica no la ve
	if st, _ := doReq(t, ts.URL, "GET", "/appointments/"+id, "u2", "clinic-2", nil); st != http.StatusNotFound {
		t.Fatalf("expected 404 from other clinic, got %d", st)
	}
	setStatus(t, ts.URL, "u2", "clinic-2", id, "cancelled", http.StatusNotFound)

	// sin usuario / sin clínica
	if st, _ := doReq(t, ts.URL, "GET", "/appointments", "", "", nil); st != http.StatusUnauthorized {
		t.Fatalf("expected 401 without user, got %d", st)
	}
	if st, _ := doReq(t, ts.URL, "GET", "/appointments", "u1", "", nil); st != http.StatusForbidden {
		t.Fatalf("expected 403 without clinic, got %d", st)
	}

	// sin sesión de reconciler
	if st, _ := doReq(t, ts.URL, "POST", "/reconciler/sweep", "u1", "clinic-1", nil); st != http.StatusConflict {
		t.Fatalf("expected 409 without session, got %d", st)
	}
}

func TestHTTP_LiveFeed(t *testing.T) {
	ts, _ := newServer(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/appointments/live"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"X-Debug-User-ID":   []string{"u1"},
			"X-Debug-Clinic-ID": []string{"clinic-1"},
		},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	type liveMsg struct {
		ClinicID     string     `json:"clinic_id"`
		Appointments []apptJSON `json:"appointments"`
	}

	var first liveMsg
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if first.ClinicID != "clinic-1" || len(first.Appointments) != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", first)
	}

	id := book(t, ts.URL, "u1", "clinic-1", "5 March 2025", "10:00 am")

	for {
		var msg liveMsg
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if len(msg.Appointments) == 1 && msg.Appointments[0].ID == id {
			break
		}
	}
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	ts, _ := newServer(t, "")

	if st, body := doReq(t, ts.URL, "GET", "/health", "", "", nil); st != http.StatusOK || string(body) != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", st, string(body))
	}

	st, body := doReq(t, ts.URL, "GET", "/metrics", "", "", nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 metrics, got %d", st)
	}
	if !strings.Contains(string(body), "reconcile_active_sessions") {
		t.Fatalf("expected reconcile metrics in /metrics output")
	}
}

// -------------------------
// Helpers
// -------------------------

func book(t *testing.T, baseURL, userID, clinicID, date, clock string) string {
	t.Helper()
	st, body := doReq(t, baseURL, "POST", "/appointments", userID, clinicID, map[string]any{
		"patient_name": "Ana",
		"date":         date,
		"time":         clock,
	})
	if st != http.StatusCreated {
		t.Fatalf("expected 201 book, got %d body=%s", st, string(body))
	}
	var a apptJSON
	if err := json.Unmarshal(body, &a); err != nil {
		t.Fatalf("unmarshal appointment: %v", err)
	}
	if a.ID == "" || a.Status != "pending" {
		t.Fatalf("unexpected appointment: %+v", a)
	}
	return a.ID
}

func setStatus(t *testing.T, baseURL, userID, clinicID, id, status string, want int) {
	t.Helper()
	st, body := doReq(t, baseURL, "POST", "/appointments/"+id+"/status", userID, clinicID, map[string]any{
		"status": status,
	})
	if st != want {
		t.Fatalf("set status %s: expected %d, got %d body=%s", status, want, st, string(body))
	}
}

func getAppt(t *testing.T, baseURL, userID, clinicID, id string) apptJSON {
	t.Helper()
	st, body := doReq(t, baseURL, "GET", "/appointments/"+id, userID, clinicID, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 get, got %d body=%s", st, string(body))
	}
	var a apptJSON
	if err := json.Unmarshal(body, &a); err != nil {
		t.Fatalf("unmarshal appointment: %v", err)
	}
	return a
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func doReq(t *testing.T, baseURL, method, path, debugUserID, debugClinicID string, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if debugUserID != "" {
		req.Header.Set("X-Debug-User-ID", debugUserID)
		req.Header.Set("X-Debug-Clinic-ID", debugClinicID)
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}
