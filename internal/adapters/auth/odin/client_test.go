package odin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOdinServer(t *testing.T, tokens map[string]verifyResponse) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/tokens/verify" || r.Header.Get("X-Api-Key") != "svc-key" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var in struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Token == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		claims, ok := tokens[in.Token]
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(claims)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: baseURL, APIKey: "svc-key", Timeout: time.Second})
	require.NoError(t, err)
	c.http.RetryDelay = time.Millisecond
	return c
}

func TestVerifyToken(t *testing.T) {
	ts := newOdinServer(t, map[string]verifyResponse{
		"good": {UserID: "u1", Email: "a@b.c", TenantID: "clinic-1"},
	})
	c := newTestClient(t, ts.URL)
	require.True(t, c.IsConfigured())

	claims, err := c.VerifyToken(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "clinic-1", claims.TenantID)

	_, err = c.VerifyToken(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrOdinUnauthorized)

	_, err = c.VerifyToken(context.Background(), "boom")
	assert.ErrorIs(t, err, ErrOdinUpstream)
}

func TestClient_NotConfigured(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.False(t, c.IsConfigured())

	_, err = c.VerifyToken(context.Background(), "x")
	assert.ErrorIs(t, err, ErrOdinNotConfigured)
}

func TestSessionResolver(t *testing.T) {
	ts := newOdinServer(t, map[string]verifyResponse{
		"svc":       {UserID: "svc-user", TenantID: "clinic-9"},
		"no-tenant": {UserID: "svc-user"},
	})
	v := NewVerifier(newTestClient(t, ts.URL))
	ctx := context.Background()

	clinicID, ok, err := NewSessionResolver(v, "svc").CurrentClinicID(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "clinic-9", clinicID)

	// token rechazado: sesión terminada, no error
	_, ok, err = NewSessionResolver(v, "revoked").CurrentClinicID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = NewSessionResolver(v, "no-tenant").CurrentClinicID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// upstream caído: transitorio
	_, ok, err = NewSessionResolver(v, "boom").CurrentClinicID(ctx)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrOdinUpstream))

	// sin token ni verifier: no hay sesión
	_, ok, err = NewSessionResolver(nil, "").CurrentClinicID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}
