package plansfeatures

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clinic-appointments/internal/platform/httpclient"
)

var (
	ErrPlansNotConfigured = errors.New("plans-features client not configured")
	ErrPlansUnauthorized  = errors.New("plans-features unauthorized")
	ErrPlansUpstream      = errors.New("plans-features upstream error")
)

type Config struct {
	BaseURL string
	APIKey  string

	APIKeyHeader string
	Timeout      time.Duration
}

type Client struct {
	apiKey       string
	apiKeyHeader string
	http         *httpclient.Client
}

func NewClient(cfg Config) (*Client, error) {
	h := strings.TrimSpace(cfg.APIKeyHeader)
	if h == "" {
		h = "X-Api-Key"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc, err := httpclient.NewWithBaseURL(strings.TrimSpace(cfg.BaseURL), timeout)
	if err != nil {
		return nil, fmt.Errorf("plans-features: %w", err)
	}

	return &Client{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		apiKeyHeader: h,
		http:         hc,
	}, nil
}

func (c *Client) IsConfigured() bool {
	return c != nil && c.http != nil && c.http.BaseURL != "" && c.apiKey != ""
}

// CapabilitiesResponse: {"capabilities": {"appointments:auto_no_show": true}}
type CapabilitiesResponse struct {
	Capabilities map[string]bool `json:"capabilities"`
}

// GetCapabilities trae capabilities del plan de una clínica.
func (c *Client) GetCapabilities(ctx context.Context, clinicID string) (CapabilitiesResponse, error) {
	if !c.IsConfigured() {
		return CapabilitiesResponse{}, ErrPlansNotConfigured
	}
	clinicID = strings.TrimSpace(clinicID)
	if clinicID == "" {
		return CapabilitiesResponse{}, errors.New("clinicID required")
	}

	path := "/v1/capabilities?subject_id=" + url.QueryEscape(clinicID)

	var out CapabilitiesResponse
	err := c.http.DoJSON(ctx, http.MethodGet, path, map[string]string{
		c.apiKeyHeader: c.apiKey,
	}, nil, &out)
	if err != nil {
		var httpErr *httpclient.HTTPError
		if errors.As(err, &httpErr) {
			switch httpErr.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return CapabilitiesResponse{}, ErrPlansUnauthorized
			}
		}
		return CapabilitiesResponse{}, fmt.Errorf("%w: %v", ErrPlansUpstream, err)
	}
	if out.Capabilities == nil {
		out.Capabilities = map[string]bool{}
	}
	return out, nil
}
