package hss

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sebas/regcore/internal/regcore/aor"
)

// ClientConfig configures an HTTPClient.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DefaultClientConfig returns conventional local-dev defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{BaseURL: "http://localhost:8080", Timeout: 2 * time.Second}
}

// irsInfoWire is the JSON wire shape for IRSInfo.
type irsInfoWire struct {
	DefaultIMPU    string               `json:"default_impu"`
	AssociatedURIs []aor.AssociatedURI  `json:"associated_uris"`
	SCSCFURI       string               `json:"scscf_uri"`
}

// HTTPClient is a net/http + encoding/json REST client for the HSS's
// Cx-SAR-like interface. No library in the retrieved pack wraps this kind
// of internal HTTP contract, so it is built directly on the standard
// library (see DESIGN.md).
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient constructs an HTTPClient from cfg.
func NewHTTPClient(cfg ClientConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *HTTPClient) GetRegistrationData(ctx context.Context, publicID string) (*IRSInfo, error) {
	u := fmt.Sprintf("%s/hss/registration-data?public_id=%s", c.baseURL, url.QueryEscape(publicID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	return c.do(req)
}

func (c *HTTPClient) UpdateRegistrationState(ctx context.Context, query IRSQuery) (*IRSInfo, error) {
	body, err := json.Marshal(struct {
		PublicID string      `json:"public_id"`
		SCSCFURI string      `json:"scscf_uri"`
		Reason   DeregReason `json:"reason,omitempty"`
	}{PublicID: query.PublicID, SCSCFURI: query.SCSCFURI, Reason: query.Reason})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	u := c.baseURL + "/hss/registration-state"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *HTTPClient) do(req *http.Request) (*IRSInfo, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var wire irsInfoWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if wire.DefaultIMPU == "" {
		return nil, errors.New("hss: response missing default impu")
	}
	return &IRSInfo{
		DefaultIMPU:    wire.DefaultIMPU,
		AssociatedURIs: wire.AssociatedURIs,
		SCSCFURI:       wire.SCSCFURI,
	}, nil
}
