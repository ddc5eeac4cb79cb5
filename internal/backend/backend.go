// Package backend is the HTTP gateway to the bank's lead backend.
//
// Profile and campaign lookups degrade to "absent" on any failure so a
// backend outage never breaks a conversation turn; the engine falls back to
// generic behavior instead.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/andesbank/leadflow/internal/models"
	"github.com/andesbank/leadflow/internal/phone"
)

// DefaultTimeout bounds every backend round-trip.
const DefaultTimeout = 12 * time.Second

// Opts holds configuration options for the gateway.
type Opts struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a configuration option for the gateway.
type Option func(*Opts)

// WithBaseURL sets the backend base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) {
		o.BaseURL = url
	}
}

// WithTimeout overrides the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.Timeout = d
	}
}

// WithHTTPClient injects a custom HTTP client (used in tests).
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// Gateway talks to the bank backend over HTTP.
type Gateway struct {
	baseURL string
	client  *http.Client
}

// NewGateway creates a gateway, applying any provided options.
func NewGateway(opts ...Option) (*Gateway, error) {
	cfg := Opts{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL not set")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	slog.Debug("Backend gateway configured", "base_url", cfg.BaseURL, "timeout", cfg.Timeout)
	return &Gateway{baseURL: cfg.BaseURL, client: httpClient}, nil
}

// FetchClient retrieves the prospect profile for a phone number. It returns
// ok=false on any transport or decode failure.
func (g *Gateway) FetchClient(ctx context.Context, phoneNumber string) (*models.ClientProfile, bool) {
	body, ok := g.get(ctx, "/client/"+phoneNumber)
	if !ok {
		return nil, false
	}
	var profile models.ClientProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		slog.Warn("Backend FetchClient decode failed", "error", err, "phone", phone.Mask(phoneNumber))
		return nil, false
	}
	profile.Raw = body
	slog.Debug("Backend FetchClient succeeded", "phone", phone.Mask(phoneNumber), "segment", profile.Segment)
	return &profile, true
}

// FetchCampaigns retrieves active campaigns for a phone number. It returns
// ok=false on any transport or decode failure; an empty campaign list is a
// valid success.
func (g *Gateway) FetchCampaigns(ctx context.Context, phoneNumber string) (*models.CampaignInfo, bool) {
	body, ok := g.get(ctx, "/campanas/"+phoneNumber)
	if !ok {
		return nil, false
	}
	var info models.CampaignInfo
	if err := json.Unmarshal(body, &info); err != nil {
		slog.Warn("Backend FetchCampaigns decode failed", "error", err, "phone", phone.Mask(phoneNumber))
		return nil, false
	}
	info.Raw = body
	slog.Debug("Backend FetchCampaigns succeeded", "phone", phone.Mask(phoneNumber), "count", len(info.ActiveCampaigns))
	return &info, true
}

// SubmitLead posts a completed lead. It returns false on any failure; the
// caller decides how to message the prospect about the outcome.
func (g *Gateway) SubmitLead(ctx context.Context, phoneNumber string, lead models.LeadPayload) bool {
	payload, err := json.Marshal(lead)
	if err != nil {
		slog.Error("Backend SubmitLead encode failed", "error", err, "lead_id", lead.LeadID)
		return false
	}
	resp, err := g.post(ctx, "/lead/"+phoneNumber, payload)
	if err != nil {
		slog.Error("Backend SubmitLead request failed", "error", err, "phone", phone.Mask(phoneNumber))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Error("Backend SubmitLead rejected", "status", resp.StatusCode, "phone", phone.Mask(phoneNumber))
		return false
	}
	slog.Info("Backend SubmitLead succeeded", "phone", phone.Mask(phoneNumber), "lead_id", lead.LeadID)
	return true
}

// agentRequest is the relay payload for the pass-through agent endpoint.
type agentRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// agentResponse is the relay reply shape.
type agentResponse struct {
	Response string `json:"response"`
}

// ForwardToAgent relays a message to the backend conversational agent and
// returns its reply. Used by the simple pass-through endpoint.
func (g *Gateway) ForwardToAgent(ctx context.Context, phoneNumber, message string) (string, error) {
	payload, err := json.Marshal(agentRequest{Phone: phoneNumber, Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to encode agent request: %w", err)
	}
	resp, err := g.post(ctx, "/webhook/builderbot", payload)
	if err != nil {
		return "", fmt.Errorf("agent relay failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("agent relay returned status %d", resp.StatusCode)
	}
	var agentResp agentResponse
	if err := json.NewDecoder(resp.Body).Decode(&agentResp); err != nil {
		return "", fmt.Errorf("failed to decode agent response: %w", err)
	}
	return agentResp.Response, nil
}

func (g *Gateway) get(ctx context.Context, path string) ([]byte, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		slog.Error("Backend request build failed", "error", err, "path", path)
		return nil, false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		slog.Warn("Backend request failed", "error", err, "path", path)
		return nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("Backend returned non-success status", "status", resp.StatusCode, "path", path)
		return nil, false
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Warn("Backend response read failed", "error", err, "path", path)
		return nil, false
	}
	return body, true
}

func (g *Gateway) post(ctx context.Context, path string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return g.client.Do(req)
}
