package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Grant is a short-lived credential scoped to one realtime session. The
// ephemeral key replaces the long-lived API key for everything the client does.
type Grant struct {
	SessionID    string `json:"sessionId"`
	EphemeralKey string `json:"ephemeralKey"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// StatusError preserves the upstream HTTP status for diagnostics.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Detail)
}

// MinterConfig points the minter at the Azure OpenAI resource that holds the
// long-lived secret.
type MinterConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	HTTPClient *http.Client
}

// Minter exchanges the held API key for ephemeral session credentials via the
// realtime sessions API.
type Minter struct {
	cfg MinterConfig
}

func NewMinter(cfg MinterConfig) *Minter {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2025-04-01-preview"
	}
	return &Minter{cfg: cfg}
}

type sessionsRequest struct {
	Model        string `json:"model"`
	Voice        string `json:"voice"`
	Instructions string `json:"instructions,omitempty"`
}

type sessionsResponse struct {
	ID           string `json:"id"`
	ClientSecret struct {
		Value string `json:"value"`
	} `json:"client_secret"`
	ExpiresAt int64 `json:"expires_at"`
}

// Mint creates one ephemeral key. A non-2xx upstream response surfaces as a
// StatusError with the body preserved.
func (m *Minter) Mint(ctx context.Context, voice, instructions string) (Grant, error) {
	u := fmt.Sprintf("%s/openai/realtimeapi/sessions?api-version=%s",
		strings.TrimRight(m.cfg.Endpoint, "/"), m.cfg.APIVersion)

	payload, err := json.Marshal(sessionsRequest{
		Model:        m.cfg.Deployment,
		Voice:        voice,
		Instructions: instructions,
	})
	if err != nil {
		return Grant{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return Grant{}, err
	}
	req.Header.Set("api-key", m.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("sessions request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Grant{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Grant{}, &StatusError{Status: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	}

	var parsed sessionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Grant{}, fmt.Errorf("sessions response: %w", err)
	}
	if parsed.ClientSecret.Value == "" {
		return Grant{}, fmt.Errorf("sessions response missing client secret")
	}
	if parsed.ID == "" {
		parsed.ID = uuid.NewString()
	}
	return Grant{
		SessionID:    parsed.ID,
		EphemeralKey: parsed.ClientSecret.Value,
		ExpiresAt:    parsed.ExpiresAt,
	}, nil
}
