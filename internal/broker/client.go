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
)

// Client consumes the credential broker's HTTP contract. The session
// controller uses it to fetch the ephemeral key before negotiating transport.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type createSessionRequest struct {
	Voice        string `json:"voice"`
	Instructions string `json:"instructions,omitempty"`
}

type brokerErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CreateSession requests one short-lived credential. Non-2xx responses are
// broker failures; the body's error field is surfaced when present.
func (c *Client) CreateSession(ctx context.Context, voice, instructions string) (Grant, error) {
	payload, err := json.Marshal(createSessionRequest{Voice: voice, Instructions: instructions})
	if err != nil {
		return Grant{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/session", bytes.NewReader(payload))
	if err != nil {
		return Grant{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Grant{}, fmt.Errorf("broker request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Grant{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var parsed brokerErrorBody
		detail := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
			detail = parsed.Error
			if parsed.Details != "" {
				detail += ": " + parsed.Details
			}
		}
		return Grant{}, &StatusError{Status: resp.StatusCode, Detail: detail}
	}

	var grant Grant
	if err := json.Unmarshal(body, &grant); err != nil {
		return Grant{}, fmt.Errorf("broker response: %w", err)
	}
	if grant.EphemeralKey == "" {
		return Grant{}, fmt.Errorf("broker response missing ephemeral key")
	}
	return grant, nil
}
