package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tallevi/parla/internal/broker"
	"github.com/tallevi/parla/internal/config"
	"github.com/tallevi/parla/internal/observability"
	"github.com/tallevi/parla/internal/sessionstore"
)

type fakeMinter struct {
	grant            broker.Grant
	err              error
	lastVoice        string
	lastInstructions string
}

func (m *fakeMinter) Mint(_ context.Context, voice, instructions string) (broker.Grant, error) {
	m.lastVoice = voice
	m.lastInstructions = instructions
	if m.err != nil {
		return broker.Grant{}, m.err
	}
	return m.grant, nil
}

func testConfig() config.Config {
	return config.Config{
		AzureDeployment:      "gpt-realtime",
		AzureRegion:          "eastus2",
		Voice:                "alloy",
		AssistantRole:        "a helpful voice assistant",
		AssistantPersonality: "friendly and concise",
		AssistantWordLimit:   60,
	}
}

func newTestServer(namespace string, m Minter, store sessionstore.Store) *Server {
	return New(testConfig(), m, store, observability.NewMetrics(namespace))
}

func TestCreateSessionAppliesDefaults(t *testing.T) {
	minter := &fakeMinter{grant: broker.Grant{
		SessionID:    "sess_1",
		EphemeralKey: "ek_1",
		ExpiresAt:    time.Now().Add(time.Minute).Unix(),
	}}
	store := sessionstore.NewInMemoryStore()
	srv := newTestServer("api_defaults", minter, store)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`{}`))
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if minter.lastVoice != "alloy" {
		t.Errorf("minted voice = %q, want default %q", minter.lastVoice, "alloy")
	}
	if !strings.Contains(minter.lastInstructions, "helpful voice assistant") {
		t.Errorf("default instructions not built: %q", minter.lastInstructions)
	}

	var grant broker.Grant
	if err := json.Unmarshal(rec.Body.Bytes(), &grant); err != nil {
		t.Fatalf("decoding grant: %v", err)
	}
	if grant.SessionID != "sess_1" || grant.EphemeralKey != "ek_1" {
		t.Errorf("grant = %+v", grant)
	}

	records, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 || records[0].ID != "sess_1" {
		t.Fatalf("stored records = %+v, want one for sess_1", records)
	}
}

func TestCreateSessionPassesExplicitFields(t *testing.T) {
	minter := &fakeMinter{grant: broker.Grant{SessionID: "sess_2", EphemeralKey: "ek_2"}}
	srv := newTestServer("api_explicit", minter, nil)

	body := `{"voice":"verse","instructions":"You are a pirate."}`
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if minter.lastVoice != "verse" {
		t.Errorf("voice = %q, want %q", minter.lastVoice, "verse")
	}
	if minter.lastInstructions != "You are a pirate." {
		t.Errorf("instructions = %q, not passed through verbatim", minter.lastInstructions)
	}
}

func TestCreateSessionToleratesEmptyBody(t *testing.T) {
	minter := &fakeMinter{grant: broker.Grant{SessionID: "sess_3", EphemeralKey: "ek_3"}}
	srv := newTestServer("api_empty_body", minter, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader("")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if minter.lastVoice != "alloy" {
		t.Errorf("voice = %q, want default %q", minter.lastVoice, "alloy")
	}
}

func TestCreateSessionRejectsMalformedBody(t *testing.T) {
	srv := newTestServer("api_bad_body", &fakeMinter{}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", strings.NewReader(`not json`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateSessionUpstreamFailure(t *testing.T) {
	minter := &fakeMinter{err: &broker.StatusError{Status: 401, Detail: "invalid api key"}}
	srv := newTestServer("api_upstream_fail", minter, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/session", nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Error != "mint_failed" || !strings.Contains(body.Details, "invalid api key") {
		t.Errorf("error body = %+v", body)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer("api_health", &fakeMinter{}, nil)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if body["status"] != "ok" || body["deployment"] != "gpt-realtime" {
		t.Errorf("health body = %v", body)
	}
}

func TestListSessions(t *testing.T) {
	store := sessionstore.NewInMemoryStore()
	_ = store.Save(context.Background(), sessionstore.Record{ID: "sess_a", Voice: "alloy", MintedAt: time.Now()})
	srv := newTestServer("api_list", &fakeMinter{}, store)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var records []sessionstore.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(records) != 1 || records[0].ID != "sess_a" {
		t.Errorf("records = %+v", records)
	}
}
