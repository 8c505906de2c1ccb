package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tallevi/parla/internal/broker"
	"github.com/tallevi/parla/internal/config"
	"github.com/tallevi/parla/internal/observability"
	"github.com/tallevi/parla/internal/session"
	"github.com/tallevi/parla/internal/sessionstore"
)

// Minter exchanges the standing Azure API key for a short-lived session
// credential. The key never leaves this process.
type Minter interface {
	Mint(ctx context.Context, voice, instructions string) (broker.Grant, error)
}

type Server struct {
	cfg     config.Config
	minter  Minter
	store   sessionstore.Store
	metrics *observability.Metrics
}

func New(cfg config.Config, minter Minter, store sessionstore.Store, metrics *observability.Metrics) *Server {
	return &Server{cfg: cfg, minter: minter, store: store, metrics: metrics}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/sessions", s.handleListSessions)
	r.Post("/api/session", s.handleCreateSession)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"deployment": s.cfg.AzureDeployment,
		"region":     s.cfg.AzureRegion,
	})
}

type createSessionRequest struct {
	Voice        string `json:"voice"`
	Instructions string `json:"instructions"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Voice) == "" {
		req.Voice = s.cfg.Voice
	}
	if strings.TrimSpace(req.Instructions) == "" {
		req.Instructions = session.BuildInstructions(
			s.cfg.AssistantRole,
			s.cfg.AssistantPersonality,
			s.cfg.AssistantWordLimit,
			s.cfg.AssistantLanguage,
		)
	}

	grant, err := s.minter.Mint(r.Context(), req.Voice, req.Instructions)
	if err != nil {
		s.metrics.BrokerRequests.WithLabelValues("error").Inc()
		var serr *broker.StatusError
		if errors.As(err, &serr) {
			// Upstream auth failures stay 502: the caller's request was
			// fine, our standing credential or endpoint is not.
			respondError(w, http.StatusBadGateway, "mint_failed", serr.Detail)
			return
		}
		respondError(w, http.StatusBadGateway, "mint_failed", err.Error())
		return
	}

	if s.store != nil {
		record := sessionstore.Record{
			ID:        grant.SessionID,
			Voice:     req.Voice,
			MintedAt:  time.Now().UTC(),
			ExpiresAt: time.Unix(grant.ExpiresAt, 0).UTC(),
		}
		if err := s.store.Save(r.Context(), record); err != nil {
			// Audit trail is best effort; the grant is already minted.
			s.metrics.BrokerRequests.WithLabelValues("store_error").Inc()
		}
	}

	s.metrics.BrokerRequests.WithLabelValues("ok").Inc()
	respondJSON(w, http.StatusOK, grant)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondJSON(w, http.StatusOK, []sessionstore.Record{})
		return
	}
	records, err := s.store.Recent(r.Context(), 50)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if records == nil {
		records = []sessionstore.Record{}
	}
	respondJSON(w, http.StatusOK, records)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, details string) {
	respondJSON(w, status, errorResponse{Error: code, Details: details})
}
