// Package server exposes the dispatcher as a GitHub webhook receiver.
package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coreeng/check-dispatch/internal/dispatch"
	"github.com/coreeng/check-dispatch/internal/event"
	"github.com/coreeng/check-dispatch/internal/ledger"
)

const maxPayloadBytes = 5 << 20

// History lists recorded dispatches.
type History interface {
	List(ctx context.Context, limit int) ([]ledger.Entry, error)
}

// Server routes webhook deliveries and completion reports to a Dispatcher.
type Server struct {
	dispatcher *dispatch.Dispatcher
	history    History
	secret     []byte
	logger     *slog.Logger
	router     *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithHistory serves GET /dispatches from h instead of the in-memory tracker.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithWebhookSecret requires deliveries to carry a matching
// X-Hub-Signature-256 header.
func WithWebhookSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Post("/webhook", s.handleWebhook)

	r.Route("/dispatches", func(r chi.Router) {
		r.Get("/", s.handleListDispatches)
		r.Post("/{id}/complete", s.handleComplete)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "workflow", s.dispatcher.Document().Path)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"workflow": s.dispatcher.Document().Path,
		"active":   len(s.dispatcher.Tracker().Active()),
	})
}

type webhookResponse struct {
	Decision   dispatch.Decision  `json:"decision"`
	Dispatches []dispatch.Request `json:"dispatches,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if !s.verifySignature(r.Header.Get("X-Hub-Signature-256"), payload) {
		respondError(w, http.StatusUnauthorized, "signature mismatch", nil)
		return
	}

	name := r.Header.Get("X-GitHub-Event")
	if name == "ping" {
		respondJSON(w, http.StatusOK, map[string]string{"status": "pong"})
		return
	}

	ev, err := event.FromWebhook(name, payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "malformed event", err)
		return
	}

	dec, requests, err := s.dispatcher.Dispatch(r.Context(), ev)
	switch {
	case err == nil:
	case errors.Is(err, event.ErrMalformedEvent):
		respondError(w, http.StatusBadRequest, "malformed event", err)
		return
	case errors.Is(err, dispatch.ErrInvocation):
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":      "delegate invocation failed",
			"details":    err.Error(),
			"decision":   dec,
			"dispatches": requests,
		})
		return
	default:
		respondError(w, http.StatusInternalServerError, "dispatch failed", err)
		return
	}

	respondJSON(w, http.StatusOK, webhookResponse{Decision: dec, Dispatches: requests})
}

func (s *Server) verifySignature(header string, payload []byte) bool {
	if len(s.secret) == 0 {
		return true
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(s.secret, payload))
}

// Sign returns the HMAC-SHA256 of payload under secret, as carried by the
// X-Hub-Signature-256 header.
func Sign(secret, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxPayloadBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	outcome, err := dispatch.ParseOutcome(req.Outcome)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid outcome", err)
		return
	}

	done, err := s.dispatcher.Tracker().Complete(r.Context(), id, outcome)
	if err != nil {
		if errors.Is(err, dispatch.ErrUnknownDispatch) {
			respondError(w, http.StatusNotFound, "dispatch not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to record completion", err)
		return
	}

	s.logger.InfoContext(r.Context(), "dispatch completed",
		"id", id,
		"job", done.Run.Job,
		"outcome", outcome,
	)
	respondJSON(w, http.StatusOK, map[string]any{
		"id":      id,
		"job":     done.Run.Job,
		"state":   dispatch.StateIdle,
		"outcome": outcome,
	})
}

func (s *Server) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"dispatches": s.dispatcher.Tracker().Active(),
		})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dispatches", err)
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"dispatches": entries})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
