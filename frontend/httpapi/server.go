// Package httpapi exposes the question-answering pipeline over HTTP.
// Search and status endpoints return JSON; ask can stream the answer as
// server-sent events.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vheim/sage"
)

// Asker answers questions, optionally streaming. *sage.Answerer satisfies it.
type Asker interface {
	Ask(ctx context.Context, question string) (sage.Answer, error)
	AskStream(ctx context.Context, question string, ch chan<- sage.StreamEvent) (sage.Answer, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a structured logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultTopK sets the top_k used when a request omits it. Default is 5.
func WithDefaultTopK(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.defaultTopK = n
		}
	}
}

// Server routes HTTP requests to the store, retriever, and answerer.
type Server struct {
	store       sage.Store
	retriever   sage.Retriever
	asker       Asker
	logger      *slog.Logger
	defaultTopK int
}

// New creates a Server. store backs the status endpoint, retriever backs
// search, and asker backs ask.
func New(store sage.Store, retriever sage.Retriever, asker Asker, opts ...Option) *Server {
	s := &Server{
		store:       store,
		retriever:   retriever,
		asker:       asker,
		logger:      sage.NopLogger(),
		defaultTopK: 5,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(jsonRecoverer(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/search", s.handleSearch)
		r.Post("/ask", s.handleAsk)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Records int `json:"records"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("status count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Records: count})
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type searchResponse struct {
	Results []sage.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.defaultTopK
	}

	results, err := s.retriever.Retrieve(r.Context(), req.Query, topK)
	if err != nil {
		s.logger.Error("search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []sage.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: results})
}

type askRequest struct {
	Question string `json:"question"`
	Stream   bool   `json:"stream"`
}

type askResponse struct {
	Answer  string              `json:"answer"`
	Sources []sage.SearchResult `json:"sources,omitempty"`
	Usage   sage.Usage          `json:"usage"`
	Took    string              `json:"took"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	if req.Stream {
		s.askStream(w, r, req.Question)
		return
	}

	start := time.Now()
	answer, err := s.asker.Ask(r.Context(), req.Question)
	if err != nil {
		s.logger.Error("ask failed", "error", err)
		writeError(w, askStatus(err), "answer failed")
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		Answer:  answer.Text,
		Sources: answer.Sources,
		Usage:   answer.Usage,
		Took:    time.Since(start).Round(time.Millisecond).String(),
	})
}

// askStream writes the answer as server-sent events. Each StreamEvent becomes
// one SSE message with the event type as the SSE event name.
func (s *Server) askStream(w http.ResponseWriter, r *http.Request, question string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events := make(chan sage.StreamEvent, 64)
	errc := make(chan error, 1)
	go func() {
		_, err := s.asker.AskStream(r.Context(), question, events)
		errc <- err
	}()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("stream event marshal failed", "error", err)
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}

	if err := <-errc; err != nil {
		s.logger.Error("ask stream failed", "error", err)
		// Headers are already sent. Report the failure as a final event.
		fmt.Fprintf(w, "event: error\ndata: {\"error\":\"answer failed\"}\n\n")
		flusher.Flush()
	}
}

// askStatus maps answer errors to HTTP status codes. Rate limit errors from
// the upstream LLM pass through as 429.
func askStatus(err error) int {
	var httpErr *sage.ErrHTTP
	if errors.As(err, &httpErr) && httpErr.Status == http.StatusTooManyRequests {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
