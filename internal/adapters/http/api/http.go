// Package api serves the ranking service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/charsort/internal/adapters/repository"
	service "github.com/okian/charsort/internal/app"
	"github.com/okian/charsort/internal/domain/model"
	"github.com/okian/charsort/internal/domain/ranking"
	"github.com/okian/charsort/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	Lists(ctx context.Context) ([]model.CharacterList, error)
	CreateList(ctx context.Context, title string, alg model.Algorithm) (model.CharacterList, error)
	AddCharacter(ctx context.Context, listID model.ListID, name, fandom string) (model.Character, error)
	Summary(ctx context.Context, listID model.ListID) (service.ListView, error)
	Next(ctx context.Context, listID model.ListID) (model.Matchup, bool, error)
	Register(ctx context.Context, listID model.ListID, a, b model.CharacterID, value int, key string) (model.ComparisonRecord, bool, error)
	Undo(ctx context.Context, listID model.ListID) (model.ComparisonRecord, error)
	Graph(ctx context.Context, listID model.ListID) (ranking.Graph, error)
}

// defaultMaxBodyBytes caps request bodies unless WithMaxBodyBytes is given.
const defaultMaxBodyBytes = 1 << 16

// Server wires HTTP routes for the ranking API.
type Server struct {
	deps         Dependencies
	logger       logger.Logger
	maxBodyBytes int64

	healthHandler      *HealthHandler
	listsHandler       *ListsHandler
	comparisonsHandler *ComparisonsHandler
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger used for server errors.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{deps: deps, maxBodyBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	s.healthHandler = NewHealthHandler()
	s.listsHandler = &ListsHandler{deps: deps, logger: s.logger}
	s.comparisonsHandler = &ComparisonsHandler{deps: deps, logger: s.logger}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	route := func(pattern, endpoint string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, RequestIDMiddleware(MetricsMiddleware(BodyLimitMiddleware(h, s.maxBodyBytes), endpoint)))
	}
	route("GET /healthz", "healthz", s.healthHandler.HandleHealth)
	route("GET /metrics", "metrics", s.healthHandler.HandleMetrics)
	route("GET /lists", "lists", s.listsHandler.HandleLists)
	route("POST /lists", "lists_create", s.listsHandler.HandleCreateList)
	route("GET /lists/{id}", "list", s.listsHandler.HandleSummary)
	route("POST /lists/{id}/characters", "characters", s.listsHandler.HandleAddCharacter)
	route("GET /lists/{id}/next", "next", s.listsHandler.HandleNext)
	route("GET /lists/{id}/graph", "graph", s.listsHandler.HandleGraph)
	route("POST /lists/{id}/comparisons", "comparisons", s.comparisonsHandler.HandleCompare)
	route("POST /lists/{id}/undo", "undo", s.comparisonsHandler.HandleUndo)
}

// Handler returns a mux with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	return mux
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps service and store error kinds to status codes.
func writeServiceError(ctx context.Context, log logger.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrInvalidID), errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, service.ErrNoGraph):
		writeError(w, http.StatusNotFound, "no_graph", err)
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		log.Error(ctx, "request failed", logger.Error(err), logger.String("requestID", RequestID(ctx)))
		writeError(w, http.StatusInternalServerError, "internal", errors.New(http.StatusText(http.StatusInternalServerError)))
	}
}

// listID parses the {id} path value.
func listID(r *http.Request) (model.ListID, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: list id %q", ErrInvalidID, raw)
	}
	return model.ListID(id), nil
}

// decodeJSON decodes a request body, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
