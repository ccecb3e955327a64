// Package http is the service's own narrow API: event ingestion from the
// robot producer, evidence ingestion, and the public verification surfaces.
// It is not the surrounding product's web framework.
package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/trackledger/trackledger/internal/config"
	"github.com/trackledger/trackledger/internal/corroboration"
	"github.com/trackledger/trackledger/internal/ledger"
	"github.com/trackledger/trackledger/internal/report"
)

// Server wires the ledger components behind HTTP routes.
type Server struct {
	router     *mux.Router
	server     *http.Server
	store      ledger.Store
	evidence   corroboration.EvidenceStore
	appender   *ledger.Appender
	verifier   *ledger.Verifier
	reports    *report.Builder
	thresholds config.ThresholdSource
	metrics    *Metrics
	hub        *Hub
	cfg        config.HTTPConfig
}

// Deps carries the collaborators the server exposes.
type Deps struct {
	Store      ledger.Store
	Evidence   corroboration.EvidenceStore
	Appender   *ledger.Appender
	Verifier   *ledger.Verifier
	Reports    *report.Builder
	Thresholds config.ThresholdSource
	Metrics    *Metrics
}

func NewServer(cfg config.HTTPConfig, deps Deps) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		store:      deps.Store,
		evidence:   deps.Evidence,
		appender:   deps.Appender,
		verifier:   deps.Verifier,
		reports:    deps.Reports,
		thresholds: deps.Thresholds,
		metrics:    deps.Metrics,
		hub:        NewHub(deps.Metrics),
		cfg:        cfg,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
		IdleTimeout:  cfg.IdleTimeout.Std(),
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/v1").Subrouter()
	api.HandleFunc("/chains/{chain}/events", s.handleAppend).Methods("POST")
	api.HandleFunc("/chains/{chain}/state", s.handleState).Methods("GET")
	api.HandleFunc("/chains/{chain}/verify", s.handleVerify).Methods("GET")
	api.HandleFunc("/chains/{chain}/report", s.handleReport).Methods("GET")
	api.HandleFunc("/chains/{chain}/evidence", s.handleEvidence).Methods("POST")
	api.HandleFunc("/chains/{chain}/corroboration", s.handleCorroboration).Methods("GET")
	api.HandleFunc("/chains/{chain}/stream", s.handleStream).Methods("GET")
	api.HandleFunc("/ladder", s.handleLadder).Methods("POST")
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		log.Debug().
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler { return s.router }

type ctxKey int

const ctxKeyRequestID ctxKey = iota

func requestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying ResponseWriter so websocket upgrades
// still work through the logging middleware.
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
	}
	return hj.Hijack()
}
