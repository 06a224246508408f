// Package daemon serves the progression engine over HTTP as JSON RPCs.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/felixgeelhaar/trilhas/internal/auth"
	"github.com/felixgeelhaar/trilhas/internal/domain"
	"github.com/felixgeelhaar/trilhas/internal/progression"
)

// Engine is the progression surface the server exposes.
type Engine interface {
	GetTrails(ctx context.Context, accountID, locale string) ([]progression.TrailSummary, error)
	GetTrail(ctx context.Context, accountID, trailID, locale string) (*progression.TrailDetail, error)
	GetBlock(ctx context.Context, accountID, blockID, locale string) (*progression.BlockDetail, error)
	GetPhase(ctx context.Context, accountID, phaseID, locale string) (*progression.PhaseDetail, error)
	GetNextBlock(ctx context.Context, accountID, blockID, locale string) (*progression.NextBlockSummary, error)
	SubmitAttempt(ctx context.Context, accountID, challengeID string, answer json.RawMessage, locale string) (*progression.SubmitResult, error)
	GrantEntitlement(ctx context.Context, accountID, productID string) error
	ResetAccount(ctx context.Context, accountID string) (domain.ResetCounts, error)
	Ping(ctx context.Context) error
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	CORSOrigins    []string
	AdminEnabled   bool
	RatePerSecond  int
	RateBurst      int
	Version        string
	Logger         *slog.Logger
}

// Server represents the trilhas HTTP server
type Server struct {
	cfg     ServerConfig
	engine  Engine
	auth    *auth.Service
	limiter ratelimit.RateLimiter
	logger  *slog.Logger
	router  chi.Router
	server  *http.Server
}

// NewServer creates a server for engine.
func NewServer(engine Engine, authn *auth.Service, cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 20 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 20
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = cfg.RatePerSecond * 2
	}

	s := &Server{
		cfg:    cfg,
		engine: engine,
		auth:   authn,
		logger: cfg.Logger,
		limiter: ratelimit.New(&ratelimit.Config{
			Rate:     cfg.RatePerSecond,
			Burst:    cfg.RateBurst,
			Interval: time.Second,
		}),
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(correlationIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoveryMiddleware(s.logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", CorrelationIDHeader},
		ExposedHeaders: []string{CorrelationIDHeader, "Retry-After"},
		MaxAge:         300,
	}).Handler)
	r.Use(chimiddleware.Timeout(s.cfg.RequestTimeout))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Route("/rpc", func(r chi.Router) {
			r.Use(authMiddleware(s.auth))
			r.Use(rateLimitMiddleware(s.limiter))

			r.Post("/get_trails", s.handleGetTrails)
			r.Post("/get_trail", s.handleGetTrail)
			r.Post("/get_block", s.handleGetBlock)
			r.Post("/get_phase", s.handleGetPhase)
			r.Post("/get_next_block", s.handleGetNextBlock)
			r.Post("/submit_challenge_attempt", s.handleSubmit)

			r.Group(func(r chi.Router) {
				r.Use(adminMiddleware(s.cfg.AdminEnabled))
				r.Post("/grant_entitlement", s.handleGrant)
				r.Post("/reset_account", s.handleReset)
			})
		})
	})
	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting trilhas daemon", "addr", s.server.Addr, "admin", s.cfg.AdminEnabled)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon...")
	if err := s.limiter.Close(); err != nil {
		s.logger.Warn("failed to close rate limiter", "error", err)
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   s.cfg.Version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func accountOf(r *http.Request) string {
	p, _ := PrincipalFrom(r.Context())
	return p.AccountID
}

// writeRead writes a read result; NotFound renders as null.
func writeRead[T any](w http.ResponseWriter, r *http.Request, v T, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetTrails(w http.ResponseWriter, r *http.Request) {
	var req localeRequest
	if err := decodeRPC(r, &req); err != nil {
		writeError(w, r, err, false)
		return
	}
	trails, err := s.engine.GetTrails(r.Context(), accountOf(r), req.Locale)
	writeRead(w, r, trails, err)
}

func (s *Server) handleGetTrail(w http.ResponseWriter, r *http.Request) {
	var req trailRequest
	if err := decodeRPC(r, &req); err != nil {
		writeError(w, r, err, false)
		return
	}
	trail, err := s.engine.GetTrail(r.Context(), accountOf(r), req.TrailID, req.Locale)
	writeRead(w, r, trail, err)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := decodeRPC(r, &req); err != nil {
		writeError(w, r, err, false)
		return
	}
	block, err := s.engine.GetBlock(r.Context(), accountOf(r), req.BlockID, req.Locale)
	writeRead(w, r, block, err)
}

func (s *Server) handleGetPhase(w http.ResponseWriter, r *http.Request) {
	var req phaseRequest
	if err := decodeRPC(r, &req); err != nil {
		writeError(w, r, err, false)
		return
	}
	phase, err := s.engine.GetPhase(r.Context(), accountOf(r), req.PhaseID, req.Locale)
	writeRead(w, r, phase, err)
}

func (s *Server) handleGetNextBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := decodeRPC(r, &req); err != nil {
		writeError(w, r, err, false)
		return
	}
	next, err := s.engine.GetNextBlock(r.Context(), accountOf(r), req.BlockID, req.Locale)
	writeRead(w, r, next, err)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeRPC(r, &req); err != nil {
		writeError(w, r, err, false)
		return
	}
	res, err := s.engine.SubmitAttempt(r.Context(), accountOf(r), req.ChallengeID, req.Answers, req.Locale)
	if err != nil {
		writeError(w, r, err, false)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeRPC(r, &req); err != nil {
		writeError(w, r, err, true)
		return
	}
	if err := s.engine.GrantEntitlement(r.Context(), req.AccountID, req.ProductID); err != nil {
		writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"granted": true})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeRPC(r, &req); err != nil {
		writeError(w, r, err, true)
		return
	}
	counts, err := s.engine.ResetAccount(r.Context(), req.AccountID)
	if err != nil {
		writeError(w, r, err, true)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
