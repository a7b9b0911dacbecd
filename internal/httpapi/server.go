// Package httpapi exposes the receptionist over HTTP: call setup, the
// per-turn conversation endpoint, transcription and synthesis, and session
// inspection. Every handler speaks JSON; error bodies always carry
// success=false so thin voice-gateway clients can branch on one field.
package httpapi

import (
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karunya-health/vaani/internal/audit"
	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/health"
	"github.com/karunya-health/vaani/internal/observe"
	"github.com/karunya-health/vaani/internal/safety"
	"github.com/karunya-health/vaani/internal/session"
	"github.com/karunya-health/vaani/internal/workflow"
	"github.com/karunya-health/vaani/pkg/provider/stt"
	"github.com/karunya-health/vaani/pkg/provider/tts"
)

// Config carries the collaborators a [Server] needs. Store, Engine and
// Classifier are required; the rest degrade gracefully when absent
// (default safety policy, no audio, no audit trail, no readiness checks).
type Config struct {
	Store      *session.Store
	Engine     *workflow.Engine
	Classifier dialog.Classifier
	Guardrails *safety.Guardrails

	STT stt.Provider
	TTS tts.Provider

	// Polisher optionally rewrites workflow replies in a warmer spoken
	// register. Nil disables polishing.
	Polisher *dialog.Polisher

	Audit   *audit.Logger
	Metrics *observe.Metrics
	Health  *health.Handler

	// Hospital is the facility name spoken in greetings.
	Hospital string

	// CORSOrigins lists allowed browser origins for the portal channel.
	CORSOrigins []string

	// Now is the clock used for greetings. Defaults to time.Now.
	Now func() time.Time
}

// Server holds the HTTP handler state. Construct with [NewServer], mount
// with [Server.Router].
type Server struct {
	store      *session.Store
	engine     *workflow.Engine
	classifier dialog.Classifier
	guards     atomic.Pointer[safety.Guardrails]
	stt        stt.Provider
	tts        tts.Provider
	polisher   *dialog.Polisher
	audit      *audit.Logger
	metrics    *observe.Metrics
	health     *health.Handler
	hospital   string
	cors       []string
	now        func() time.Time
}

// NewServer builds a Server from cfg. A nil Metrics falls back to the
// process-wide default instruments; a nil Audit logger is a valid no-op.
func NewServer(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Guardrails == nil {
		cfg.Guardrails = safety.New(safety.Config{})
	}
	s := &Server{
		store:      cfg.Store,
		engine:     cfg.Engine,
		classifier: cfg.Classifier,
		stt:        cfg.STT,
		tts:        cfg.TTS,
		polisher:   cfg.Polisher,
		audit:      cfg.Audit,
		metrics:    cfg.Metrics,
		health:     cfg.Health,
		hospital:   cfg.Hospital,
		cors:       cfg.CORSOrigins,
		now:        cfg.Now,
	}
	s.guards.Store(cfg.Guardrails)
	return s
}

// SetGuardrails swaps the safety policy for all subsequent turns. Called by
// the config hot-reload path; in-flight turns finish on the old policy.
func (s *Server) SetGuardrails(g *safety.Guardrails) {
	if g != nil {
		s.guards.Store(g)
	}
}

// Router assembles the chi router with metrics middleware, CORS, and all
// API routes.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(observe.Middleware(s.metrics))
	if len(s.cors) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cors,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Post("/voice/call", s.handleStartCall)
	r.Post("/conversation/process", s.handleProcess)
	r.Post("/voice/transcribe", s.handleTranscribe)
	r.Post("/voice/synthesize", s.handleSynthesize)

	r.Get("/session/{id}", s.handleGetSession)
	r.Delete("/session/{id}", s.handleDeleteSession)

	r.Get("/health", s.health.Readyz)
	r.Get("/healthz", s.health.Healthz)
	r.Get("/readyz", s.health.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
