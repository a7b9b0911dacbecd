// Package app wires all Vaani subsystems into a running service.
//
// The App struct owns the full lifecycle: New creates and connects every
// subsystem, Run serves HTTP traffic and the session sweeper until the
// context is cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSessionStore,
// WithHISClient, WithAuditStore). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/karunya-health/vaani/internal/audit"
	"github.com/karunya-health/vaani/internal/config"
	"github.com/karunya-health/vaani/internal/dialog"
	"github.com/karunya-health/vaani/internal/health"
	"github.com/karunya-health/vaani/internal/his"
	"github.com/karunya-health/vaani/internal/httpapi"
	"github.com/karunya-health/vaani/internal/observe"
	"github.com/karunya-health/vaani/internal/safety"
	"github.com/karunya-health/vaani/internal/session"
	"github.com/karunya-health/vaani/internal/validate"
	"github.com/karunya-health/vaani/internal/workflow"
	"github.com/karunya-health/vaani/pkg/provider/llm"
	"github.com/karunya-health/vaani/pkg/provider/stt"
	"github.com/karunya-health/vaani/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured: classification falls back to rules, and the
// transcribe/synthesize endpoints report the capability as unavailable.
// Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// App owns all subsystem lifetimes for the receptionist service.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	store       *session.Store
	his         *his.Client
	departments *validate.DepartmentResolver
	auditStore  audit.Store
	auditLog    *audit.Logger
	api         *httpapi.Server
	httpSrv     *http.Server

	// closers run in reverse registration order during Shutdown.
	closers  []func(context.Context) error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSessionStore injects a session store instead of creating one from config.
func WithSessionStore(s *session.Store) Option {
	return func(a *App) { a.store = s }
}

// WithHISClient injects a hospital backend client instead of dialling the
// configured base URL.
func WithHISClient(c *his.Client) Option {
	return func(a *App) { a.his = c }
}

// WithAuditStore injects an audit event store instead of creating one from
// config.
func WithAuditStore(s audit.Store) Option {
	return func(a *App) { a.auditStore = s }
}

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry). Use Option
// values to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "vaani"})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, otelShutdown)

	if a.store == nil {
		a.store = session.NewStore(session.StoreConfig{
			IdleTimeout:   cfg.Session.IdleTimeout,
			MaxTurns:      cfg.Session.MaxTurns,
			SweepInterval: cfg.Session.SweepInterval,
		})
	}

	if a.his == nil {
		a.his, err = his.New(cfg.HIS)
		if err != nil {
			return nil, fmt.Errorf("his client: %w", err)
		}
	}

	if err := a.initAudit(ctx); err != nil {
		return nil, err
	}

	a.departments = validate.NewDepartmentResolver(cfg.Hospital.DepartmentAliases)

	var classifierLLM dialog.LLM
	var polisher *dialog.Polisher
	if providers.LLM != nil {
		classifierLLM = providers.LLM
		polisher = dialog.NewPolisher(providers.LLM)
	}

	a.api = httpapi.NewServer(httpapi.Config{
		Store:      a.store,
		Engine:     workflow.NewDefaultEngine(a.store, a.his, cfg.Hospital.Name),
		Classifier: dialog.NewClassifier(classifierLLM, a.departments),
		Guardrails: safety.New(safetyConfig(cfg.Safety)),
		STT:        providers.STT,
		TTS:        providers.TTS,
		Polisher:   polisher,
		Audit:      a.auditLog,
		Health:     health.New(health.HIS(a.his), health.Sessions(a.store)),
		Hospital:   cfg.Hospital.Name,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// initAudit builds the audit store (postgres when a DSN is configured,
// in-memory ring otherwise) and its sealing logger.
func (a *App) initAudit(ctx context.Context) error {
	if a.auditStore == nil {
		if dsn := a.cfg.Audit.PostgresDSN; dsn != "" {
			store, err := audit.NewPostgresStore(ctx, dsn)
			if err != nil {
				return fmt.Errorf("audit store: %w", err)
			}
			a.auditStore = store
		} else {
			a.auditStore = audit.NewMemoryStore(a.cfg.Audit.RingSize)
		}
	}
	a.closers = append(a.closers, func(context.Context) error {
		a.auditStore.Close()
		return nil
	})

	var sealer *audit.Sealer
	if key := a.cfg.Audit.EncryptionKey; key != "" {
		var err error
		sealer, err = audit.NewSealer(key)
		if err != nil {
			return fmt.Errorf("audit sealer: %w", err)
		}
	}
	a.auditLog = audit.NewLogger(a.auditStore, sealer)
	return nil
}

// Router exposes the HTTP handler, mainly for httptest in integration tests.
func (a *App) Router() http.Handler {
	return a.api.Router()
}

// Run serves until ctx is cancelled or the listener fails. The session
// sweeper runs alongside the server and stops with it.
func (a *App) Run(ctx context.Context) error {
	go a.store.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		errCh <- err
	}()

	slog.Info("vaani listening",
		"addr", a.cfg.Server.ListenAddr,
		"hospital", a.cfg.Hospital.Name,
		"tls", a.cfg.Server.TLS != nil,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ApplyConfig applies the hot-reloadable parts of a config change: safety
// thresholds, department aliases and the RBAC endpoint lists. Everything
// else (listen address, providers, credentials) needs a restart and is
// ignored here.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}
	if d.SafetyChanged {
		a.api.SetGuardrails(safety.New(safetyConfig(new.Safety)))
		slog.Info("safety policy reloaded")
	}
	if d.AliasesChanged {
		a.departments.SetAliases(new.Hospital.DepartmentAliases)
		slog.Info("department aliases reloaded", "extra_aliases", len(new.Hospital.DepartmentAliases))
	}
	if d.RBACChanged {
		if err := a.his.ReplacePolicy(new.HIS.AllowedEndpoints, new.HIS.DeniedEndpoints); err != nil {
			slog.Error("rbac policy not reloaded", "error", err)
		} else {
			slog.Info("rbac policy reloaded")
		}
	}
	a.cfg = new
}

// Shutdown stops the HTTP server gracefully and closes all subsystems in
// reverse initialisation order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// safetyConfig maps the YAML safety section onto the guardrails config.
func safetyConfig(sc config.SafetyConfig) safety.Config {
	return safety.Config{
		HighConfidence:         sc.HighConfidence,
		MediumConfidence:       sc.MediumConfidence,
		LowConfidence:          sc.LowConfidence,
		IntentThresholds:       sc.IntentOverrides,
		ExtraEmergencyKeywords: sc.ExtraEmergencyKeywords,
		ExtraHandoffKeywords:   sc.ExtraHandoffKeywords,
	}
}
