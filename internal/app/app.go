// Package app wires all LinguaPlay subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP and sweeps idle sessions, and Shutdown tears
// everything down in order.
//
// For testing, inject a listener, clock or metrics via functional options.
// When an option is not provided, New creates real implementations from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/linguaplay/internal/api"
	"github.com/MrWong99/linguaplay/internal/challenge"
	"github.com/MrWong99/linguaplay/internal/config"
	"github.com/MrWong99/linguaplay/internal/health"
	"github.com/MrWong99/linguaplay/internal/observe"
	"github.com/MrWong99/linguaplay/internal/practice"
	"github.com/MrWong99/linguaplay/pkg/provider/llm"
	"github.com/MrWong99/linguaplay/pkg/provider/stt"
)

// drainTimeout bounds how long Run waits for in-flight requests after its
// context is cancelled.
const drainTimeout = 10 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar
	listener       net.Listener
	now            func() time.Time

	service *practice.Service
	handler http.Handler
	server  *http.Server

	// Hot-reloadable settings.
	sessionTTL      atomic.Int64
	defaultLanguage atomic.Pointer[string]

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler sets the handler served at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets [App.ApplyConfig] change the log level at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithListener serves on ln instead of listening on server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithClock replaces the time source used for session timestamps and pruning.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// WithCloser registers fn to run during Shutdown after the HTTP server has
// drained.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). cfg must already
// be validated and have defaults applied.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.sessionTTL.Store(int64(cfg.Practice.SessionTTL))
	lang := cfg.Practice.DefaultLanguage
	a.defaultLanguage.Store(&lang)

	// ── 1. Challenge source ──────────────────────────────────────────────
	source := a.challengeSource()

	// ── 2. Practice service ──────────────────────────────────────────────
	svcOpts := []practice.Option{
		practice.WithMetrics(a.metrics),
		practice.WithClock(a.now),
	}
	if providers.STT != nil {
		svcOpts = append(svcOpts, practice.WithTranscriber(providers.STT, providerLabel(cfg.Providers.STT.Name, "stt")))
	}
	a.service = practice.NewService(source, svcOpts...)

	// ── 3. HTTP surface ──────────────────────────────────────────────────
	apiOpts := []api.Option{
		api.WithMetrics(a.metrics),
		api.WithDefaultLanguage(a.DefaultLanguage),
		api.WithHealthCheckers(
			health.Scorer(),
			health.Sessions(a.service.Sessions().Len),
		),
	}
	if a.metricsHandler != nil {
		apiOpts = append(apiOpts, api.WithMetricsHandler(a.metricsHandler))
	}
	a.handler = api.New(a.service, apiOpts...)
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	observe.Logger(ctx).Info("app initialised",
		"llm", cfg.Providers.LLM.Name,
		"stt", cfg.Providers.STT.Name,
		"default_language", lang,
		"session_ttl", cfg.Practice.SessionTTL,
	)
	return a, nil
}

// challengeSource returns the LLM-backed generator when an LLM is
// configured, otherwise the built-in bank.
func (a *App) challengeSource() challenge.Source {
	bank := challenge.NewBank()
	if a.providers.LLM == nil {
		return bank
	}
	return challenge.NewGenerator(a.providers.LLM, bank,
		challenge.WithMetrics(a.metrics),
		challenge.WithProviderName(providerLabel(a.cfg.Providers.LLM.Name, "llm")),
	)
}

func providerLabel(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// Handler returns the application's HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Service returns the practice service.
func (a *App) Service() *practice.Service { return a.service }

// DefaultLanguage returns the current default session language.
func (a *App) DefaultLanguage() string { return *a.defaultLanguage.Load() }

// SessionTTL returns the current idle-session lifetime.
func (a *App) SessionTTL() time.Duration { return time.Duration(a.sessionTTL.Load()) }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and sweeps idle sessions until ctx is cancelled or the
// server fails. On cancellation the server is drained for up to
// drainTimeout and Run returns context.Canceled (or the underlying cause).
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.server.Addr)
		if err != nil {
			return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		a.pruneLoop(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), drainTimeout)
		defer cancel()
		if err := a.server.Shutdown(drainCtx); err != nil {
			slog.Warn("http drain incomplete", "err", err)
		}
		return nil
	})

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server and runs closers in registration order. It
// respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete", "sessions", a.service.Sessions().Len())
	})
	return shutdownErr
}
