// Package api exposes the practice service over HTTP and websockets.
//
// Routes:
//
//	POST   /v1/score                      score a phrase/transcript pair
//	POST   /v1/sessions                   start a practice session
//	GET    /v1/sessions/{id}              read a session
//	DELETE /v1/sessions/{id}              end a session
//	POST   /v1/sessions/{id}/challenge    fetch the next challenge
//	POST   /v1/sessions/{id}/attempts     submit a text or audio attempt
//	GET    /v1/live                       websocket live scoring
//	GET    /healthz, /readyz              health probes
//	GET    /metrics                       Prometheus exposition
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/linguaplay/internal/challenge"
	"github.com/MrWong99/linguaplay/internal/health"
	"github.com/MrWong99/linguaplay/internal/observe"
	"github.com/MrWong99/linguaplay/internal/practice"
)

const (
	// maxJSONBody caps JSON request bodies.
	maxJSONBody = 1 << 20

	// maxAudioBody caps multipart audio uploads.
	maxAudioBody = 25 << 20
)

// Option is a functional option for [New].
type Option func(*Server)

// WithMetrics sets the metrics recorder used by the request middleware.
// Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler sets the handler mounted at /metrics. Defaults to
// [promhttp.Handler] on the default Prometheus registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithHealthCheckers sets the readiness checkers run by /readyz.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(s *Server) { s.checkers = checkers }
}

// WithDefaultLanguage sets the language used when a session is created
// without one. lang is called per request so hot-reloaded values apply.
func WithDefaultLanguage(lang func() string) Option {
	return func(s *Server) { s.defaultLanguage = lang }
}

// Server is the HTTP surface of the practice service. It implements
// [http.Handler].
type Server struct {
	svc             *practice.Service
	metrics         *observe.Metrics
	metricsHandler  http.Handler
	checkers        []health.Checker
	defaultLanguage func() string
	router          chi.Router
}

var _ http.Handler = (*Server)(nil)

// New builds the router for svc.
func New(svc *practice.Service, opts ...Option) *Server {
	s := &Server{
		svc:             svc,
		defaultLanguage: func() string { return challenge.DefaultLanguage },
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	health.New(s.checkers...).Register(r)
	r.Method(http.MethodGet, "/metrics", s.metricsHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/score", s.score)
		r.Get("/live", s.live)
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.deleteSession)
				r.Post("/challenge", s.nextChallenge)
				r.Post("/attempts", s.attempt)
			})
		})
	})
	return r
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
