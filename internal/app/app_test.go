package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/linguaplay/internal/app"
	"github.com/MrWong99/linguaplay/internal/config"
	"github.com/MrWong99/linguaplay/internal/observe"
	"github.com/MrWong99/linguaplay/internal/practice"
	"github.com/MrWong99/linguaplay/pkg/provider/llm"
	llmmock "github.com/MrWong99/linguaplay/pkg/provider/llm/mock"
	"github.com/MrWong99/linguaplay/pkg/provider/stt"
	sttmock "github.com/MrWong99/linguaplay/pkg/provider/stt/mock"
)

// testConfig returns a validated config with defaults applied.
func testConfig() *config.Config {
	cfg := &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Practice: config.PracticeConfig{
			DefaultLanguage: "es",
			SessionTTL:      time.Hour,
			PruneInterval:   time.Hour,
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newApp(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithMetrics(testMetrics(t))}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return a
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestNew_BankOnly(t *testing.T) {
	t.Parallel()

	a := newApp(t, testConfig(), nil)
	if a.Service().CanTranscribe() {
		t.Error("CanTranscribe() = true without an STT provider")
	}
	if got := a.DefaultLanguage(); got != "es" {
		t.Errorf("DefaultLanguage() = %q, want es", got)
	}

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/sessions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	if got := a.Service().Sessions().Len(); got != 1 {
		t.Errorf("sessions = %d, want 1", got)
	}
}

func TestNew_WithProviders(t *testing.T) {
	t.Parallel()

	llmProv := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `{"sentence": "Le chat dort", "translation": "The cat sleeps", "pronunciation": "luh sha dor"}`,
		},
	}
	sttProv := &sttmock.Provider{Transcript: stt.Transcript{Text: "le chat dort"}}

	cfg := testConfig()
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai"}
	cfg.Providers.STT = config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:9000"}
	a := newApp(t, cfg, &app.Providers{LLM: llmProv, STT: sttProv})

	if !a.Service().CanTranscribe() {
		t.Error("CanTranscribe() = false with an STT provider")
	}

	ctx := context.Background()
	sess, err := a.Service().StartSession(ctx, "fr")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	c, err := a.Service().NextChallenge(ctx, sess.ID)
	if err != nil {
		t.Fatalf("NextChallenge: %v", err)
	}
	if c.Sentence != "Le chat dort" {
		t.Errorf("Sentence = %q, want generated sentence", c.Sentence)
	}
	if got := len(llmProv.Calls()); got != 1 {
		t.Errorf("LLM calls = %d, want 1", got)
	}

	out, err := a.Service().AttemptAudio(ctx, sess.ID, stt.Audio{Data: []byte("RIFF"), Filename: "a.wav"})
	if err != nil {
		t.Fatalf("AttemptAudio: %v", err)
	}
	if !out.Result.IsCorrect {
		t.Errorf("AttemptAudio result = %+v, want correct", out.Result)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	var closed []int
	a := newApp(t, testConfig(), nil,
		app.WithListener(ln),
		app.WithCloser(func() error { closed = append(closed, 1); return nil }),
		app.WithCloser(func() error { closed = append(closed, 2); return errors.New("ignored") }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("GET /healthz = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became reachable: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5 seconds after cancel")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown() returned error: %v", err)
	}
	if len(closed) != 2 || closed[0] != 1 || closed[1] != 2 {
		t.Errorf("closers ran as %v, want [1 2]", closed)
	}

	// Second call is a no-op.
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("second Shutdown() returned error: %v", err)
	}
	if len(closed) != 2 {
		t.Errorf("closers ran %d times after second Shutdown, want 2", len(closed))
	}
}

func TestApp_RunListenError(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "127.0.0.1:-1"
	a := newApp(t, cfg, nil)

	err := a.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "app: listen") {
		t.Errorf("Run() = %v, want listen error", err)
	}
}

func TestApp_ShutdownExpiredContext(t *testing.T) {
	t.Parallel()

	called := false
	a := newApp(t, testConfig(), nil, app.WithCloser(func() error { called = true; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Shutdown(cancelled) = %v, want context.Canceled", err)
	}
	if called {
		t.Error("closer ran after the shutdown context expired")
	}
}

func TestApp_Prune(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	a := newApp(t, testConfig(), nil, app.WithClock(clock.Now))
	ctx := context.Background()

	stale, err := a.Service().StartSession(ctx, "en")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	clock.Advance(50 * time.Minute)
	fresh, err := a.Service().StartSession(ctx, "en")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	clock.Advance(20 * time.Minute)

	if got := a.Prune(ctx); got != 1 {
		t.Fatalf("Prune() = %d, want 1", got)
	}
	if _, err := a.Service().Sessions().Get(stale.ID); err == nil {
		t.Error("stale session survived Prune")
	}
	if _, err := a.Service().Sessions().Get(fresh.ID); err != nil {
		t.Errorf("fresh session pruned: %v", err)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	old := testConfig()
	a := newApp(t, old, nil, app.WithLogLevel(&level))

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.Practice.SessionTTL = 30 * time.Minute
	next.Practice.DefaultLanguage = "de"
	next.Providers.LLM = config.ProviderEntry{Name: "ollama"}

	a.ApplyConfig(old, next)

	if got := level.Level(); got != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", got)
	}
	if got := a.SessionTTL(); got != 30*time.Minute {
		t.Errorf("SessionTTL() = %v, want 30m", got)
	}
	if got := a.DefaultLanguage(); got != "de" {
		t.Errorf("DefaultLanguage() = %q, want de", got)
	}

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	resp, err := http.Post(srv.URL+"/v1/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /v1/sessions: %v", err)
	}
	defer resp.Body.Close()
	var sess practice.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if sess.Language != "de" {
		t.Errorf("session language = %q, want reloaded default de", sess.Language)
	}
}

func TestApp_ApplyConfigUnchanged(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	level.Set(slog.LevelWarn)
	cfg := testConfig()
	a := newApp(t, cfg, nil, app.WithLogLevel(&level))

	a.ApplyConfig(cfg, testConfig())

	if got := level.Level(); got != slog.LevelWarn {
		t.Errorf("log level = %v, want untouched warn", got)
	}
	if got := a.SessionTTL(); got != time.Hour {
		t.Errorf("SessionTTL() = %v, want 1h", got)
	}
}

func TestSlogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   config.LogLevel
		want slog.Level
	}{
		{config.LogDebug, slog.LevelDebug},
		{config.LogInfo, slog.LevelInfo},
		{config.LogWarn, slog.LevelWarn},
		{config.LogError, slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := app.SlogLevel(tt.in); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
