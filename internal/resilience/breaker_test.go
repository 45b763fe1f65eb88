package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

func fail(context.Context) error    { return errTest }
func succeed(context.Context) error { return nil }

// clock is a manually advanced time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// transitions records OnStateChange callbacks.
type transitions struct {
	mu     sync.Mutex
	states []State
}

func (tr *transitions) record(_ string, to State) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.states = append(tr.states, to)
}

func (tr *transitions) get() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.states...)
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test"})
	if b.cfg.MaxFailures != 5 {
		t.Errorf("MaxFailures = %d, want 5", b.cfg.MaxFailures)
	}
	if b.cfg.ResetTimeout != 30*time.Second {
		t.Errorf("ResetTimeout = %v, want 30s", b.cfg.ResetTimeout)
	}
	if b.cfg.HalfOpenMax != 1 {
		t.Errorf("HalfOpenMax = %d, want 1", b.cfg.HalfOpenMax)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v, want closed", b.State())
	}
}

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3})

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, fail); !errors.Is(err, errTest) {
			t.Fatalf("call %d: err = %v, want errTest", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("fn called while breaker open")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 3})

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, succeed)
	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed (success should reset counter)", b.State())
	}
}

func TestBreaker_HalfOpenCloses(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	var tr transitions
	b := NewBreaker(BreakerConfig{
		Name:          "test",
		MaxFailures:   2,
		ResetTimeout:  time.Minute,
		HalfOpenMax:   2,
		Now:           clk.Now,
		OnStateChange: tr.record,
	})

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, fail)

	clk.Advance(59 * time.Second)
	if b.State() != StateOpen {
		t.Fatalf("state = %v before reset timeout, want open", b.State())
	}
	clk.Advance(time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v after reset timeout, want half-open", b.State())
	}

	for i := 0; i < 2; i++ {
		if err := b.Execute(ctx, succeed); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after successful probes", b.State())
	}

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	got := tr.get()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: time.Minute, Now: clk.Now})

	_ = b.Execute(ctx, fail)
	clk.Advance(time.Minute)

	if err := b.Execute(ctx, fail); !errors.Is(err, errTest) {
		t.Fatalf("probe err = %v, want errTest", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
	if err := b.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen right after re-opening", err)
	}
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: time.Minute, Now: clk.Now})

	_ = b.Execute(ctx, fail)
	clk.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Execute(ctx, succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second probe err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestBreaker_CallerCancellationNotCounted(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after caller cancellation", b.State())
	}
}

func TestBreaker_CallerDeadlineNotCountedWithClassifier(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		Name:        "test",
		MaxFailures: 1,
		IsFailure:   func(error) bool { return true },
	})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	err := b.Execute(ctx, func(ctx context.Context) error {
		return fmt.Errorf("post: %w", ctx.Err())
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after caller deadline", b.State())
	}
}

func TestBreaker_IsFailure(t *testing.T) {
	errInput := errors.New("bad input")
	b := NewBreaker(BreakerConfig{
		Name:        "test",
		MaxFailures: 1,
		IsFailure:   func(err error) bool { return !errors.Is(err, errInput) },
	})

	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func(context.Context) error { return errInput })
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed for ignored errors", b.State())
	}
}

func TestBreaker_Reset(t *testing.T) {
	ctx := context.Background()
	var tr transitions
	b := NewBreaker(BreakerConfig{Name: "test", MaxFailures: 1, ResetTimeout: time.Hour, OnStateChange: tr.record})

	_ = b.Execute(ctx, fail)
	b.Reset()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want closed after reset", b.State())
	}
	if err := b.Execute(ctx, succeed); err != nil {
		t.Fatalf("unexpected error after reset: %v", err)
	}
	if got := tr.get(); len(got) != 2 || got[1] != StateClosed {
		t.Errorf("transitions = %v, want [open closed]", got)
	}

	// Resetting a closed breaker reports nothing.
	b.Reset()
	if got := tr.get(); len(got) != 2 {
		t.Errorf("transitions after no-op reset = %v", got)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
