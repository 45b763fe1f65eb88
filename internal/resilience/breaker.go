// Package resilience guards provider calls with circuit breakers and ordered
// failover.
//
// [Breaker] is a three-state breaker (closed → open → half-open) that stops
// calling a backend after repeated failures. [Group] chains a primary and any
// number of fallbacks, each behind its own breaker. [LLM] and [STT] expose a
// Group as the matching provider interface so the rest of the application
// never sees the failover.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] when the breaker is open
// and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [Breaker].
type BreakerConfig struct {
	// Name labels log lines and state-change callbacks.
	Name string

	// MaxFailures is the number of consecutive failures that open the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of successful probes needed to close the
	// breaker, and the cap on concurrent probes. Default: 1.
	HalfOpenMax int

	// IsFailure classifies errors. Errors for which it returns false are
	// passed through without counting against the breaker. It is not
	// consulted once the caller's context is done. Default: every error.
	IsFailure func(error) bool

	// OnStateChange, if set, is called after every transition. It runs
	// outside the breaker's lock.
	OnStateChange func(name string, to State)

	// Now is the time source. Default: time.Now.
	Now func() time.Time
}

// Breaker implements the three-state circuit breaker pattern.
type Breaker struct {
	cfg BreakerConfig

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	probes          int
	probeSuccesses  int
}

// NewBreaker creates a [Breaker]. Zero-value config fields are replaced with
// defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Name returns the breaker's label.
func (b *Breaker) Name() string { return b.cfg.Name }

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, notify, err := b.admit()
	b.notify(notify)
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.notify(b.record(ctx, err, probe))
	return err
}

// admit decides whether a call may proceed and whether it is a half-open
// probe. A non-negative notify is a state to report after unlocking.
func (b *Breaker) admit() (probe bool, notify State, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	notify = -1
	if b.state == StateOpen {
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, notify, ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probes = 0
		b.probeSuccesses = 0
		notify = StateHalfOpen
		slog.Info("circuit breaker half-open", "name", b.cfg.Name)
	}
	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.HalfOpenMax {
			return false, notify, ErrCircuitOpen
		}
		b.probes++
		return true, notify, nil
	}
	return false, notify, nil
}

// record updates the counters after a call.
func (b *Breaker) record(ctx context.Context, err error, probe bool) State {
	failed := err != nil && b.isFailure(ctx, err)

	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		if b.state != StateHalfOpen {
			// Another probe already decided the outcome.
			return -1
		}
		if failed {
			return b.open("probe failed")
		}
		if err != nil {
			// Not counted; free the probe slot.
			b.probes--
			return -1
		}
		b.probeSuccesses++
		if b.probeSuccesses >= b.cfg.HalfOpenMax {
			b.state = StateClosed
			b.consecutiveFail = 0
			slog.Info("circuit breaker closed", "name", b.cfg.Name)
			return StateClosed
		}
		return -1
	}

	if !failed {
		if err == nil {
			b.consecutiveFail = 0
		}
		return -1
	}
	b.consecutiveFail++
	if b.state == StateClosed && b.consecutiveFail >= b.cfg.MaxFailures {
		return b.open("too many consecutive failures")
	}
	return -1
}

// open trips the breaker. Must be called with b.mu held.
func (b *Breaker) open(reason string) State {
	b.state = StateOpen
	b.openedAt = b.cfg.Now()
	b.consecutiveFail = 0
	slog.Warn("circuit breaker opened", "name", b.cfg.Name, "reason", reason)
	return StateOpen
}

// isFailure reports whether err counts against the backend. A call cut short
// by the caller's context (cancelled or past its deadline) never does.
func (b *Breaker) isFailure(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if b.cfg.IsFailure != nil {
		return b.cfg.IsFailure(err)
	}
	return true
}

func (b *Breaker) notify(s State) {
	if s >= 0 && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, s)
	}
}

// State returns the current [State]. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [Breaker.Execute].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [StateClosed].
func (b *Breaker) Reset() {
	b.mu.Lock()
	changed := b.state != StateClosed
	b.state = StateClosed
	b.consecutiveFail = 0
	b.probes = 0
	b.probeSuccesses = 0
	b.mu.Unlock()

	if changed {
		slog.Info("circuit breaker manually reset", "name", b.cfg.Name)
		b.notify(StateClosed)
	}
}
