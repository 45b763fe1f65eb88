package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] failed or had an
// open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

type member[T any] struct {
	value   T
	breaker *Breaker
}

// Group holds a primary value and ordered fallbacks of the same type, each
// behind its own [Breaker]. Add fallbacks before the group is shared.
type Group[T any] struct {
	members []member[T]
	cfg     BreakerConfig
}

// NewGroup creates a [Group] with primary as the first member. cfg is the
// template for every member's breaker; its Name is replaced per member.
func NewGroup[T any](primary T, primaryName string, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback. Fallbacks are tried in the order they are added.
func (g *Group[T]) Add(name string, v T) {
	cfg := g.cfg
	cfg.Name = name
	g.members = append(g.members, member[T]{value: v, breaker: NewBreaker(cfg)})
}

// Names returns the member names in trial order.
func (g *Group[T]) Names() []string {
	names := make([]string, len(g.members))
	for i, m := range g.members {
		names[i] = m.breaker.Name()
	}
	return names
}

// Breaker returns the breaker of the named member, or nil.
func (g *Group[T]) Breaker(name string) *Breaker {
	for _, m := range g.members {
		if m.breaker.Name() == name {
			return m.breaker
		}
	}
	return nil
}

// Do calls fn on each member in order until one succeeds. Members with an
// open breaker are skipped. Errors the breaker does not count as failures
// (bad input, caller cancellation) are returned immediately. When every
// member fails the error wraps both [ErrAllFailed] and the last member's
// error.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, m := range g.members {
		var result R
		err := m.breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			result, err = fn(ctx, m.value)
			return err
		})
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrCircuitOpen) && !m.breaker.isFailure(ctx, err) {
			return zero, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", m.breaker.Name())
		} else {
			slog.Warn("provider failed, trying next", "provider", m.breaker.Name(), "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
