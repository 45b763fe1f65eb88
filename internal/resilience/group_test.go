package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGroup_PrimarySuccess(t *testing.T) {
	g := NewGroup("primary", "primary", BreakerConfig{MaxFailures: 3})
	g.Add("secondary", "secondary")

	got, err := Do(context.Background(), g, func(_ context.Context, v string) (string, error) {
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "primary" {
		t.Fatalf("got %q, want primary", got)
	}
}

func TestGroup_Failover(t *testing.T) {
	g := NewGroup("primary", "primary", BreakerConfig{MaxFailures: 3})
	g.Add("secondary", "secondary")

	var tried []string
	got, err := Do(context.Background(), g, func(_ context.Context, v string) (string, error) {
		tried = append(tried, v)
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "secondary" {
		t.Fatalf("got %q, want secondary", got)
	}
	if len(tried) != 2 {
		t.Errorf("tried = %v, want [primary secondary]", tried)
	}
}

func TestGroup_AllFail(t *testing.T) {
	g := NewGroup("primary", "primary", BreakerConfig{MaxFailures: 3})
	g.Add("secondary", "secondary")

	_, err := Do(context.Background(), g, func(context.Context, string) (int, error) {
		return 0, errTest
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errTest) {
		t.Errorf("err = %v, want it to wrap the last error", err)
	}
}

func TestGroup_SkipsOpenBreaker(t *testing.T) {
	clk := newClock()
	g := NewGroup("primary", "primary", BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clk.Now})
	g.Add("secondary", "secondary")

	calls := map[string]int{}
	fn := func(_ context.Context, v string) (string, error) {
		calls[v]++
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	}

	for i := 0; i < 3; i++ {
		if _, err := Do(context.Background(), g, fn); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if calls["primary"] != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker should open)", calls["primary"])
	}
	if calls["secondary"] != 3 {
		t.Errorf("secondary calls = %d, want 3", calls["secondary"])
	}
	if s := g.Breaker("primary").State(); s != StateOpen {
		t.Errorf("primary breaker = %v, want open", s)
	}

	// After the reset timeout the primary is probed again.
	clk.Advance(time.Minute)
	if _, err := Do(context.Background(), g, fn); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if calls["primary"] != 2 {
		t.Errorf("primary calls after reset timeout = %d, want 2", calls["primary"])
	}
}

func TestGroup_CancelledStopsFailover(t *testing.T) {
	g := NewGroup("primary", "primary", BreakerConfig{})
	g.Add("secondary", "secondary")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var tried []string
	_, err := Do(ctx, g, func(ctx context.Context, v string) (string, error) {
		tried = append(tried, v)
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Errorf("cancellation should not be reported as ErrAllFailed")
	}
	if len(tried) != 1 {
		t.Errorf("tried = %v, want only the primary", tried)
	}
}

func TestGroup_Names(t *testing.T) {
	g := NewGroup(1, "a", BreakerConfig{})
	g.Add("b", 2)
	g.Add("c", 3)

	got := g.Names()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Names() = %v, want [a b c]", got)
	}
	if g.Breaker("missing") != nil {
		t.Error("Breaker(missing) should be nil")
	}
}
