package health

import (
	"context"
	"fmt"

	"github.com/MrWong99/linguaplay/pkg/scoring"
)

// selfTestPhrase is scored against itself by [Scorer].
const selfTestPhrase = "Je suis allé au trésor"

// Scorer returns a checker that scores a fixed phrase against itself and
// fails unless the result is a perfect correct match.
func Scorer() Checker {
	return Checker{
		Name: "scorer",
		Check: func(context.Context) error {
			r := scoring.Score(selfTestPhrase, selfTestPhrase, scoring.TierHard)
			if !r.IsCorrect || r.WordAccuracy != 1 || r.CharacterSimilarity != 1 {
				return fmt.Errorf("self-test scored %+v", r)
			}
			return nil
		},
	}
}

// Sessions returns a checker that fails when count does not return before
// the check deadline, which happens when the session store is wedged.
func Sessions(count func() int) Checker {
	return Checker{
		Name: "sessions",
		Check: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				count()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("session store unresponsive: %w", ctx.Err())
			}
		},
	}
}
