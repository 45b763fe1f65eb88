// Package practice runs pronunciation practice sessions: it hands out
// challenges, scores learner attempts, and tracks score and level progress.
package practice

import (
	"slices"
	"time"

	"github.com/MrWong99/linguaplay/internal/challenge"
	"github.com/MrWong99/linguaplay/pkg/scoring"
)

const (
	// pointsPerLevel is multiplied by the current level for every correct
	// attempt.
	pointsPerLevel = 10

	// vocabPerLevel is how many collected words unlock the next level.
	vocabPerLevel = 3
)

// TierForLevel maps a session level to the scoring tier: levels 1–3 are
// easy, 4–6 medium, and 7 and above hard.
func TierForLevel(level int) scoring.Tier {
	switch {
	case level < 4:
		return scoring.TierEasy
	case level < 7:
		return scoring.TierMedium
	default:
		return scoring.TierHard
	}
}

// Session is the progress of one learner in one language.
type Session struct {
	ID             string               `json:"id"`
	Language       string               `json:"language"`
	Score          int                  `json:"score"`
	Level          int                  `json:"level"`
	VocabCollected int                  `json:"vocab_collected"`
	Attempts       int                  `json:"attempts"`
	Correct        int                  `json:"correct"`
	Vocab          []string             `json:"vocab,omitempty"`
	Used           []string             `json:"used,omitempty"`
	Current        *challenge.Challenge `json:"current,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Tier returns the scoring tier for the session's current level.
func (s *Session) Tier() scoring.Tier {
	return TierForLevel(s.Level)
}

// clone returns a deep copy so callers never alias store state.
func (s *Session) clone() Session {
	c := *s
	c.Vocab = slices.Clone(s.Vocab)
	c.Used = slices.Clone(s.Used)
	if s.Current != nil {
		cur := *s.Current
		c.Current = &cur
	}
	return c
}

// apply updates the session for a scored attempt on the current challenge
// and returns the points awarded and whether the level increased.
//
// A correct attempt consumes the current challenge, earns 10 points per
// level (at the level held before the attempt), collects the challenge word
// and raises the level to VocabCollected/3 + 1 when that is higher. An
// incorrect attempt only counts the try; the challenge stays current.
func (s *Session) apply(r scoring.Result, now time.Time) (points int, leveledUp bool) {
	s.Attempts++
	s.UpdatedAt = now
	if !r.IsCorrect {
		return 0, false
	}

	s.Correct++
	points = pointsPerLevel * s.Level
	s.Score += points
	s.VocabCollected++
	if s.Current != nil {
		if s.Current.Vocab != "" {
			s.Vocab = append(s.Vocab, s.Current.Vocab)
		}
		s.Used = append(s.Used, s.Current.Sentence)
		s.Current = nil
	}
	if lvl := s.VocabCollected/vocabPerLevel + 1; lvl > s.Level {
		s.Level = lvl
		leveledUp = true
	}
	return points, leveledUp
}
