// Package challenge supplies the phrases a learner is asked to say.
//
// A [Source] produces one [Challenge] per request. Two sources are provided:
// [Bank], a static in-process phrase list that never fails, and [Generator],
// which asks an LLM for a fresh sentence and falls back to a Bank whenever the
// model is unavailable or its answer is unusable.
package challenge

import (
	"context"
	"strings"

	"github.com/MrWong99/linguaplay/pkg/scoring"
)

// Challenge is one phrase to pronounce.
type Challenge struct {
	// Sentence is the target phrase in the practice language.
	Sentence string `json:"sentence"`

	// Translation is an English rendering of Sentence.
	Translation string `json:"translation"`

	// Pronunciation is a rough phonetic guide for English speakers.
	Pronunciation string `json:"pronunciation"`

	// Language is the practice language code.
	Language string `json:"language"`

	// GrammarType names the sentence category, e.g. "passé".
	GrammarType string `json:"grammar_type"`

	// Hint is a short grammar reminder for GrammarType.
	Hint string `json:"hint"`

	// Vocab is the first word of Sentence, collected on a correct attempt.
	Vocab string `json:"vocab"`

	// Tier is the difficulty the challenge is scored at.
	Tier scoring.Tier `json:"tier"`
}

// Prompt returns the instruction shown to the learner.
func (c Challenge) Prompt() string {
	return `Say: "` + c.Sentence + `"`
}

// Request describes the challenge a caller wants.
type Request struct {
	// Language is the practice language code. Unknown codes fall back to
	// English.
	Language string

	// Tier is the difficulty to aim for.
	Tier scoring.Tier

	// Exclude lists sentences already used in the session. Comparison is on
	// the normalised form, so case and punctuation differences do not matter.
	Exclude []string
}

// Source produces challenges.
//
// Implementations must be safe for concurrent use.
type Source interface {
	Next(ctx context.Context, req Request) (Challenge, error)
}

// excludeSet builds a lookup of normalised sentences.
func excludeSet(sentences []string) map[string]struct{} {
	set := make(map[string]struct{}, len(sentences))
	for _, s := range sentences {
		set[scoring.Normalize(s)] = struct{}{}
	}
	return set
}

// finish fills the derived fields of c for lang.
func finish(c Challenge, lang Language, tier scoring.Tier) Challenge {
	c.Sentence = strings.TrimSpace(c.Sentence)
	c.Language = lang.Code
	c.Tier = tier
	c.Hint = lang.Hint(c.GrammarType)
	if c.Pronunciation == "" {
		c.Pronunciation = c.Sentence
	}
	if words := strings.Fields(c.Sentence); len(words) > 0 {
		c.Vocab = words[0]
	}
	return c
}
