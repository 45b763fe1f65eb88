// Package scoring decides whether a spoken transcript is close enough to the
// phrase a learner was asked to say.
//
// The scorer compares the two strings at two granularities:
//
//  1. Word level: expected and heard words are aligned by position and each
//     pair counts as a match when its edit-distance similarity exceeds
//     [WordMatchThreshold].
//
//  2. Character level: the full normalised strings are compared with the same
//     edit-distance similarity.
//
// A [Tier] selects the minimum word accuracy and character similarity the
// transcript must reach. Both minimums must be met.
//
// [Score] is a pure function. It holds no state, performs no I/O and is safe
// to call from any number of goroutines at once.
package scoring

import (
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// WordMatchThreshold is the per-word similarity a heard word must exceed to
// count as a match for the expected word at the same position.
const WordMatchThreshold = 0.7

// Tier selects how strict a match must be.
type Tier string

const (
	TierEasy   Tier = "easy"
	TierMedium Tier = "medium"
	TierHard   Tier = "hard"
)

// IsValid reports whether t is a recognised tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierEasy, TierMedium, TierHard:
		return true
	}
	return false
}

// ParseTier converts s to a [Tier]. Unknown or empty values map to
// [TierEasy], the most lenient tier.
func ParseTier(s string) Tier {
	t := Tier(s)
	if !t.IsValid() {
		return TierEasy
	}
	return t
}

// Thresholds are the acceptance minimums for a [Tier].
type Thresholds struct {
	MinWordAccuracy        float64 `json:"min_word_accuracy"`
	MinCharacterSimilarity float64 `json:"min_character_similarity"`
}

var thresholds = map[Tier]Thresholds{
	TierEasy:   {MinWordAccuracy: 0.60, MinCharacterSimilarity: 0.55},
	TierMedium: {MinWordAccuracy: 0.75, MinCharacterSimilarity: 0.70},
	TierHard:   {MinWordAccuracy: 0.85, MinCharacterSimilarity: 0.80},
}

// ThresholdsFor returns the acceptance minimums for t. Unknown tiers get the
// [TierEasy] minimums.
func ThresholdsFor(t Tier) Thresholds {
	if th, ok := thresholds[t]; ok {
		return th
	}
	return thresholds[TierEasy]
}

// WordMatch is the comparison of one expected word against the heard word at
// the same position.
type WordMatch struct {
	// Expected is the normalised word from the phrase.
	Expected string `json:"expected"`

	// Heard is the normalised transcript word at the same position, or empty
	// when the transcript is shorter than the phrase.
	Heard string `json:"heard"`

	// Similarity is the edit-distance similarity of Expected and Heard.
	Similarity float64 `json:"similarity"`

	// Matched is true when Similarity exceeds [WordMatchThreshold].
	Matched bool `json:"matched"`

	// SoundsAlike is true when the two words share a Double Metaphone code.
	// It is a feedback hint only and never changes the verdict.
	SoundsAlike bool `json:"sounds_alike"`
}

// Result is the verdict for one phrase/transcript pair.
type Result struct {
	IsCorrect           bool        `json:"is_correct"`
	WordAccuracy        float64     `json:"word_accuracy"`
	CharacterSimilarity float64     `json:"character_similarity"`
	MatchedWordCount    int         `json:"matched_word_count"`
	TotalWordCount      int         `json:"total_word_count"`
	Words               []WordMatch `json:"words,omitempty"`
}

// Score compares transcript against phrase at the strictness selected by tier.
//
// Empty or punctuation-only inputs are valid: an expected phrase with no
// words yields zero word accuracy and is never correct, and an empty
// transcript against a non-empty phrase yields zero on both metrics.
func Score(phrase, transcript string, tier Tier) Result {
	want := Normalize(phrase)
	got := Normalize(transcript)

	wantWords := Tokenize(want)
	gotWords := Tokenize(got)

	res := Result{
		TotalWordCount: len(wantWords),
		Words:          make([]WordMatch, 0, len(wantWords)),
	}

	for i, w := range wantWords {
		wm := WordMatch{Expected: w}
		if i < len(gotWords) {
			wm.Heard = gotWords[i]
			wm.Similarity = Similarity(w, wm.Heard)
			wm.Matched = wm.Similarity > WordMatchThreshold
			wm.SoundsAlike = soundsAlike(w, wm.Heard)
		}
		if wm.Matched {
			res.MatchedWordCount++
		}
		res.Words = append(res.Words, wm)
	}

	if res.TotalWordCount > 0 {
		res.WordAccuracy = float64(res.MatchedWordCount) / float64(res.TotalWordCount)
	}
	res.CharacterSimilarity = Similarity(want, got)

	th := ThresholdsFor(tier)
	res.IsCorrect = res.WordAccuracy >= th.MinWordAccuracy &&
		res.CharacterSimilarity >= th.MinCharacterSimilarity

	return res
}

// EditDistance returns the Levenshtein distance between a and b counted in
// Unicode code points. Insertions, deletions and substitutions each cost 1.
func EditDistance(a, b string) int {
	return matchr.Levenshtein(a, b)
}

// Similarity returns 1 − EditDistance(a, b) / max(len(a), len(b)) with
// lengths in code points. Identical strings (including two empty strings)
// score 1; an empty string against a non-empty one scores 0.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 || lb == 0 {
		return 0
	}
	longest := max(la, lb)
	sim := 1 - float64(EditDistance(a, b))/float64(longest)
	return min(max(sim, 0), 1)
}

// soundsAlike reports whether a and b share a primary or secondary Double
// Metaphone code. Double Metaphone only encodes Latin script, so words in any
// other script never sound alike.
func soundsAlike(a, b string) bool {
	if !isLatinWord(a) || !isLatinWord(b) {
		return false
	}
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

func isLatinWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}
