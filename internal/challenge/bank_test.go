package challenge_test

import (
	"context"
	"slices"
	"testing"

	"github.com/MrWong99/linguaplay/internal/challenge"
	"github.com/MrWong99/linguaplay/pkg/scoring"
)

func TestLookupLanguage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		wantCode   string
		wantLocale string
	}{
		{"en", "en", "en-US"},
		{"es", "es", "es-ES"},
		{"fr-FR", "fr", "fr-FR"},
		{" DE ", "de", "de-DE"},
		{"", "en", "en-US"},
		{"xx", "en", "en-US"},
	}
	for _, tt := range tests {
		got := challenge.LookupLanguage(tt.in)
		if got.Code != tt.wantCode || got.Locale != tt.wantLocale {
			t.Errorf("LookupLanguage(%q) = %s/%s, want %s/%s", tt.in, got.Code, got.Locale, tt.wantCode, tt.wantLocale)
		}
		if len(got.GrammarTypes) != 5 {
			t.Errorf("LookupLanguage(%q) has %d grammar types, want 5", tt.in, len(got.GrammarTypes))
		}
	}
}

func TestIsSupported(t *testing.T) {
	t.Parallel()

	for _, code := range []string{"en", "es", "fr", "de", "de-AT"} {
		if !challenge.IsSupported(code) {
			t.Errorf("IsSupported(%q) = false, want true", code)
		}
	}
	for _, code := range []string{"", "it", "klingon"} {
		if challenge.IsSupported(code) {
			t.Errorf("IsSupported(%q) = true, want false", code)
		}
	}
}

func TestLanguages_Sorted(t *testing.T) {
	t.Parallel()

	var codes []string
	for _, l := range challenge.Languages() {
		codes = append(codes, l.Code)
	}
	if want := []string{"de", "en", "es", "fr"}; !slices.Equal(codes, want) {
		t.Errorf("Languages() codes = %v, want %v", codes, want)
	}
}

func TestLanguage_Hint(t *testing.T) {
	t.Parallel()

	de := challenge.LookupLanguage("de")
	if got := de.Hint("Vergangenheit"); got != "Vergangenheit: ging, kam, aß" {
		t.Errorf("Hint(Vergangenheit) = %q", got)
	}
	if got := de.Hint("unknown"); got != "Think about grammar!" {
		t.Errorf("Hint(unknown) = %q, want default hint", got)
	}
}

func TestBank_Fallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		lang     string
		sentence string
		vocab    string
	}{
		{"en", "I walked to the treasure", "I"},
		{"es", "Caminé al tesoro", "Caminé"},
		{"fr", "Je suis allé au trésor", "Je"},
		{"de", "Ich ging zum Schatz", "Ich"},
		{"pt", "I walked to the treasure", "I"},
	}
	b := challenge.NewBank()
	for _, tt := range tests {
		c := b.Fallback(tt.lang, scoring.TierMedium)
		if c.Sentence != tt.sentence {
			t.Errorf("Fallback(%q).Sentence = %q, want %q", tt.lang, c.Sentence, tt.sentence)
		}
		if c.Vocab != tt.vocab {
			t.Errorf("Fallback(%q).Vocab = %q, want %q", tt.lang, c.Vocab, tt.vocab)
		}
		if c.Tier != scoring.TierMedium {
			t.Errorf("Fallback(%q).Tier = %q, want medium", tt.lang, c.Tier)
		}
		if c.Pronunciation == "" || c.Translation == "" || c.Hint == "" {
			t.Errorf("Fallback(%q) missing guide fields: %+v", tt.lang, c)
		}
	}
}

func TestBank_Next_PrefersTier(t *testing.T) {
	t.Parallel()

	b := challenge.NewBank()
	ctx := context.Background()
	for _, tier := range []scoring.Tier{scoring.TierEasy, scoring.TierMedium, scoring.TierHard} {
		c, err := b.Next(ctx, challenge.Request{Language: "fr", Tier: tier})
		if err != nil {
			t.Fatalf("Next(%s): %v", tier, err)
		}
		if c.Tier != tier {
			t.Errorf("Next(%s).Tier = %q", tier, c.Tier)
		}
		if c.Language != "fr" {
			t.Errorf("Next(%s).Language = %q, want fr", tier, c.Language)
		}
	}

	hard, _ := b.Next(ctx, challenge.Request{Language: "de", Tier: scoring.TierHard})
	if hard.GrammarType != "Befehl" {
		t.Errorf("hard German challenge grammar type = %q, want Befehl", hard.GrammarType)
	}
}

func TestBank_Next_ExcludesUsedSentences(t *testing.T) {
	t.Parallel()

	b := challenge.NewBank()
	ctx := context.Background()

	var used []string
	seen := map[string]bool{}
	for range b.Len("es") {
		c, err := b.Next(ctx, challenge.Request{Language: "es", Tier: scoring.TierEasy, Exclude: used})
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if seen[c.Sentence] {
			t.Fatalf("sentence %q handed out twice before exhaustion", c.Sentence)
		}
		seen[c.Sentence] = true
		// Exclusion ignores case and punctuation.
		used = append(used, scoring.Normalize(c.Sentence))
	}

	c, err := b.Next(ctx, challenge.Request{Language: "es", Tier: scoring.TierEasy, Exclude: used})
	if err != nil {
		t.Fatalf("Next after exhaustion: %v", err)
	}
	if c.Sentence != "Caminé al tesoro" {
		t.Errorf("after exhaustion got %q, want the fallback sentence", c.Sentence)
	}
	if want := b.Fallback("es", scoring.TierEasy); c != want {
		t.Errorf("after exhaustion got %+v, want Fallback %+v", c, want)
	}
}

func TestBank_Next_UnknownTierIsEasy(t *testing.T) {
	t.Parallel()

	c, err := challenge.NewBank().Next(context.Background(), challenge.Request{Language: "en", Tier: "expert"})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c.Tier != scoring.TierEasy {
		t.Errorf("Tier = %q, want easy", c.Tier)
	}
}

func TestBank_SentencesScoreThemselves(t *testing.T) {
	t.Parallel()

	b := challenge.NewBank()
	ctx := context.Background()
	for _, l := range challenge.Languages() {
		var used []string
		for range b.Len(l.Code) {
			c, _ := b.Next(ctx, challenge.Request{Language: l.Code, Tier: scoring.TierHard, Exclude: used})
			used = append(used, c.Sentence)
			if r := scoring.Score(c.Sentence, c.Sentence, scoring.TierHard); !r.IsCorrect {
				t.Errorf("%s: %q does not score as correct against itself", l.Code, c.Sentence)
			}
		}
	}
}

func TestChallenge_Prompt(t *testing.T) {
	t.Parallel()

	c := challenge.Challenge{Sentence: "Ich ging zum Schatz"}
	if got, want := c.Prompt(), `Say: "Ich ging zum Schatz"`; got != want {
		t.Errorf("Prompt() = %q, want %q", got, want)
	}
}
