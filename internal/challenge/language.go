package challenge

import (
	"slices"
	"strings"
)

// DefaultLanguage is used when a requested language is not supported.
const DefaultLanguage = "en"

// defaultHint is shown for grammar types without a dedicated hint.
const defaultHint = "Think about grammar!"

// Language describes one practice language.
type Language struct {
	// Code is the ISO 639-1 code used throughout the API, e.g. "fr".
	Code string `json:"code"`

	// Name is the English display name.
	Name string `json:"name"`

	// Locale is the BCP-47 tag handed to speech recognisers, e.g. "fr-FR".
	Locale string `json:"locale"`

	// GrammarTypes are the sentence categories the generator may ask for,
	// spelled in the language itself.
	GrammarTypes []string `json:"grammar_types"`

	// Hints maps a grammar type to a short reminder shown to the learner.
	Hints map[string]string `json:"-"`
}

// Hint returns the learner hint for grammarType.
func (l Language) Hint(grammarType string) string {
	if h, ok := l.Hints[grammarType]; ok {
		return h
	}
	return defaultHint
}

var languages = map[string]Language{
	"en": {
		Code:         "en",
		Name:         "English",
		Locale:       "en-US",
		GrammarTypes: []string{"past", "desc", "question", "present", "command"},
		Hints: map[string]string{
			"past":     "Past tense: walked, went, ate",
			"desc":     "Adjectives: big, red, beautiful",
			"question": "Questions: Where? What? How?",
			"present":  "Present: walk, go, eat",
			"command":  "Commands: Open! Run! Stop!",
		},
	},
	"es": {
		Code:         "es",
		Name:         "Spanish",
		Locale:       "es-ES",
		GrammarTypes: []string{"pasado", "descripción", "pregunta", "presente", "comando"},
		Hints: map[string]string{
			"pasado":      "Pasado: caminé, fui, comí",
			"descripción": "Adjetivos: grande, rojo, hermoso",
			"pregunta":    "¿Dónde? ¿Qué? ¿Cómo?",
			"presente":    "Presente: camino, voy, como",
			"comando":     "¡Abre! ¡Corre! ¡Para!",
		},
	},
	"fr": {
		Code:         "fr",
		Name:         "French",
		Locale:       "fr-FR",
		GrammarTypes: []string{"passé", "description", "question", "présent", "commande"},
		Hints: map[string]string{
			"passé":       "Passé: allé, vins, mangeai",
			"description": "Adjectifs: grand, rouge, beau",
			"question":    "Où? Quoi? Comment?",
			"présent":     "Présent: marche, vais, mange",
			"commande":    "Ouvre! Cours! Arrête!",
		},
	},
	"de": {
		Code:         "de",
		Name:         "German",
		Locale:       "de-DE",
		GrammarTypes: []string{"Vergangenheit", "Beschreibung", "Frage", "Gegenwart", "Befehl"},
		Hints: map[string]string{
			"Vergangenheit": "Vergangenheit: ging, kam, aß",
			"Beschreibung":  "Adjektive: groß, rot, schön",
			"Frage":         "Wo? Was? Wie?",
			"Gegenwart":     "Gegenwart: gehe, esse, sehe",
			"Befehl":        "Öffne! Lauf! Halt!",
		},
	},
}

// languageCode reduces "fr-FR", "FR" or " fr_fr " to "fr".
func languageCode(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(s, "-_"); i > 0 {
		s = s[:i]
	}
	return s
}

// IsSupported reports whether code (or a locale such as "de-DE") names a
// built-in language.
func IsSupported(code string) bool {
	_, ok := languages[languageCode(code)]
	return ok
}

// LookupLanguage returns the language for code, falling back to English for
// unknown codes.
func LookupLanguage(code string) Language {
	if l, ok := languages[languageCode(code)]; ok {
		return l
	}
	return languages[DefaultLanguage]
}

// Languages returns every built-in language ordered by code.
func Languages() []Language {
	out := make([]Language, 0, len(languages))
	for _, l := range languages {
		out = append(out, l)
	}
	slices.SortFunc(out, func(a, b Language) int { return strings.Compare(a.Code, b.Code) })
	return out
}
