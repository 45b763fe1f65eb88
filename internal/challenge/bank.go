package challenge

import (
	"context"

	"github.com/MrWong99/linguaplay/pkg/scoring"
)

// entry is one phrase in a Bank.
type entry struct {
	tier        scoring.Tier
	grammarType string
	sentence    string
	translation string
	pronounce   string
}

// builtinEntries holds the phrases every Bank starts with. The first entry
// of each language is its fallback sentence and is handed out when
// everything else has been excluded.
var builtinEntries = map[string][]entry{
	"en": {
		{scoring.TierEasy, "past", "I walked to the treasure", "I moved to the treasure", "I wawkt too thuh treh-zhur"},
		{scoring.TierEasy, "question", "Where is the door", "Where is the door", "Wair iz thuh dor"},
		{scoring.TierMedium, "desc", "The old map shows a hidden path", "The old map shows a hidden path", "Thee ohld map shohz uh hid-en path"},
		{scoring.TierMedium, "present", "We walk through the dark tunnel", "We walk through the dark tunnel", "Wee wawk throo thuh dark tun-ul"},
		{scoring.TierHard, "command", "Open the heavy gate before the torches burn out", "Open the heavy gate before the torches burn out", "Oh-pen thuh hev-ee gayt bee-for thuh tor-chez burn owt"},
	},
	"es": {
		{scoring.TierEasy, "pasado", "Caminé al tesoro", "I walked to the treasure", "Kah-mee-NAY ahl teh-SOH-roh"},
		{scoring.TierEasy, "pregunta", "¿Dónde está la puerta?", "Where is the door?", "DOHN-deh ehs-TAH lah PWEHR-tah"},
		{scoring.TierMedium, "descripción", "El mapa viejo muestra un camino escondido", "The old map shows a hidden path", "Ehl MAH-pah VYEH-hoh MWEHS-trah oon kah-MEE-noh ehs-kohn-DEE-doh"},
		{scoring.TierMedium, "presente", "Caminamos por el túnel oscuro", "We walk through the dark tunnel", "Kah-mee-NAH-mohs por ehl TOO-nehl ohs-KOO-roh"},
		{scoring.TierHard, "comando", "Abre la puerta pesada antes de que se apaguen las antorchas", "Open the heavy door before the torches go out", "AH-breh lah PWEHR-tah peh-SAH-dah AHN-tehs deh keh seh ah-PAH-gehn lahs ahn-TOR-chahs"},
	},
	"fr": {
		{scoring.TierEasy, "passé", "Je suis allé au trésor", "I went to the treasure", "Zhuh swee zah-lay oh tray-ZOR"},
		{scoring.TierEasy, "question", "Où est la porte ?", "Where is the door?", "Oo eh lah port"},
		{scoring.TierMedium, "description", "La vieille carte montre un chemin caché", "The old map shows a hidden path", "Lah vyay kart mohn-truh uhn shuh-MAN kah-SHAY"},
		{scoring.TierMedium, "présent", "Nous marchons dans le tunnel sombre", "We walk through the dark tunnel", "Noo mar-SHOHN dahn luh tew-NEL sohm-bruh"},
		{scoring.TierHard, "commande", "Ouvre la lourde porte avant que les torches s'éteignent", "Open the heavy door before the torches go out", "Oovr lah loord port ah-VAHN kuh lay torsh say-TEN-yuh"},
	},
	"de": {
		{scoring.TierEasy, "Vergangenheit", "Ich ging zum Schatz", "I went to the treasure", "Ish ging tsoom shats"},
		{scoring.TierEasy, "Frage", "Wo ist die Tür?", "Where is the door?", "Voh ist dee tuer"},
		{scoring.TierMedium, "Beschreibung", "Die alte Karte zeigt einen versteckten Weg", "The old map shows a hidden path", "Dee AL-tuh KAR-tuh tsaikt EYE-nen fer-SHTEK-ten vayk"},
		{scoring.TierMedium, "Gegenwart", "Wir gehen durch den dunklen Tunnel", "We walk through the dark tunnel", "Veer GAY-en doorkh dayn DOONK-len TOO-nel"},
		{scoring.TierHard, "Befehl", "Öffne das schwere Tor bevor die Fackeln erlöschen", "Open the heavy gate before the torches go out", "ERF-nuh das SHVAY-ruh tor beh-FOR dee FAK-eln er-LER-shen"},
	},
}

// Bank is a static Source backed by a fixed phrase list. It never fails and
// is safe for concurrent use since it is read-only after construction.
type Bank struct {
	entries map[string][]entry
}

var _ Source = (*Bank)(nil)

// NewBank returns a Bank holding the built-in phrases.
func NewBank() *Bank {
	return &Bank{entries: builtinEntries}
}

// Fallback returns the fallback challenge for lang without consulting the
// exclusion list.
func (b *Bank) Fallback(lang string, tier scoring.Tier) Challenge {
	l := LookupLanguage(lang)
	return b.challenge(b.entries[l.Code][0], l, tier)
}

// Len returns the number of phrases available for lang.
func (b *Bank) Len(lang string) int {
	return len(b.entries[LookupLanguage(lang).Code])
}

// Next implements Source. It prefers a phrase written for req.Tier, then any
// phrase of the language, skipping everything in req.Exclude. When every
// phrase has been used it starts over with the fallback sentence.
func (b *Bank) Next(_ context.Context, req Request) (Challenge, error) {
	l := LookupLanguage(req.Language)
	tier := scoring.ParseTier(string(req.Tier))
	entries := b.entries[l.Code]
	excluded := excludeSet(req.Exclude)

	usable := func(e entry) bool {
		_, used := excluded[scoring.Normalize(e.sentence)]
		return !used
	}
	for _, e := range entries {
		if e.tier == tier && usable(e) {
			return b.challenge(e, l, tier), nil
		}
	}
	for _, e := range entries {
		if usable(e) {
			return b.challenge(e, l, tier), nil
		}
	}
	return b.Fallback(l.Code, tier), nil
}

func (b *Bank) challenge(e entry, l Language, tier scoring.Tier) Challenge {
	return finish(Challenge{
		Sentence:      e.sentence,
		Translation:   e.translation,
		Pronunciation: e.pronounce,
		GrammarType:   e.grammarType,
	}, l, tier)
}
