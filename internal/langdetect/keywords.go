// Package langdetect guesses the spoken language of an audio file from a
// short, cheap transcription of its first seconds.
package langdetect

import (
	"sort"
	"strings"
)

// Keywords maps an ISO 639-1 code to the phrases that count as evidence for it.
type Keywords map[string][]string

// DefaultKeywords are common greetings, courtesies and recording phrases.
// Languages without Latin script are matched on their romanization.
var DefaultKeywords = Keywords{
	"pt": {"obrigado", "obrigada", "obrigado pela", "isto é", "um teste", "gravação", "atenção", "alô", "olá",
		"sim", "não", "por favor", "muito obrigado", "bom dia", "boa tarde", "boa noite", "tchau", "desculpe",
		"com licença", "tudo bem", "de nada"},
	"es": {"gracias", "por favor", "hola", "adiós", "sí", "no", "muchas gracias", "esto es", "una prueba",
		"grabación", "atención", "buenos días", "buenas tardes", "buenas noches", "perdón", "con permiso",
		"de nada", "hasta luego"},
	"en": {"thank you", "thanks", "hello", "hi", "goodbye", "yes", "no", "please", "this is", "a test",
		"recording", "attention", "good morning", "good afternoon", "good evening", "sorry", "excuse me",
		"you're welcome", "see you"},
	"fr": {"merci", "bonjour", "au revoir", "oui", "non", "s'il vous plaît", "ceci est", "un test",
		"enregistrement", "attention", "bonne journée", "bonsoir", "pardon", "excusez-moi", "de rien",
		"à bientôt", "salut"},
	"de": {"danke", "hallo", "auf wiedersehen", "ja", "nein", "bitte", "das ist", "ein test", "aufnahme",
		"aufmerksamkeit", "guten morgen", "guten tag", "guten abend", "entschuldigung", "tschüss", "bis bald"},
	"it": {"grazie", "ciao", "arrivederci", "sì", "no", "per favore", "questo è", "un test", "registrazione",
		"attenzione", "buongiorno", "buonasera", "scusa", "prego", "a presto"},
	"nl": {"dank je", "dank u", "hallo", "dag", "ja", "nee", "alstublieft", "dit is", "een test", "opname",
		"aandacht", "goedemorgen", "goedemiddag", "goedenavond", "sorry", "tot ziens", "graag gedaan"},
	"ru": {"spasibo", "privet", "do svidaniya", "da", "net", "pozhaluysta", "eto", "test", "zapis", "vnimanie"},
	"zh": {"xiexie", "nihao", "zaijian", "shi", "bu", "qing", "zhe shi", "ceshi", "luyin", "zhuyi"},
	"ja": {"arigatou", "konnichiwa", "sayonara", "hai", "iie", "onegai", "kore wa", "tesuto", "rokuga", "chuui"},
}

// Scores counts, per language, how many of its keywords occur in text.
// Matching is case-insensitive substring containment; each keyword counts once.
func (k Keywords) Scores(text string) map[string]int {
	lower := strings.ToLower(text)
	scores := make(map[string]int, len(k))
	for lang, words := range k {
		n := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				n++
			}
		}
		scores[lang] = n
	}
	return scores
}

// Best returns the language with the highest non-zero score. Ties go to the
// alphabetically first language code. Returns false when nothing matched.
func (k Keywords) Best(text string) (string, bool) {
	scores := k.Scores(text)

	langs := make([]string, 0, len(scores))
	for lang := range scores {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	best, bestScore := "", 0
	for _, lang := range langs {
		if scores[lang] > bestScore {
			best, bestScore = lang, scores[lang]
		}
	}
	return best, bestScore > 0
}
