package bot

import (
	"strings"

	"github.com/antzucaro/matchr"
)

type related struct {
	key   string
	items []string
}

var relatedProducts = []related{
	{"süt", []string{"yoğurt", "peynir", "tereyağ"}},
	{"ekmek", []string{"un", "makarna", "pirinç"}},
	{"yağ", []string{"zeytinyağı", "tereyağ", "margarin"}},
	{"şeker", []string{"çay", "kahve", "bal"}},
	{"çay", []string{"kahve", "şeker", "su"}},
	{"kahve", []string{"çay", "şeker", "süt"}},
	{"makarna", []string{"pirinç", "un", "domates"}},
	{"pirinç", []string{"makarna", "un", "yağ"}},
	{"peynir", []string{"süt", "yumurta", "tereyağ"}},
	{"yumurta", []string{"peynir", "süt", "tereyağ"}},
	{"tavuk", []string{"et", "balık", "yumurta"}},
	{"et", []string{"tavuk", "balık", "yumurta"}},
	{"domates", []string{"biber", "soğan", "sarımsak"}},
	{"patates", []string{"soğan", "domates", "yağ"}},
	{"elma", []string{"muz", "portakal", "limon"}},
}

var defaultSuggestions = []string{"süt", "ekmek", "yağ"}

// minSimilarity is the Jaro-Winkler score a term needs to borrow the
// suggestions of a key it does not contain, e.g. "peynr" for "peynir".
const minSimilarity = 0.85

// Suggestions returns three products related to term.
func Suggestions(term string) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return defaultSuggestions
	}
	for _, r := range relatedProducts {
		if strings.Contains(term, r.key) || strings.Contains(r.key, term) {
			return r.items
		}
	}

	best, bestScore := -1, minSimilarity
	for i, r := range relatedProducts {
		if score := matchr.JaroWinkler(term, r.key, false); score >= bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return relatedProducts[best].items
	}
	return defaultSuggestions
}
