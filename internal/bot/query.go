package bot

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type translation struct {
	en string
	tr []string
}

// enToTR is ordered so partial matches come out in a stable order.
var enToTR = []translation{
	{"milk", []string{"süt"}},
	{"yogurt", []string{"yoğurt", "yogurt"}},
	{"yoghurt", []string{"yoğurt", "yogurt"}},
	{"cheese", []string{"peynir"}},
	{"butter", []string{"tereyağ", "tereyağı"}},
	{"cream", []string{"krema", "kaymak"}},
	{"egg", []string{"yumurta"}},
	{"eggs", []string{"yumurta"}},
	{"bread", []string{"ekmek"}},
	{"flour", []string{"un"}},
	{"rice", []string{"pirinç", "pilav"}},
	{"pasta", []string{"makarna"}},
	{"noodle", []string{"makarna", "erişte"}},
	{"noodles", []string{"makarna", "erişte"}},
	{"oil", []string{"yağ"}},
	{"sunflower oil", []string{"ayçiçek yağı"}},
	{"olive oil", []string{"zeytinyağı"}},
	{"margarine", []string{"margarin"}},
	{"sugar", []string{"şeker"}},
	{"honey", []string{"bal"}},
	{"jam", []string{"reçel"}},
	{"chocolate", []string{"çikolata"}},
	{"tea", []string{"çay"}},
	{"coffee", []string{"kahve"}},
	{"water", []string{"su", "içme suyu"}},
	{"juice", []string{"meyve suyu", "meyve"}},
	{"cola", []string{"kola", "cola"}},
	{"chicken", []string{"tavuk", "piliç"}},
	{"beef", []string{"et", "dana"}},
	{"meat", []string{"et"}},
	{"fish", []string{"balık"}},
	{"tuna", []string{"ton balığı", "ton"}},
	{"tomato", []string{"domates"}},
	{"potato", []string{"patates"}},
	{"onion", []string{"soğan"}},
	{"garlic", []string{"sarımsak"}},
	{"pepper", []string{"biber"}},
	{"apple", []string{"elma"}},
	{"banana", []string{"muz"}},
	{"orange", []string{"portakal"}},
	{"lemon", []string{"limon"}},
	{"salt", []string{"tuz"}},
	{"vinegar", []string{"sirke"}},
	{"ketchup", []string{"ketçap"}},
	{"mayonnaise", []string{"mayonez"}},
	{"mustard", []string{"hardal"}},
	{"soap", []string{"sabun"}},
	{"detergent", []string{"deterjan"}},
	{"shampoo", []string{"şampuan"}},
	{"napkin", []string{"peçete"}},
	{"paper towel", []string{"kağıt havlu"}},
	{"toilet paper", []string{"tuvalet kağıdı"}},
}

// ASCII letters people type instead of their Turkish counterparts.
var turkishVariants = [][2]string{
	{"s", "ş"},
	{"c", "ç"},
	{"g", "ğ"},
	{"i", "ı"},
	{"o", "ö"},
	{"u", "ü"},
}

const maxVariantRunes = 6

var fillerWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		how about price of the a an what is are show me get find tell check much
		does cost for please pls can you i want need buy any do have give look search
		fiyatı fiyat ne kadar nedir var mı mi mu mü hangi en ucuz pahalı bul göster
		ver lütfen acaba ürün ürünü almak istiyorum`) {
		fillerWords[w] = struct{}{}
	}
}

var numberRe = regexp.MustCompile(`^\d+([.,]\d+)?$`)

// CleanQuery pulls the product keyword out of a free-form sentence:
// "How about price of 0.5 le water?" becomes "water". When nothing survives
// the filtering the trimmed input is returned.
func CleanQuery(raw string) string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			return r
		}
		return ' '
	}, raw)

	var words []string
	for _, w := range strings.Fields(stripped) {
		if _, filler := fillerWords[strings.ToLower(w)]; filler {
			continue
		}
		if numberRe.MatchString(w) || utf8.RuneCountInString(w) < 2 {
			continue
		}
		words = append(words, w)
	}
	if len(words) > 0 {
		return words[len(words)-1]
	}
	return strings.TrimSpace(raw)
}

// ExpandQuery returns the search terms to try for raw, in priority order:
// Turkish translations of an English keyword, the cleaned query itself, then
// Turkish letter variants of short terms. Terms are unique ignoring case.
func ExpandQuery(raw string) []string {
	cleaned := CleanQuery(raw)
	term := strings.ToLower(strings.TrimSpace(cleaned))
	if term == "" {
		return nil
	}

	var candidates []string
	for _, t := range enToTR {
		if t.en == term {
			candidates = append(candidates, t.tr...)
		}
	}
	for _, t := range enToTR {
		if strings.Contains(t.en, term) || strings.Contains(term, t.en) {
			candidates = append(candidates, t.tr...)
		}
	}
	candidates = append(candidates, cleaned)

	if utf8.RuneCountInString(term) <= maxVariantRunes {
		for _, v := range turkishVariants {
			if strings.Contains(term, v[0]) {
				candidates = append(candidates, strings.ReplaceAll(term, v[0], v[1]))
			}
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(c)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
