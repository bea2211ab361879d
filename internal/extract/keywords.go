package extract

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const minKeywordLen = 3

var stopwords = map[string]bool{}

func init() {
	for _, w := range strings.Fields(`
		the and for are but not you all any can had her was one our out has have
		his how its may new now old see two way who did get got him let put say
		she too use that with this from they will would there their what about
		which when your more been were than them then into some could other
		these those only also just over such very most much many each after
		before where while here both does done being because should through
		between under again further once same own off why yes per via upon
		ours mine`) {
		stopwords[w] = true
	}
}

// Keywords returns up to limit lowercase tokens of at least three letters,
// stopwords removed, ranked by frequency and then alphabetically. The result
// is deterministic and duplicate-free.
func Keywords(text string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	counts := make(map[string]int)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if utf8.RuneCountInString(tok) < minKeywordLen || stopwords[tok] {
			continue
		}
		counts[tok]++
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}
