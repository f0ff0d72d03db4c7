package gate

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/nevindra/kertas"
)

// coverageScore measures the fraction of source tokens that appear in
// the parent chunks, as a multiset: a token occurring three times in the
// source must occur three times across the chunks to count fully. The
// comparison is order-insensitive so OCR or chunker reordering does not
// mask (or fake) textual loss.
func coverageScore(source string, set *kertas.ChunkSet) float64 {
	src := tokenCounts(source)
	total := 0
	for _, n := range src {
		total += n
	}
	if total == 0 {
		return 1
	}

	var b strings.Builder
	for i := range set.Parents {
		b.WriteString(set.Parents[i].Content)
		b.WriteByte('\n')
	}
	got := tokenCounts(b.String())

	covered := 0
	for tok, n := range src {
		covered += min(n, got[tok])
	}
	return float64(covered) / float64(total)
}

// tokenCounts folds text to NFKC + lowercase and counts tokens split on
// anything that is not a letter or digit. NFKC collapses ligatures,
// fullwidth forms, and similar variants OCR engines commonly emit.
func tokenCounts(text string) map[string]int {
	folded := strings.ToLower(norm.NFKC.String(text))
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}
