package classify

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// SamplePages selects which pages to inspect. Documents at or under the
// limit are read in full. Larger documents always include the first and
// last page plus evenly spaced middle pages, since scanned front matter
// with a native body (or the reverse) is common.
func SamplePages(totalPages, limit int) []int {
	if totalPages <= 0 {
		return nil
	}
	if totalPages <= limit {
		pages := make([]int, totalPages)
		for i := range pages {
			pages[i] = i
		}
		return pages
	}

	seen := map[int]bool{0: true, totalPages - 1: true}
	remaining := limit - 2
	if remaining > 0 {
		step := totalPages / (remaining + 1)
		if step < 1 {
			step = 1
		}
		for i := 1; i <= remaining; i++ {
			p := i * step
			if p > totalPages-2 {
				p = totalPages - 2
			}
			seen[p] = true
		}
	}

	pages := make([]int, 0, len(seen))
	for p := range seen {
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// meaningfulText reports whether extracted text looks like real prose
// rather than an empty text layer or recognition artifacts.
func meaningfulText(text string, minLength int) bool {
	if len(text) < minLength {
		return false
	}
	if isArtifact(text) {
		return false
	}
	words := strings.Fields(text)
	if len(words) < 5 {
		return false
	}
	total := 0
	for _, w := range words {
		total += len(w)
	}
	avg := float64(total) / float64(len(words))
	return avg >= 2 && avg <= 15
}

// isArtifact detects gibberish: excessive special characters, long
// repeated-character runs, or a flood of single-letter words.
func isArtifact(text string) bool {
	special := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			special++
		}
	}
	if float64(special)/float64(len(text)) > 0.3 {
		return true
	}

	if hasRepeatedRun(text, 5) {
		return true
	}

	words := strings.Fields(text)
	singles := 0
	for _, w := range words {
		if len(w) == 1 && unicode.IsLetter(rune(w[0])) {
			singles++
		}
	}
	return len(words) > 0 && float64(singles) > float64(len(words))*0.4
}

// hasRepeatedRun reports whether text contains n or more consecutive
// copies of the same rune.
func hasRepeatedRun(text string, n int) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev {
			run++
			if run >= n {
				return true
			}
		} else {
			prev = r
			run = 1
		}
	}
	return false
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]+`)

// estimateReadability scores text structure on [0, 1]: sentence shape,
// capitalization, punctuation variety, and character distribution each
// contribute a fixed share.
func estimateReadability(text string) float64 {
	if text == "" {
		return 0
	}
	score := 0.0

	var sentences []string
	for _, s := range sentenceSplitRe.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) > 0 {
		score += 0.3
		total := 0
		for _, s := range sentences {
			total += len(strings.Fields(s))
		}
		avg := float64(total) / float64(len(sentences))
		if avg >= 5 && avg <= 30 {
			score += 0.2
		}
	}

	words := strings.Fields(text)
	if len(words) > 0 {
		capitalized := 0
		for _, w := range words {
			if r := []rune(w); len(r) > 0 && unicode.IsUpper(r[0]) {
				capitalized++
			}
		}
		ratio := float64(capitalized) / float64(len(words))
		if ratio >= 0.1 && ratio <= 0.4 {
			score += 0.2
		}
	}

	punct := map[rune]bool{}
	for _, r := range text {
		if strings.ContainsRune(".,!?;:()[]{}", r) {
			punct[r] = true
		}
	}
	if len(punct) >= 3 {
		score += 0.15
	}

	if reasonableCharDistribution(text) {
		score += 0.15
	}

	if score > 1 {
		score = 1
	}
	return score
}

// reasonableCharDistribution checks the vowel ratio of alphabetic text.
// Random byte soup fails this; real prose in Latin scripts passes.
func reasonableCharDistribution(text string) bool {
	if len(text) < 100 {
		return true
	}
	vowelCount, alphaCount := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			alphaCount++
			if strings.ContainsRune("aeiouAEIOU", r) {
				vowelCount++
			}
		}
	}
	if alphaCount == 0 {
		return true
	}
	ratio := float64(vowelCount) / float64(alphaCount)
	return ratio >= 0.2 && ratio <= 0.6
}
