package gate

import (
	"context"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/nevindra/kertas"
)

// coherenceScore measures whether each parent reads as a single topic.
// With an embedding provider, the score per parent is the mean cosine
// similarity of consecutive sentence embeddings; without one (or when
// the embedding call fails) it degrades to a lexical cohesion heuristic.
// The set's score is the mean over parents with at least two sentences;
// a set with no such parent scores 1.
func (g *Gate) coherenceScore(ctx context.Context, set *kertas.ChunkSet) (float64, string) {
	parents := make([][]string, 0, len(set.Parents))
	for i := range set.Parents {
		parents = append(parents, gateSentences(set.Parents[i].Content))
	}

	if g.embedding != nil {
		score, err := g.embeddingCoherence(ctx, parents)
		if err == nil {
			return score, "embedding"
		}
		g.cfg.logger.Warn("embedding coherence failed, using lexical cohesion", "error", err)
	}
	return lexicalCoherence(parents), "lexical"
}

func (g *Gate) embeddingCoherence(ctx context.Context, parents [][]string) (float64, error) {
	// One Embed call for every sentence in the set; offsets map the flat
	// result back to per-parent ranges.
	var all []string
	offsets := make([]int, 0, len(parents))
	for _, sents := range parents {
		offsets = append(offsets, len(all))
		all = append(all, sents...)
	}
	if len(all) == 0 {
		return 1, nil
	}

	vecs, err := g.embedding.Embed(ctx, all)
	if err != nil {
		return 0, err
	}
	if len(vecs) != len(all) {
		return 0, &kertas.ErrLLM{Provider: g.embedding.Name(), Message: "embedding count mismatch"}
	}

	var sum float64
	scored := 0
	for pi, sents := range parents {
		if len(sents) < 2 {
			continue
		}
		start := offsets[pi]
		var parentSum float64
		for i := 0; i < len(sents)-1; i++ {
			parentSum += float64(cosineSim(vecs[start+i], vecs[start+i+1]))
		}
		sum += parentSum / float64(len(sents)-1)
		scored++
	}
	if scored == 0 {
		return 1, nil
	}
	return sum / float64(scored), nil
}

// lexicalCoherence scores each parent by the fraction of adjacent
// sentence pairs sharing at least one content word. Coherent prose
// repeats its subject; a parent stitched from unrelated passages does
// not.
func lexicalCoherence(parents [][]string) float64 {
	var sum float64
	scored := 0
	for _, sents := range parents {
		if len(sents) < 2 {
			continue
		}
		shared := 0
		prev := contentWords(sents[0])
		for i := 1; i < len(sents); i++ {
			cur := contentWords(sents[i])
			if sharesWord(prev, cur) {
				shared++
			}
			prev = cur
		}
		sum += float64(shared) / float64(len(sents)-1)
		scored++
	}
	if scored == 0 {
		return 1
	}
	return sum / float64(scored)
}

func contentWords(sentence string) map[string]struct{} {
	folded := strings.ToLower(norm.NFKC.String(sentence))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) > 3 {
			set[w] = struct{}{}
		}
	}
	return set
}

func sharesWord(a, b map[string]struct{}) bool {
	if len(b) < len(a) {
		a, b = b, a
	}
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}

// gateSentences splits text on sentence terminators and blank lines.
// The gate only needs rough sentence units, not the chunker's boundary
// precision.
func gateSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		cur.Reset()
	}
	runes := []rune(text)
	for i, r := range runes {
		cur.WriteRune(r)
		switch r {
		case '.', '!', '?', '。', '！', '？':
			if i == len(runes)-1 || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		case '\n':
			flush()
		}
	}
	flush()
	return sentences
}

// cosineSim computes cosine similarity between two vectors.
func cosineSim(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
