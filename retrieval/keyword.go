package retrieval

import (
	"cmp"
	"slices"
	"strings"

	"github.com/poiesic/knowit/core"
)

// Stop words to filter out before frequency scoring
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		// Lowercase and trim punctuation
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))

		// Skip stop words and empty strings
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// keywordScore is the relative frequency of the query terms in the text:
// matched occurrences over total terms, both after stop-word filtering.
// Repeated query words count once.
func keywordScore(text string, queryTerms []string) float64 {
	docTerms := tokenizeAndFilter(text)
	if len(docTerms) == 0 {
		return 0
	}

	counts := make(map[string]int, len(docTerms))
	for _, term := range docTerms {
		counts[term]++
	}

	matched := 0
	seen := make(map[string]bool, len(queryTerms))
	for _, term := range queryTerms {
		if seen[term] {
			continue
		}
		seen[term] = true
		matched += counts[term]
	}

	return float64(matched) / float64(len(docTerms))
}

// keywordCandidates scores every chunk against the query and keeps the
// strongest limit hits. The full chunk table is returned alongside so the
// caller can render results for keyword-only hits.
func keywordCandidates(chunks []*core.Chunk, query string, limit int) (map[core.ID]float64, map[core.ID]*core.Chunk) {
	byID := make(map[core.ID]*core.Chunk, len(chunks))
	for _, chunk := range chunks {
		byID[chunk.Id] = chunk
	}

	queryTerms := tokenizeAndFilter(query)
	if len(queryTerms) == 0 {
		return nil, byID
	}

	type hit struct {
		id    core.ID
		score float64
	}
	hits := make([]hit, 0, len(chunks))
	for _, chunk := range chunks {
		if score := keywordScore(chunk.RenderedText, queryTerms); score > 0 {
			hits = append(hits, hit{id: chunk.Id, score: score})
		}
	}

	slices.SortFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := cmp.Compare(byID[a.id].Index, byID[b.id].Index); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}

	scores := make(map[core.ID]float64, len(hits))
	for _, h := range hits {
		scores[h.id] = h.score
	}
	return scores, byID
}
