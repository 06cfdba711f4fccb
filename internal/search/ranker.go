// Package search implements the serving path: ranking against the relevance
// index, the result cache, and the HTTP handler tying them to the rate
// limiter.
package search

import (
	"sort"

	"github.com/docstream-labs/docsearch/internal/index"
)

// SnippetLength is how many leading runes of the document text a Hit carries.
const SnippetLength = 200

// Hit is one ranked search result.
type Hit struct {
	ID              int64   `json:"id"`
	URL             string  `json:"url"`
	TextSnippet     string  `json:"text_snippet"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Rank scores the query against every document in the index, keeps documents
// with similarity >= threshold, orders by score descending with ascending id
// breaking ties, and truncates to topK. A topK <= 0 yields an empty result.
func Rank(idx *index.Index, query string, topK int, threshold float64) []Hit {
	hits := make([]Hit, 0)
	if topK <= 0 {
		return hits
	}

	scores := idx.Score(query)
	for _, doc := range idx.Documents() {
		score := scores[doc.ID]
		if score < threshold {
			continue
		}
		hits = append(hits, Hit{
			ID:              doc.ID,
			URL:             doc.URL,
			TextSnippet:     snippet(doc.Text, SnippetLength),
			SimilarityScore: score,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].SimilarityScore != hits[j].SimilarityScore {
			return hits[i].SimilarityScore > hits[j].SimilarityScore
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// snippet returns the first n runes of text.
func snippet(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
