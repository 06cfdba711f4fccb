package search

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/docstream-labs/docsearch/internal/index"
	"github.com/docstream-labs/docsearch/internal/store"
)

func buildIndex(t *testing.T, docs []store.Document) *index.Index {
	t.Helper()
	return index.Build(1, docs)
}

func TestRankEmptyCorpus(t *testing.T) {
	idx := buildIndex(t, nil)
	hits := Rank(idx, "anything at all", 10, 0.5)
	if len(hits) != 0 {
		t.Fatalf("empty corpus must return no hits, got %v", hits)
	}
}

func TestRankIrishScenario(t *testing.T) {
	idx := buildIndex(t, []store.Document{
		{ID: 1, URL: "http://example.com/1", Title: "setter", Text: "irish setter dog"},
		{ID: 2, URL: "http://example.com/2", Title: "coffee", Text: "irish coffee recipe"},
	})

	hits := Rank(idx, "irish", 2, 0.0)
	if len(hits) != 2 {
		t.Fatalf("expected both documents, got %d", len(hits))
	}
	// Equal term overlap: the tie breaks on ascending id.
	if hits[0].ID != 1 || hits[1].ID != 2 {
		t.Errorf("tie must break by ascending id, got order %d, %d", hits[0].ID, hits[1].ID)
	}
	for _, h := range hits {
		if h.SimilarityScore <= 0 {
			t.Errorf("doc %d: matching document must score above zero, got %v", h.ID, h.SimilarityScore)
		}
	}
}

func TestRankThresholdInclusive(t *testing.T) {
	idx := buildIndex(t, []store.Document{
		{ID: 1, Title: "a", Text: "irish setter dog"},
	})
	scores := idx.Score("irish")
	exact := scores[1]

	if hits := Rank(idx, "irish", 10, exact); len(hits) != 1 {
		t.Errorf("threshold equal to score must admit the document, got %d hits", len(hits))
	}
	if hits := Rank(idx, "irish", 10, exact+1e-9); len(hits) != 0 {
		t.Errorf("threshold just above score must exclude the document, got %d hits", len(hits))
	}
}

func TestRankTopKTruncation(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "irish one"},
		{ID: 2, Title: "b", Text: "irish two"},
		{ID: 3, Title: "c", Text: "irish three"},
	}
	idx := buildIndex(t, docs)

	if hits := Rank(idx, "irish", 2, 0.0); len(hits) != 2 {
		t.Errorf("top_k=2 must cap results at 2, got %d", len(hits))
	}
	if hits := Rank(idx, "irish", 100, 0.0); len(hits) != 3 {
		t.Errorf("top_k beyond corpus size returns the whole corpus, got %d", len(hits))
	}
	if hits := Rank(idx, "irish", 0, 0.0); len(hits) != 0 {
		t.Errorf("top_k=0 must return no hits, got %d", len(hits))
	}
	if hits := Rank(idx, "irish", -3, 0.0); len(hits) != 0 {
		t.Errorf("negative top_k must return no hits, got %d", len(hits))
	}
}

func TestRankZeroThresholdAdmitsZeroScores(t *testing.T) {
	docs := []store.Document{
		{ID: 2, Title: "b", Text: "unrelated text"},
		{ID: 1, Title: "a", Text: "other words"},
	}
	idx := buildIndex(t, docs)

	// The query shares no vocabulary, so everything scores zero; at
	// threshold zero the full corpus comes back ordered by id.
	hits := Rank(idx, "zzzmissing", 10, 0.0)
	if len(hits) != 2 {
		t.Fatalf("threshold 0 must admit zero-score documents, got %d", len(hits))
	}
	if hits[0].ID != 1 || hits[1].ID != 2 {
		t.Errorf("zero-score ties must order by ascending id, got %d, %d", hits[0].ID, hits[1].ID)
	}
}

func TestRankOrdering(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "irish irish irish"},
		{ID: 2, Title: "b", Text: "irish setter dog breeds guide"},
		{ID: 3, Title: "c", Text: "irish coffee"},
	}
	idx := buildIndex(t, docs)

	hits := Rank(idx, "irish", 10, 0.0)
	for i := 1; i < len(hits); i++ {
		prev, cur := hits[i-1], hits[i]
		if prev.SimilarityScore < cur.SimilarityScore {
			t.Fatalf("hits not sorted by score descending: %v", hits)
		}
		if prev.SimilarityScore == cur.SimilarityScore && prev.ID >= cur.ID {
			t.Fatalf("score ties not sorted by ascending id: %v", hits)
		}
	}
}

func TestRankSnippet(t *testing.T) {
	long := strings.Repeat("irish word salad ", 50)
	idx := buildIndex(t, []store.Document{
		{ID: 1, URL: "http://example.com", Title: "long", Text: long},
		{ID: 2, Title: "short", Text: "irish"},
	})

	hits := Rank(idx, "irish", 10, 0.0)
	for _, h := range hits {
		switch h.ID {
		case 1:
			if got := len([]rune(h.TextSnippet)); got != SnippetLength {
				t.Errorf("long document snippet should be %d runes, got %d", SnippetLength, got)
			}
			if !strings.HasPrefix(long, h.TextSnippet) {
				t.Error("snippet must be a prefix of the document text")
			}
		case 2:
			if h.TextSnippet != "irish" {
				t.Errorf("short document snippet should be the full text, got %q", h.TextSnippet)
			}
		}
	}
}

func TestRankDeterminism(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "irish setter dog"},
		{ID: 2, Title: "b", Text: "irish coffee recipe"},
		{ID: 3, Title: "c", Text: "dog walking guide"},
	}
	idx := buildIndex(t, docs)

	first, err := json.Marshal(Rank(idx, "irish dog", 10, 0.0))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := json.Marshal(Rank(idx, "irish dog", 10, 0.0))
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("identical calls produced different output:\n%s\n%s", first, again)
		}
	}
}
