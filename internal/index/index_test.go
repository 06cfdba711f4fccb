package index

import (
	"fmt"
	"math"
	"testing"

	"github.com/docstream-labs/docsearch/internal/store"
)

func TestBuildEmptyCorpus(t *testing.T) {
	idx := Build(1, nil)
	if idx.Size() != 0 {
		t.Fatalf("expected empty index, got %d documents", idx.Size())
	}
	scores := idx.Score("anything")
	if len(scores) != 0 {
		t.Fatalf("expected no scores for empty corpus, got %v", scores)
	}
}

func TestScoreBounds(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "irish setter dog"},
		{ID: 2, Title: "b", Text: "irish coffee recipe"},
		{ID: 3, Title: "c", Text: "quantum field theory"},
	}
	idx := Build(1, docs)

	scores := idx.Score("irish coffee")
	if len(scores) != 3 {
		t.Fatalf("expected a score per document, got %d", len(scores))
	}
	for id, s := range scores {
		if s < 0 || s > 1 {
			t.Errorf("score for doc %d out of [0,1]: %v", id, s)
		}
	}
	if scores[2] <= scores[1] {
		t.Errorf("doc 2 shares two terms with the query, doc 1 shares one: want scores[2] > scores[1], got %v vs %v", scores[2], scores[1])
	}
	if scores[3] != 0 {
		t.Errorf("doc 3 shares no terms with the query, want 0, got %v", scores[3])
	}
}

func TestScoreIdenticalTermOverlapTies(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "irish setter dog"},
		{ID: 2, Title: "b", Text: "irish coffee recipe"},
	}
	idx := Build(1, docs)

	scores := idx.Score("irish")
	if math.Abs(scores[1]-scores[2]) > 1e-12 {
		t.Fatalf("both documents contain the single query term once in three terms, want equal scores, got %v vs %v", scores[1], scores[2])
	}
	if scores[1] <= 0 {
		t.Fatalf("matching documents must score above zero, got %v", scores[1])
	}
}

func TestScoreSelfSimilarity(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "irish setter dog"},
		{ID: 2, Title: "b", Text: "completely unrelated words here"},
	}
	idx := Build(1, docs)

	scores := idx.Score("irish setter dog")
	if math.Abs(scores[1]-1) > 1e-9 {
		t.Errorf("query identical to document text should score ~1, got %v", scores[1])
	}
}

func TestScoreUnknownTermsContributeZero(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "irish setter dog"},
	}
	idx := Build(1, docs)

	withUnknown := idx.Score("irish zzzunknown")
	onlyUnknown := idx.Score("zzzunknown qqqmissing")
	if withUnknown[1] <= 0 {
		t.Errorf("known term should still contribute, got %v", withUnknown[1])
	}
	if onlyUnknown[1] != 0 {
		t.Errorf("query with no known terms should score 0, got %v", onlyUnknown[1])
	}
}

func TestScoreEmptyQuery(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "irish setter dog"},
	}
	idx := Build(1, docs)
	scores := idx.Score("")
	if scores[1] != 0 {
		t.Fatalf("empty query must score 0 everywhere, got %v", scores[1])
	}
}

func TestBuildDeterminism(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "irish setter dog breeds"},
		{ID: 2, Title: "b", Text: "irish coffee recipe guide"},
		{ID: 3, Title: "c", Text: "dog training for setters"},
	}
	a := Build(7, docs)
	b := Build(7, docs)
	for _, query := range []string{"irish", "dog setter", "coffee guide irish"} {
		sa := a.Score(query)
		sb := b.Score(query)
		for id := range sa {
			if sa[id] != sb[id] {
				t.Fatalf("query %q: scores differ between identical builds for doc %d: %v vs %v", query, id, sa[id], sb[id])
			}
		}
	}
}

func TestScoreBitwiseDeterminism(t *testing.T) {
	docs := make([]store.Document, 50)
	for i := range docs {
		docs[i] = store.Document{
			ID:    int64(i + 1),
			Title: fmt.Sprintf("doc %d", i),
			Text:  fmt.Sprintf("document number %d about search engines ranking retrieval indexing caching limiting scoring topic %d", i, i%7),
		}
	}
	idx := Build(1, docs)
	query := "search engines ranking retrieval indexing caching limiting scoring document number topic about irish setter dog coffee"

	first := idx.Score(query)
	for run := 0; run < 2000; run++ {
		again := idx.Score(query)
		for id, want := range first {
			if got := again[id]; math.Float64bits(got) != math.Float64bits(want) {
				t.Fatalf("run %d: doc %d score bits differ: %x vs %x",
					run, id, math.Float64bits(want), math.Float64bits(got))
			}
		}
	}
}

func TestDocumentsOrderedByID(t *testing.T) {
	docs := []store.Document{
		{ID: 1, Title: "a", Text: "one"},
		{ID: 2, Title: "b", Text: "two"},
		{ID: 5, Title: "c", Text: "five"},
	}
	idx := Build(1, docs)
	got := idx.Documents()
	for i := 1; i < len(got); i++ {
		if got[i-1].ID >= got[i].ID {
			t.Fatalf("documents not ordered by id: %v", got)
		}
	}
}

func BenchmarkBuild(b *testing.B) {
	docs := make([]store.Document, 500)
	for i := range docs {
		docs[i] = store.Document{
			ID:    int64(i + 1),
			Title: fmt.Sprintf("doc %d", i),
			Text:  fmt.Sprintf("document number %d about search engines ranking and retrieval topic %d", i, i%17),
		}
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Build(uint64(i), docs)
	}
}

func BenchmarkScore(b *testing.B) {
	docs := make([]store.Document, 500)
	for i := range docs {
		docs[i] = store.Document{
			ID:    int64(i + 1),
			Title: fmt.Sprintf("doc %d", i),
			Text:  fmt.Sprintf("document number %d about search engines ranking and retrieval topic %d", i, i%17),
		}
	}
	idx := Build(1, docs)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		idx.Score("search ranking retrieval")
	}
}
