package index

import (
	"math"
	"sort"

	"github.com/docstream-labs/docsearch/internal/store"
)

// Index is a TF-IDF vector space over one document snapshot. It is immutable
// after Build: readers may share it freely across goroutines.
type Index struct {
	generation uint64
	vocab      map[string]int
	idf        []float64
	docs       []docVector
}

// docVector pairs a document with its L2-normalised sparse weight vector.
type docVector struct {
	doc     store.Document
	weights map[int]float64
}

// Build constructs an Index from a document snapshot. Vocabulary dimensions
// are assigned in sorted term order so identical snapshots always produce
// identical indexes. IDF uses the smoothed form log((1+N)/(1+df)) + 1.
func Build(generation uint64, docs []store.Document) *Index {
	tokenized := make([][]string, len(docs))
	df := make(map[string]int)
	for i, doc := range docs {
		tokens := Tokenize(doc.Text)
		tokenized[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	idx := &Index{
		generation: generation,
		vocab:      make(map[string]int, len(terms)),
		idf:        make([]float64, len(terms)),
		docs:       make([]docVector, 0, len(docs)),
	}
	n := float64(len(docs))
	for i, term := range terms {
		idx.vocab[term] = i
		idx.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	for i, doc := range docs {
		idx.docs = append(idx.docs, docVector{
			doc:     doc,
			weights: idx.vectorize(tokenized[i]),
		})
	}
	return idx
}

// Generation returns the generation this index was built as.
func (idx *Index) Generation() uint64 {
	return idx.generation
}

// Size returns the number of documents in the index.
func (idx *Index) Size() int {
	return len(idx.docs)
}

// Documents returns the snapshot the index was built from, ordered by id.
func (idx *Index) Documents() []store.Document {
	docs := make([]store.Document, len(idx.docs))
	for i, dv := range idx.docs {
		docs[i] = dv.doc
	}
	return docs
}

// Score computes the cosine similarity between the query and every document,
// keyed by document id. Query terms absent from the vocabulary contribute
// zero; a query with no known terms scores zero everywhere.
func (idx *Index) Score(query string) map[int64]float64 {
	queryVec := idx.vectorize(Tokenize(query))
	scores := make(map[int64]float64, len(idx.docs))
	for _, dv := range idx.docs {
		scores[dv.doc.ID] = dot(queryVec, dv.weights)
	}
	return scores
}

// vectorize turns tokens into an L2-normalised sparse TF-IDF vector in the
// index term space.
func (idx *Index) vectorize(tokens []string) map[int]float64 {
	tf := make(map[int]int)
	total := 0
	for _, tok := range tokens {
		dim, ok := idx.vocab[tok]
		if !ok {
			continue
		}
		tf[dim]++
		total++
	}
	vec := make(map[int]float64, len(tf))
	if total == 0 {
		return vec
	}
	// Sum in ascending dimension order: float addition is not associative,
	// and map iteration order would make identical inputs round differently.
	dims := make([]int, 0, len(tf))
	for dim := range tf {
		dims = append(dims, dim)
	}
	sort.Ints(dims)
	var norm float64
	for _, dim := range dims {
		w := float64(tf[dim]) / float64(total) * idx.idf[dim]
		vec[dim] = w
		norm += w * w
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for _, dim := range dims {
			vec[dim] /= norm
		}
	}
	return vec
}

// dot multiplies two normalised sparse vectors, iterating the smaller one in
// ascending dimension order so the accumulation is deterministic.
func dot(a, b map[int]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	dims := make([]int, 0, len(a))
	for dim := range a {
		dims = append(dims, dim)
	}
	sort.Ints(dims)
	var sum float64
	for _, dim := range dims {
		if bv, ok := b[dim]; ok {
			sum += a[dim] * bv
		}
	}
	// Guard against float drift past the cosine bounds.
	if sum > 1 {
		sum = 1
	}
	if sum < 0 {
		sum = 0
	}
	return sum
}
