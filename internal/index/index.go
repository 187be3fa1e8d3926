// Package index maps free text to the most similar stored policies.
//
// Two backends implement Index: FileIndex keeps vectors in memory and
// persists them to local files, PGVectorIndex stores them in PostgreSQL
// with the pgvector extension. Both embed with an llm.Embedder and rank by
// cosine similarity over L2-normalized vectors.
package index

import (
	"context"
	"math"

	"policychat/internal/logger"
	"policychat/internal/model"
)

// Index is a nearest-neighbor store of policy records.
type Index interface {
	// Add embeds and inserts records. Embedding failures are returned.
	Add(ctx context.Context, records []model.PolicyRecord) error
	// Search returns at most k records, highest similarity first.
	Search(ctx context.Context, query string, k int) ([]model.PolicyRecord, error)
	// Count reports the number of indexed records.
	Count(ctx context.Context) (int, error)
	// Clear discards the index and its backing metadata.
	Clear(ctx context.Context) error
}

// SearchOrEmpty runs a search and degrades any failure to an empty result.
func SearchOrEmpty(ctx context.Context, idx Index, query string, k int, log *logger.Logger) []model.PolicyRecord {
	if idx == nil {
		return []model.PolicyRecord{}
	}
	results, err := idx.Search(ctx, query, k)
	if err != nil {
		log.Warn("Policy search failed, continuing without policies", "error", err)
		return []model.PolicyRecord{}
	}
	if results == nil {
		return []model.PolicyRecord{}
	}
	return results
}

// normalize returns v scaled to unit length; zero vectors are returned as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func indexTexts(records []model.PolicyRecord) []string {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.IndexText()
	}
	return texts
}
