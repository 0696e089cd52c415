package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// Blended ranking weights. Cosine similarity dominates; keyword overlap
// keeps exact policy numbers and names from being drowned out by
// paraphrase-level similarity.
const (
	cosineWeight  = 0.7
	keywordWeight = 0.3
)

// Cosine returns the cosine similarity of two vectors, 0 for mismatched
// or empty inputs.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// keywordOverlap is the fraction of query tokens present in the chunk.
func keywordOverlap(query, content string) float64 {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return 0
	}
	contentTokens := make(map[string]struct{})
	for _, t := range tokenize(content) {
		contentTokens[t] = struct{}{}
	}
	hits := 0
	for _, t := range queryTokens {
		if _, ok := contentTokens[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:()\"'?")
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// Rank scores every chunk against the query and returns the top k by
// blended score, highest first. Chunks without embeddings score on
// keywords alone.
func Rank(query string, queryVec []float32, chunks []domain.DocumentChunk, k int) []domain.ScoredChunk {
	scored := make([]domain.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		score := cosineWeight*Cosine(queryVec, c.Embedding) + keywordWeight*keywordOverlap(query, c.Content)
		scored = append(scored, domain.ScoredChunk{Chunk: c, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
