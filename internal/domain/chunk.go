package domain

// DocumentChunk is a content-coherent slice of a document's text, produced
// for retrieval-based search. Immutable once its embedding is attached.
type DocumentChunk struct {
	Index     int
	Content   string
	Pages     []int
	Embedding []float32
}

// ScoredChunk is a chunk ranked for a query.
type ScoredChunk struct {
	Chunk DocumentChunk
	Score float64
}
