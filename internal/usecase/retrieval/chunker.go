package retrieval

import (
	"context"
	"regexp"
	"strings"

	"github.com/alannreyes/uwia-sub001/internal/domain"
)

const (
	// semanticBreakpoint marks a chunk boundary: consecutive sentences
	// whose embedding similarity falls below it belong to different
	// chunks.
	semanticBreakpoint = 0.55

	// semanticSplitMinChars is the page length above which semantic
	// splitting is attempted instead of one chunk per page group.
	semanticSplitMinChars = 8000

	// minSentenceLen filters noise fragments out of sentence splitting.
	minSentenceLen = 20
)

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// ChunkDocument slices a document into retrieval chunks: pagesPerChunk
// pages per chunk, except that a very long single page is split further
// at semantic sentence boundaries when an embedder is available.
// Chunk indices are assigned in document order.
func ChunkDocument(ctx context.Context, doc domain.Document, pagesPerChunk int, embedder Embedder) []domain.DocumentChunk {
	if pagesPerChunk < 1 {
		pagesPerChunk = 1
	}

	var chunks []domain.DocumentChunk
	for start := 0; start < len(doc.Pages); start += pagesPerChunk {
		end := start + pagesPerChunk
		if end > len(doc.Pages) {
			end = len(doc.Pages)
		}
		group := doc.Pages[start:end]

		var sb strings.Builder
		pages := make([]int, 0, len(group))
		for _, p := range group {
			sb.WriteString(p.Text)
			sb.WriteString("\n")
			pages = append(pages, p.Number)
		}
		content := strings.TrimSpace(sb.String())
		if content == "" {
			continue
		}

		if len(group) == 1 && len(content) > semanticSplitMinChars && embedder != nil {
			for _, part := range splitSemantic(ctx, content, embedder) {
				chunks = append(chunks, domain.DocumentChunk{
					Index:   len(chunks),
					Content: part,
					Pages:   pages,
				})
			}
			continue
		}

		chunks = append(chunks, domain.DocumentChunk{
			Index:   len(chunks),
			Content: content,
			Pages:   pages,
		})
	}
	return chunks
}

// splitSemantic splits text at sentence-similarity breakpoints: the
// sentences are embedded in one batch and a boundary opens wherever two
// consecutive sentence vectors diverge. Embedding failure degrades to a
// single chunk.
func splitSemantic(ctx context.Context, text string, embedder Embedder) []string {
	sentences := splitSentences(text)
	if len(sentences) < 2 {
		return []string{text}
	}

	res, err := embedder.BatchEmbed(ctx, sentences)
	if err != nil || len(res.Embeddings) != len(sentences) {
		return []string{text}
	}

	var parts []string
	var current strings.Builder
	current.WriteString(sentences[0])
	for i := 1; i < len(sentences); i++ {
		if Cosine(res.Embeddings[i-1], res.Embeddings[i]) < semanticBreakpoint {
			parts = append(parts, strings.TrimSpace(current.String()))
			current.Reset()
		} else {
			current.WriteString(" ")
		}
		current.WriteString(sentences[i])
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		parts = append(parts, s)
	}
	return parts
}

func splitSentences(text string) []string {
	raw := sentenceBoundary.Split(text, -1)
	sentences := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(s) >= minSentenceLen {
			sentences = append(sentences, s)
		}
	}
	return sentences
}
