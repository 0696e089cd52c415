// Package retrieval implements the fallback pipeline for documents too
// large to analyze directly: chunk, embed, rank by blended similarity,
// assemble a bounded context window, and synthesize the answer with a
// text model.
package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/metrics"
)

const (
	// embedBatchSize bounds one embedding API call during ingestion.
	embedBatchSize = 5

	// charsPerToken estimates token counts from character counts for the
	// context budget.
	charsPerToken = 4

	defaultTopK             = 8
	defaultMaxContextTokens = 6000
)

// Service owns the retrieval-augmented extraction path.
type Service struct {
	sessions SessionRepo
	embedder Embedder
	model    domain.Model
	limiter  *rate.Limiter

	topK             int
	maxContextTokens int
	logger           *zap.Logger
}

// New creates a Service. topK and maxContextTokens fall back to defaults
// when non-positive.
func New(sessions SessionRepo, embedder Embedder, model domain.Model, topK, maxContextTokens int, log *zap.Logger) *Service {
	if topK <= 0 {
		topK = defaultTopK
	}
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Service{
		sessions: sessions,
		embedder: embedder,
		model:    model,
		// One embedding batch per second keeps ingestion under provider
		// rate limits.
		limiter:          rate.NewLimiter(rate.Every(time.Second), 1),
		topK:             topK,
		maxContextTokens: maxContextTokens,
		logger:           log,
	}
}

// WithLimiter replaces the embedding pacing limiter. Tests use an
// unlimited one.
func (s *Service) WithLimiter(l *rate.Limiter) *Service {
	s.limiter = l
	return s
}

// Ingest chunks and embeds the document under a new processing session.
// Partial embedding failures are tolerated: chunks that could not be
// embedded are stored without vectors and still participate in keyword
// ranking.
func (s *Service) Ingest(ctx context.Context, doc domain.Document, pagesPerChunk int) (*domain.ProcessingSession, error) {
	sess := &domain.ProcessingSession{
		ID:        uuid.NewString(),
		FileName:  doc.FileName,
		SizeBytes: doc.SizeBytes,
		PageCount: doc.PageCount(),
		Status:    domain.SessionPending,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionsActive.Inc()

	if err := sess.Advance(domain.SessionProcessing); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("mark session processing: %w", err)
	}

	chunks := ChunkDocument(ctx, doc, pagesPerChunk, s.embedder)
	if len(chunks) == 0 {
		s.failSession(ctx, sess)
		return nil, domain.ErrEmptyDocument
	}

	embedded := s.embedChunks(ctx, chunks)
	sess.ChunkCount = len(chunks)
	if err := s.sessions.SaveChunks(ctx, sess, chunks); err != nil {
		s.failSession(ctx, sess)
		return nil, fmt.Errorf("save chunks: %w", err)
	}

	if err := sess.Advance(domain.SessionReady); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("mark session ready: %w", err)
	}

	s.logger.Info("document ingested for retrieval",
		zap.String("session_id", sess.ID),
		zap.String("file", doc.FileName),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedded", embedded))
	return sess, nil
}

// embedChunks attaches vectors to chunks in place, batched with pacing.
// Returns how many chunks got a vector.
func (s *Service) embedChunks(ctx context.Context, chunks []domain.DocumentChunk) int {
	embedded := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		if err := s.limiter.Wait(ctx); err != nil {
			return embedded
		}

		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		res, err := s.embedder.BatchEmbed(ctx, texts)
		if err != nil {
			s.logger.Warn("embedding batch failed, chunks fall back to keyword ranking",
				zap.Int("batch_start", start),
				zap.Error(err))
			continue
		}
		for i := range res.Embeddings {
			chunks[start+i].Embedding = res.Embeddings[i]
			embedded++
		}
		domain.UsageFromContext(ctx).AddEmbeddingTokens(res.TotalTokens)
	}
	return embedded
}

// Answer resolves one field against an ingested session: embed the
// question, rank chunks, assemble a bounded context, and ask the text
// model.
func (s *Service) Answer(ctx context.Context, sessionID string, field domain.FieldRequest) (domain.ModelResult, error) {
	chunks, err := s.sessions.LoadChunks(ctx, sessionID)
	if err != nil {
		return domain.ModelResult{}, fmt.Errorf("load chunks: %w", err)
	}

	var queryVec []float32
	if res, err := s.embedder.Embed(ctx, field.Question); err == nil {
		queryVec = res.Embedding
		domain.UsageFromContext(ctx).AddEmbeddingTokens(res.TotalTokens)
	} else {
		s.logger.Warn("query embedding failed, ranking on keywords only",
			zap.String("field_id", field.FieldID),
			zap.Error(err))
	}

	ranked := Rank(field.Question, queryVec, chunks, s.topK)
	docContext, pages := s.assembleContext(ranked)
	return s.synthesize(ctx, field, docContext, pages)
}

// AnswerComprehensive bypasses ranking and feeds every session chunk to
// the model, still bounded by the context budget. Used when completeness
// matters more than context economy.
func (s *Service) AnswerComprehensive(ctx context.Context, sessionID string, field domain.FieldRequest) (domain.ModelResult, error) {
	chunks, err := s.sessions.LoadChunks(ctx, sessionID)
	if err != nil {
		return domain.ModelResult{}, fmt.Errorf("load chunks: %w", err)
	}

	all := make([]domain.ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		all = append(all, domain.ScoredChunk{Chunk: c, Score: 1})
	}
	docContext, pages := s.assembleContext(all)
	return s.synthesize(ctx, field, docContext, pages)
}

// assembleContext concatenates ranked chunks into one context string
// within the token budget, dropping lowest-ranked chunks that do not
// fit. Returns the covered page numbers.
func (s *Service) assembleContext(ranked []domain.ScoredChunk) (string, []int) {
	budget := s.maxContextTokens * charsPerToken
	var sb strings.Builder
	var pages []int
	seen := make(map[int]struct{})

	for _, sc := range ranked {
		if sb.Len()+len(sc.Chunk.Content) > budget {
			if sb.Len() == 0 {
				// A single oversized chunk is truncated instead of dropped.
				sb.WriteString(sc.Chunk.Content[:budget])
				for _, p := range sc.Chunk.Pages {
					pages = append(pages, p)
				}
			}
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		sb.WriteString(sc.Chunk.Content)
		for _, p := range sc.Chunk.Pages {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				pages = append(pages, p)
			}
		}
	}
	return sb.String(), pages
}

func (s *Service) synthesize(ctx context.Context, field domain.FieldRequest, docContext string, pages []int) (domain.ModelResult, error) {
	if docContext == "" {
		return domain.ModelResult{}, domain.ErrNoChunks
	}

	prompt := fmt.Sprintf(
		"Answer from the document excerpts below. Respond with the value only, or %s if absent.\n\nQUESTION: %s\n\nEXCERPTS:\n%s",
		domain.NotFound, field.Question, docContext)

	out, err := s.model.Extract(ctx, domain.ModelInput{
		Text:         docContext,
		Prompt:       prompt,
		ExpectedType: field.ExpectedType,
		FieldID:      field.FieldID,
	})
	if err != nil {
		return domain.ModelResult{}, fmt.Errorf("synthesize answer for %s: %w", field.FieldID, err)
	}

	page := 0
	if len(pages) > 0 {
		page = pages[0]
	}
	return domain.ModelResult{
		FieldID:    field.FieldID,
		Page:       page,
		Response:   strings.TrimSpace(out.Response),
		Confidence: out.Confidence,
		ModelID:    out.ModelID,
		Method:     "retrieval",
		TokensUsed: out.TokensUsed,
		Elapsed:    out.Elapsed,
	}, nil
}

// DeleteSession removes a session and everything it owns.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return err
	}
	metrics.SessionsActive.Dec()
	return nil
}

func (s *Service) failSession(ctx context.Context, sess *domain.ProcessingSession) {
	if err := sess.Advance(domain.SessionFailed); err != nil {
		return
	}
	if err := s.sessions.Update(ctx, sess); err != nil {
		s.logger.Warn("failed to mark session failed",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
}
