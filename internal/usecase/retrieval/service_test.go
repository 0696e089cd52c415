package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/alannreyes/uwia-sub001/internal/domain"
	"github.com/alannreyes/uwia-sub001/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterExtractionMetrics()
	m.Run()
}

type memSessions struct {
	sessions map[string]*domain.ProcessingSession
	chunks   map[string][]domain.DocumentChunk
	loadErr  error
}

func newMemSessions() *memSessions {
	return &memSessions{
		sessions: make(map[string]*domain.ProcessingSession),
		chunks:   make(map[string][]domain.DocumentChunk),
	}
}

func (m *memSessions) Create(_ context.Context, s *domain.ProcessingSession) error {
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) Update(_ context.Context, s *domain.ProcessingSession) error {
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*domain.ProcessingSession, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) SaveChunks(_ context.Context, s *domain.ProcessingSession, chunks []domain.DocumentChunk) error {
	m.chunks[s.ID] = append([]domain.DocumentChunk(nil), chunks...)
	return nil
}

func (m *memSessions) LoadChunks(_ context.Context, id string) ([]domain.DocumentChunk, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	chunks, ok := m.chunks[id]
	if !ok || len(chunks) == 0 {
		return nil, domain.ErrNoChunks
	}
	return chunks, nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	delete(m.sessions, id)
	delete(m.chunks, id)
	return nil
}

// wordEmbedder produces deterministic vectors: one dimension per tracked
// keyword, so texts sharing keywords have high cosine similarity.
type wordEmbedder struct {
	keywords   []string
	batchCalls int
	err        error
}

func (e *wordEmbedder) vector(text string) []float32 {
	v := make([]float32, len(e.keywords)+1)
	v[len(e.keywords)] = 0.1
	lower := strings.ToLower(text)
	for i, kw := range e.keywords {
		if strings.Contains(lower, kw) {
			v[i] = 1
		}
	}
	return v
}

func (e *wordEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: e.vector(text), TotalTokens: 7}, nil
}

func (e *wordEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	e.batchCalls++
	if e.err != nil {
		return domain.BatchEmbeddingResult{}, e.err
	}
	out := domain.BatchEmbeddingResult{TotalTokens: 7 * len(texts)}
	for _, t := range texts {
		out.Embeddings = append(out.Embeddings, e.vector(t))
	}
	return out, nil
}

type answerModel struct {
	response   string
	err        error
	lastPrompt string
}

func (m *answerModel) Extract(_ context.Context, in domain.ModelInput) (domain.ModelOutput, error) {
	m.lastPrompt = in.Prompt
	if m.err != nil {
		return domain.ModelOutput{}, m.err
	}
	return domain.ModelOutput{Response: m.response, Confidence: 0.85, ModelID: "stub/text", TokensUsed: 30}, nil
}

func (m *answerModel) ID() string { return "stub/text" }

func bigDoc(pages int) domain.Document {
	doc := domain.Document{FileName: "huge.pdf", SizeBytes: 90 << 20}
	for i := 1; i <= pages; i++ {
		text := fmt.Sprintf("General policy narrative for page %d.", i)
		if i == 7 {
			text = "The policy number POL-4451 appears on the declarations page."
		}
		doc.Pages = append(doc.Pages, domain.Page{Number: i, Text: text})
	}
	return doc
}

func newService(repo *memSessions, emb *wordEmbedder, model *answerModel) *Service {
	return New(repo, emb, model, 3, 6000, zap.NewNop()).WithLimiter(rate.NewLimiter(rate.Inf, 1))
}

func TestIngest_CreatesReadySessionWithChunks(t *testing.T) {
	repo := newMemSessions()
	emb := &wordEmbedder{keywords: []string{"policy number", "declarations"}}
	svc := newService(repo, emb, &answerModel{})

	sess, err := svc.Ingest(context.Background(), bigDoc(12), 3)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if sess.Status != domain.SessionReady {
		t.Errorf("session status = %q, want ready", sess.Status)
	}
	if sess.ChunkCount != 4 {
		t.Errorf("ChunkCount = %d, want 4 (12 pages / 3 per chunk)", sess.ChunkCount)
	}

	chunks, err := repo.LoadChunks(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("LoadChunks() error = %v", err)
	}
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			t.Errorf("chunk %d has no embedding", c.Index)
		}
	}
}

func TestIngest_BatchesEmbeddings(t *testing.T) {
	repo := newMemSessions()
	emb := &wordEmbedder{keywords: []string{"policy"}}
	svc := newService(repo, emb, &answerModel{})

	// 12 chunks of one page each: 3 batches of 5, 5, 2.
	if _, err := svc.Ingest(context.Background(), bigDoc(12), 1); err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if emb.batchCalls != 3 {
		t.Errorf("batch calls = %d, want 3", emb.batchCalls)
	}
}

func TestIngest_EmbeddingFailureTolerated(t *testing.T) {
	repo := newMemSessions()
	emb := &wordEmbedder{err: errors.New("embedding provider down")}
	svc := newService(repo, emb, &answerModel{})

	sess, err := svc.Ingest(context.Background(), bigDoc(6), 3)
	if err != nil {
		t.Fatalf("Ingest() error = %v, want chunks stored without vectors", err)
	}
	chunks, _ := repo.LoadChunks(context.Background(), sess.ID)
	for _, c := range chunks {
		if len(c.Embedding) != 0 {
			t.Errorf("chunk %d unexpectedly embedded", c.Index)
		}
	}
}

func TestIngest_EmptyDocumentFailsSession(t *testing.T) {
	repo := newMemSessions()
	svc := newService(repo, &wordEmbedder{}, &answerModel{})

	doc := domain.Document{FileName: "blank.pdf", Pages: []domain.Page{{Number: 1, Text: "  "}}}
	_, err := svc.Ingest(context.Background(), doc, 3)
	if !errors.Is(err, domain.ErrEmptyDocument) {
		t.Fatalf("Ingest() error = %v, want ErrEmptyDocument", err)
	}
	for _, s := range repo.sessions {
		if s.Status != domain.SessionFailed {
			t.Errorf("session status = %q, want failed", s.Status)
		}
	}
}

func TestAnswer_RanksRelevantChunkIntoContext(t *testing.T) {
	repo := newMemSessions()
	emb := &wordEmbedder{keywords: []string{"policy number", "declarations"}}
	model := &answerModel{response: "POL-4451"}
	svc := newService(repo, emb, model)

	sess, err := svc.Ingest(context.Background(), bigDoc(20), 1)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	field := domain.FieldRequest{FieldID: "policy_number", Question: "What is the policy number?", ExpectedType: domain.TypeText}
	got, err := svc.Answer(context.Background(), sess.ID, field)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got.Response != "POL-4451" {
		t.Errorf("Answer() response = %q, want POL-4451", got.Response)
	}
	if got.Method != "retrieval" {
		t.Errorf("Answer() method = %q, want retrieval", got.Method)
	}
	if !strings.Contains(model.lastPrompt, "POL-4451 appears on the declarations") {
		t.Error("prompt does not contain the relevant chunk")
	}
}

func TestAnswer_MissingSessionSurfacesError(t *testing.T) {
	repo := newMemSessions()
	svc := newService(repo, &wordEmbedder{}, &answerModel{})

	field := domain.FieldRequest{FieldID: "x", Question: "x?", ExpectedType: domain.TypeText}
	_, err := svc.Answer(context.Background(), "missing", field)
	if !errors.Is(err, domain.ErrNoChunks) {
		t.Errorf("Answer() error = %v, want ErrNoChunks", err)
	}
}

func TestAnswerComprehensive_UsesAllChunks(t *testing.T) {
	repo := newMemSessions()
	emb := &wordEmbedder{keywords: []string{"policy"}}
	model := &answerModel{response: "YES"}
	svc := newService(repo, emb, model)

	sess, err := svc.Ingest(context.Background(), bigDoc(6), 1)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	field := domain.FieldRequest{FieldID: "any_mention", Question: "Any mention of page 3?", ExpectedType: domain.TypeBoolean}
	if _, err := svc.AnswerComprehensive(context.Background(), sess.ID, field); err != nil {
		t.Fatalf("AnswerComprehensive() error = %v", err)
	}
	for i := 1; i <= 6; i++ {
		if !strings.Contains(model.lastPrompt, fmt.Sprintf("page %d", i)) {
			t.Errorf("comprehensive prompt missing page %d", i)
		}
	}
}

func TestDeleteSession_Cascades(t *testing.T) {
	repo := newMemSessions()
	svc := newService(repo, &wordEmbedder{}, &answerModel{})

	sess, err := svc.Ingest(context.Background(), bigDoc(4), 2)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if err := svc.DeleteSession(context.Background(), sess.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := repo.LoadChunks(context.Background(), sess.ID); !errors.Is(err, domain.ErrNoChunks) {
		t.Errorf("chunks survived session deletion: %v", err)
	}
}

func TestRank_BlendedScorePrefersRelevantChunk(t *testing.T) {
	emb := &wordEmbedder{keywords: []string{"policy number", "declarations"}}
	chunks := []domain.DocumentChunk{
		{Index: 0, Content: "General narrative about weather.", Embedding: emb.vector("General narrative about weather."), Pages: []int{1}},
		{Index: 1, Content: "The policy number POL-4451 on the declarations page.", Embedding: emb.vector("The policy number POL-4451 on the declarations page."), Pages: []int{7}},
	}

	query := "What is the policy number?"
	ranked := Rank(query, emb.vector(query), chunks, 2)
	if ranked[0].Chunk.Index != 1 {
		t.Errorf("Rank() top chunk = %d, want the policy chunk", ranked[0].Chunk.Index)
	}
	if ranked[0].Score <= ranked[1].Score {
		t.Errorf("Rank() scores not ordered: %v <= %v", ranked[0].Score, ranked[1].Score)
	}
}

func TestChunkDocument_GroupsPages(t *testing.T) {
	chunks := ChunkDocument(context.Background(), bigDoc(7), 3, nil)
	if len(chunks) != 3 {
		t.Fatalf("ChunkDocument() = %d chunks, want 3", len(chunks))
	}
	if got := chunks[1].Pages; len(got) != 3 || got[0] != 4 {
		t.Errorf("chunk 1 pages = %v, want [4 5 6]", got)
	}
	if chunks[2].Index != 2 {
		t.Errorf("chunk indices not sequential: %+v", chunks[2])
	}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := Cosine(a, a); got < 0.999 {
		t.Errorf("Cosine(a, a) = %v, want 1", got)
	}
	if got := Cosine(a, []float32{0, 1, 0}); got != 0 {
		t.Errorf("Cosine(orthogonal) = %v, want 0", got)
	}
	if got := Cosine(a, []float32{1, 0}); got != 0 {
		t.Errorf("Cosine(mismatched dims) = %v, want 0", got)
	}
}
