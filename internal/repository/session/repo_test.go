package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alannreyes/uwia-sub001/internal/db"
	"github.com/alannreyes/uwia-sub001/internal/domain"
)

// mockStore is an in-memory store implementing the consumer interface.
type mockStore struct {
	kv     map[string][]byte
	hashes map[string]map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{
		kv:     map[string][]byte{},
		hashes: map[string]map[string]string{},
	}
}

func (m *mockStore) Get(_ context.Context, key string) ([]byte, error) {
	if v, ok := m.kv[key]; ok {
		return v, nil
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) SetWithTTL(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.kv[key] = value
	return nil
}

func (m *mockStore) Expire(_ context.Context, _ string, _ time.Duration, _ bool) error {
	return nil
}

func (m *mockStore) Del(_ context.Context, key string) error {
	delete(m.kv, key)
	delete(m.hashes, key)
	return nil
}

func (m *mockStore) Scan(_ context.Context, pattern string) ([]string, error) {
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range m.kv {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	for k := range m.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (m *mockStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	for _, item := range items {
		m.hashes[item.Key] = item.Fields
	}
	return nil
}

func (m *mockStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = m.hashes[k]
	}
	return out, nil
}

func newTestSession() *domain.ProcessingSession {
	return &domain.ProcessingSession{
		ID:        "sess-1",
		FileName:  "claim.pdf",
		SizeBytes: 90 << 20,
		PageCount: 120,
	}
}

func TestCreateAndGet(t *testing.T) {
	ms := newMockStore()
	repo := New(ms, 2*time.Hour)

	sess := newTestSession()
	if err := repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.Status != domain.SessionPending {
		t.Errorf("expected pending status, got %s", sess.Status)
	}

	got, err := repo.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.FileName != "claim.pdf" || got.PageCount != 120 {
		t.Errorf("unexpected session: %+v", got)
	}
	if got.ExpiresAt.Sub(got.CreatedAt) != 2*time.Hour {
		t.Errorf("unexpected TTL window: %v", got.ExpiresAt.Sub(got.CreatedAt))
	}
}

func TestGet_NotFound(t *testing.T) {
	repo := New(newMockStore(), time.Hour)
	_, err := repo.Get(context.Background(), "missing")
	if err != domain.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestGet_ExpiredIsLazilyDeleted(t *testing.T) {
	ms := newMockStore()
	repo := New(ms, time.Hour)

	sess := newTestSession()
	if err := repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Move the clock past expiry.
	repo.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })

	_, err := repo.Get(context.Background(), "sess-1")
	if err != domain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, ok := ms.kv[sessionKey("sess-1")]; ok {
		t.Error("expired session record should have been deleted")
	}
}

func TestGet_ExpiredDecrementsActiveGauge(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_sessions_active"})
	ms := newMockStore()
	repo := New(ms, time.Hour).WithActiveGauge(gauge)

	sess := newTestSession()
	if err := repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	gauge.Inc()

	repo.WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) })

	if _, err := repo.Get(context.Background(), "sess-1"); err != domain.ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if got := testutil.ToFloat64(gauge); got != 0 {
		t.Errorf("active gauge after lazy delete = %v, want 0", got)
	}

	// A repeat lookup finds nothing and must not decrement again.
	if _, err := repo.Get(context.Background(), "sess-1"); err != domain.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if got := testutil.ToFloat64(gauge); got != 0 {
		t.Errorf("active gauge after repeat lookup = %v, want 0", got)
	}
}

func TestSaveAndLoadChunks(t *testing.T) {
	ms := newMockStore()
	repo := New(ms, time.Hour)

	sess := newTestSession()
	if err := repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	chunks := []domain.DocumentChunk{
		{Index: 1, Content: "second", Pages: []int{3, 4}, Embedding: []float32{0.5, 0.6}},
		{Index: 0, Content: "first", Pages: []int{1, 2}, Embedding: []float32{0.1, 0.2}},
	}
	if err := repo.SaveChunks(context.Background(), sess, chunks); err != nil {
		t.Fatalf("save chunks: %v", err)
	}

	got, err := repo.LoadChunks(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("load chunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0].Index != 0 || got[0].Content != "first" {
		t.Errorf("chunks not ordered by index: %+v", got)
	}
	if got[1].Pages[0] != 3 || got[1].Pages[1] != 4 {
		t.Errorf("pages lost in round trip: %+v", got[1])
	}
	if got[0].Embedding[1] != 0.2 {
		t.Errorf("embedding lost in round trip: %v", got[0].Embedding)
	}
}

func TestLoadChunks_Empty(t *testing.T) {
	repo := New(newMockStore(), time.Hour)
	_, err := repo.LoadChunks(context.Background(), "sess-1")
	if err != domain.ErrNoChunks {
		t.Fatalf("expected ErrNoChunks, got %v", err)
	}
}

func TestDelete_Cascades(t *testing.T) {
	ms := newMockStore()
	repo := New(ms, time.Hour)

	sess := newTestSession()
	if err := repo.Create(context.Background(), sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	chunks := []domain.DocumentChunk{
		{Index: 0, Content: "a"},
		{Index: 1, Content: "b"},
	}
	if err := repo.SaveChunks(context.Background(), sess, chunks); err != nil {
		t.Fatalf("save chunks: %v", err)
	}

	if err := repo.Delete(context.Background(), sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(ms.kv) != 0 || len(ms.hashes) != 0 {
		t.Errorf("cascade delete left keys behind: kv=%v hashes=%v", ms.kv, ms.hashes)
	}

	_, err := repo.Get(context.Background(), sess.ID)
	if err != domain.ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
}
