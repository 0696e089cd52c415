package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alannreyes/uwia-sub001/internal/db"
	"github.com/alannreyes/uwia-sub001/internal/domain"
)

const keyPrefix = "uwia:session:"

// store is the consumer interface for session persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
}

// Repo persists processing sessions and their chunks. The session record and
// every chunk key carry the same TTL, so redis expiry removes a whole
// generation at once; explicit Delete cascades over the key prefix.
type Repo struct {
	store  store
	ttl    time.Duration
	now    func() time.Time
	active prometheus.Gauge
}

// New creates a session repository with the given time-to-live.
func New(s store, ttl time.Duration) *Repo {
	return &Repo{store: s, ttl: ttl, now: time.Now}
}

// WithActiveGauge attaches a gauge of live sessions. The repo decrements
// it when a lazily deleted record leaves the store without an explicit
// Delete call.
func (r *Repo) WithActiveGauge(g prometheus.Gauge) *Repo {
	r.active = g
	return r
}

// WithClock overrides the time source (test-only).
func (r *Repo) WithClock(now func() time.Time) *Repo {
	r.now = now
	return r
}

func sessionKey(id string) string { return keyPrefix + id }

func chunkKey(id string, index int) string {
	return fmt.Sprintf("%s%s:chunk:%d", keyPrefix, id, index)
}

// Create stores a new session, stamping creation and expiry times.
func (r *Repo) Create(ctx context.Context, sess *domain.ProcessingSession) error {
	now := r.now()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(r.ttl)
	if sess.Status == "" {
		sess.Status = domain.SessionPending
	}
	return r.put(ctx, sess, r.ttl)
}

// Update rewrites the session record, preserving the remaining TTL.
func (r *Repo) Update(ctx context.Context, sess *domain.ProcessingSession) error {
	remaining := time.Until(sess.ExpiresAt)
	if remaining <= 0 {
		return domain.ErrSessionExpired
	}
	return r.put(ctx, sess, remaining)
}

func (r *Repo) put(ctx context.Context, sess *domain.ProcessingSession, ttl time.Duration) error {
	rec := sessionRecord{
		ID:          sess.ID,
		FileName:    sess.FileName,
		SizeBytes:   sess.SizeBytes,
		PageCount:   sess.PageCount,
		ChunkCount:  sess.ChunkCount,
		Status:      string(sess.Status),
		Transitions: sess.Transitions,
		CreatedAt:   sess.CreatedAt.UnixMilli(),
		ExpiresAt:   sess.ExpiresAt.UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.store.SetWithTTL(ctx, sessionKey(sess.ID), data, ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Get loads a session by id. An expired record is lazily deleted and
// reported as ErrSessionExpired.
func (r *Repo) Get(ctx context.Context, id string) (*domain.ProcessingSession, error) {
	data, err := r.store.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}

	sess := &domain.ProcessingSession{
		ID:          rec.ID,
		FileName:    rec.FileName,
		SizeBytes:   rec.SizeBytes,
		PageCount:   rec.PageCount,
		ChunkCount:  rec.ChunkCount,
		Status:      domain.SessionStatus(rec.Status),
		Transitions: rec.Transitions,
		CreatedAt:   time.UnixMilli(rec.CreatedAt),
		ExpiresAt:   time.UnixMilli(rec.ExpiresAt),
	}

	if sess.Expired(r.now()) {
		_ = r.Delete(ctx, id)
		if r.active != nil {
			r.active.Dec()
		}
		return nil, domain.ErrSessionExpired
	}
	return sess, nil
}

// SaveChunks stores the session's chunks in one pipelined round-trip and
// aligns every chunk key's TTL with the session record.
func (r *Repo) SaveChunks(ctx context.Context, sess *domain.ProcessingSession, chunks []domain.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	items := make([]db.HashSetItem, len(chunks))
	for i, c := range chunks {
		items[i] = db.HashSetItem{Key: chunkKey(sess.ID, c.Index), Fields: buildChunkFields(c)}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	remaining := time.Until(sess.ExpiresAt)
	if remaining <= 0 {
		remaining = time.Second
	}
	for _, item := range items {
		if err := r.store.Expire(ctx, item.Key, remaining, false); err != nil {
			return fmt.Errorf("expire chunk %s: %w", item.Key, err)
		}
	}
	return nil
}

// LoadChunks returns all chunks of a session ordered by index.
func (r *Repo) LoadChunks(ctx context.Context, id string) ([]domain.DocumentChunk, error) {
	keys, err := r.store.Scan(ctx, keyPrefix+id+":chunk:*")
	if err != nil {
		return nil, fmt.Errorf("scan chunks: %w", err)
	}
	if len(keys) == 0 {
		return nil, domain.ErrNoChunks
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}

	chunks := make([]domain.DocumentChunk, 0, len(maps))
	for _, m := range maps {
		if len(m) == 0 {
			continue // expired between scan and fetch
		}
		chunks = append(chunks, parseChunkFields(m))
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })
	return chunks, nil
}

// Delete removes the session and everything it owns: the record itself and
// all chunk keys under its prefix.
func (r *Repo) Delete(ctx context.Context, id string) error {
	keys, err := r.store.Scan(ctx, keyPrefix+id+"*")
	if err != nil {
		return fmt.Errorf("scan session keys: %w", err)
	}
	for _, key := range keys {
		if err := r.store.Del(ctx, key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	return nil
}
