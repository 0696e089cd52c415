package domain

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a processing session.
type SessionStatus string

// Session lifecycle states.
const (
	SessionPending    SessionStatus = "pending"
	SessionProcessing SessionStatus = "processing"
	SessionReady      SessionStatus = "ready"
	SessionFailed     SessionStatus = "failed"
)

// MaxSessionTransitions bounds state-machine advances so a stuck poll loop
// cannot spin forever.
const MaxSessionTransitions = 30

// ProcessingSession is the ephemeral record behind a retrieval-augmented run.
// It exclusively owns its chunks and embeddings: deleting the session deletes
// everything derived from it.
type ProcessingSession struct {
	ID          string
	FileName    string
	SizeBytes   int64
	PageCount   int
	ChunkCount  int
	Status      SessionStatus
	Transitions int
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the session is past its TTL.
func (s *ProcessingSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Advance moves the session to the next status. Only the transitions
// pending -> processing, processing -> ready and {pending,processing} -> failed
// are legal; transition count is bounded by MaxSessionTransitions.
func (s *ProcessingSession) Advance(next SessionStatus) error {
	if s.Transitions >= MaxSessionTransitions {
		return fmt.Errorf("session %s exceeded %d transitions", s.ID, MaxSessionTransitions)
	}
	ok := false
	switch s.Status {
	case SessionPending:
		ok = next == SessionProcessing || next == SessionFailed
	case SessionProcessing:
		ok = next == SessionReady || next == SessionFailed || next == SessionProcessing
	case SessionReady, SessionFailed:
		ok = false
	}
	if !ok {
		return fmt.Errorf("illegal session transition %s -> %s", s.Status, next)
	}
	s.Status = next
	s.Transitions++
	return nil
}

// Terminal reports whether the session reached a final state.
func (s *ProcessingSession) Terminal() bool {
	return s.Status == SessionReady || s.Status == SessionFailed
}
