// Package upload tracks in-flight chunked uploads and drives their assembly
// into staged source videos.
package upload

import (
	"fmt"
	"sync"
	"time"
)

// State is the externally visible state of an upload.
type State string

const (
	StateUnknown    State = "unknown"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Session is the chunk-assembly state machine for one upload.
// All access goes through methods holding the session's own lock.
type Session struct {
	mu sync.Mutex

	id          string
	filename    string
	contentType string

	// chunks maps sequence number to the persisted chunk path.
	chunks map[int]string

	lastSeen    bool
	totalChunks int // 0 until the final chunk fixes it
	assembled   bool
	videoID     string
	errMessage  string
	createdAt   time.Time
}

// NewSession creates an empty session for the given upload id.
func NewSession(id, filename, contentType string) *Session {
	return &Session{
		id:          id,
		filename:    filename,
		contentType: contentType,
		chunks:      make(map[int]string),
		createdAt:   time.Now(),
	}
}

// ID returns the upload id.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// recordChunk registers a persisted chunk path for seq.
// The final chunk fixes totalChunks = seq+1 exactly once; a chunk at or
// beyond a known total, or a final chunk contradicting it, is a protocol
// error. Re-sending the real final chunk is tolerated.
func (s *Session) recordChunk(seq int, path string, isLast bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.assembled {
		return fmt.Errorf("upload %s already assembled", s.id)
	}
	if s.totalChunks > 0 && seq >= s.totalChunks {
		return fmt.Errorf("chunk %d beyond declared total %d", seq, s.totalChunks)
	}
	if isLast && s.lastSeen && seq+1 != s.totalChunks {
		return fmt.Errorf("final chunk %d conflicts with declared total %d", seq, s.totalChunks)
	}
	s.chunks[seq] = path
	if isLast && !s.lastSeen {
		s.lastSeen = true
		s.totalChunks = seq + 1
	}
	return nil
}

// setError records a chunk-level failure for later status reporting.
func (s *Session) setError(msg string) {
	s.mu.Lock()
	s.errMessage = msg
	s.mu.Unlock()
}

// complete reports whether the final chunk arrived and every sequence is present.
func (s *Session) complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen && len(s.chunks) == s.totalChunks
}

// Status describes an upload's externally visible state.
type Status struct {
	State        State
	Percent      int
	VideoID      string
	ErrorMessage string
	ChunkCount   int
	TotalChunks  int
}

// status computes the session's current status.
func (s *Session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{ChunkCount: len(s.chunks), TotalChunks: s.totalChunks}
	switch {
	case s.errMessage != "":
		st.State = StateFailed
		st.ErrorMessage = s.errMessage
	case s.assembled:
		st.State = StateCompleted
		st.Percent = 100
		st.VideoID = s.videoID
	default:
		st.State = StateInProgress
		if s.totalChunks > 0 {
			st.Percent = 100 * len(s.chunks) / s.totalChunks
		} else {
			// Coarse estimate until the final chunk declares the total.
			st.Percent = 10 * len(s.chunks)
		}
		if st.Percent > 100 {
			st.Percent = 100
		}
	}
	return st
}
