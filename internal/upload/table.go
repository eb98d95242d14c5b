package upload

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/mediaspool/transcoded/internal/models"
	"github.com/mediaspool/transcoded/internal/storage"
)

// SessionTable is the process-wide table of upload sessions.
type SessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	store  storage.Store
	logger *slog.Logger
}

// NewSessionTable creates an empty session table backed by store.
func NewSessionTable(store storage.Store, logger *slog.Logger) *SessionTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionTable{
		sessions: make(map[string]*Session),
		store:    store,
		logger:   logger,
	}
}

// Chunk is one inbound upload chunk.
type Chunk struct {
	UploadID    string // empty on the first chunk means "server picks an id"
	Filename    string
	ContentType string
	Sequence    int
	IsLast      bool
	Data        []byte
}

// PutChunk persists one chunk, creating the session on first sight of the
// upload id. It returns the (possibly server-generated) upload id.
// A storage failure aborts the chunk but keeps the session alive, recording
// the error for status reporting.
func (t *SessionTable) PutChunk(chunk Chunk) (string, error) {
	if chunk.Sequence < 0 {
		return "", fmt.Errorf("negative sequence number %d", chunk.Sequence)
	}

	session := t.getOrCreate(chunk)

	path, err := t.store.PutChunk(session.ID(), chunk.Sequence, chunk.Data)
	if err != nil {
		session.setError(err.Error())
		return session.ID(), fmt.Errorf("%w: %w", models.ErrChunkPersist, err)
	}

	if err := session.recordChunk(chunk.Sequence, path, chunk.IsLast); err != nil {
		return session.ID(), err
	}

	t.logger.Debug("chunk received",
		slog.String("upload_id", session.ID()),
		slog.Int("seq", chunk.Sequence),
		slog.Bool("is_last", chunk.IsLast),
		slog.Int("size", len(chunk.Data)),
	)
	return session.ID(), nil
}

func (t *SessionTable) getOrCreate(chunk Chunk) *Session {
	id := chunk.UploadID
	if id == "" {
		id = models.NewUploadID()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.sessions[id]; ok {
		return s
	}
	s := NewSession(id, chunk.Filename, chunk.ContentType)
	t.sessions[id] = s
	return s
}

// Complete performs the stream-end completeness check and, iff the session is
// complete, assembles the staged source and publishes the video id.
// An incomplete upload fails terminally without assembly.
func (t *SessionTable) Complete(uploadID string) (string, error) {
	session, ok := t.get(uploadID)
	if !ok {
		return "", fmt.Errorf("%w: %s", models.ErrSessionNotFound, uploadID)
	}

	session.mu.Lock()
	if session.assembled {
		videoID := session.videoID
		session.mu.Unlock()
		return videoID, nil
	}
	if !session.lastSeen || len(session.chunks) != session.totalChunks {
		session.errMessage = fmt.Sprintf("upload incomplete: have %d of %d chunks", len(session.chunks), session.totalChunks)
		err := fmt.Errorf("%s", session.errMessage)
		session.mu.Unlock()
		return "", err
	}

	chunks := session.chunks
	total := session.totalChunks
	ext := filepath.Ext(session.filename)

	videoID, path, err := t.store.Assemble(chunks, total, ext)
	if err != nil {
		session.errMessage = fmt.Sprintf("assembly failed: %v", err)
		session.mu.Unlock()
		return "", fmt.Errorf("assembling upload %s: %w", uploadID, err)
	}

	session.assembled = true
	session.videoID = videoID
	session.chunks = make(map[int]string)
	session.mu.Unlock()

	t.logger.Info("upload assembled",
		slog.String("upload_id", uploadID),
		slog.String("video_id", videoID),
		slog.String("path", path),
		slog.Int("chunks", total),
	)
	return videoID, nil
}

// Status returns the status of an upload; unknown ids yield StateUnknown.
func (t *SessionTable) Status(uploadID string) Status {
	session, ok := t.get(uploadID)
	if !ok {
		return Status{State: StateUnknown}
	}
	return session.status()
}

func (t *SessionTable) get(uploadID string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[uploadID]
	return s, ok
}

// Len returns the number of tracked sessions.
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// ExpireStale fails sessions older than ttl that never assembled and removes
// their chunk files. Assembled sessions older than ttl are dropped from the
// table. Returns the number of sessions expired.
func (t *SessionTable) ExpireStale(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	t.mu.Lock()
	var stale []*Session
	for id, s := range t.sessions {
		if s.CreatedAt().Before(cutoff) {
			stale = append(stale, s)
			if s.status().State == StateCompleted {
				delete(t.sessions, id)
			}
		}
	}
	t.mu.Unlock()

	expired := 0
	for _, s := range stale {
		s.mu.Lock()
		if !s.assembled && s.errMessage == "" {
			s.errMessage = "upload expired"
			chunks := s.chunks
			s.chunks = make(map[int]string)
			s.mu.Unlock()
			t.store.RemoveChunks(chunks)
			expired++
			t.logger.Info("expired stale upload session", slog.String("upload_id", s.ID()))
			continue
		}
		s.mu.Unlock()
	}
	return expired
}
