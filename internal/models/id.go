package models

import (
	crand "crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(crand.Reader, 0)
)

// NewJobID mints a ULID job identifier. ULIDs sort lexicographically by
// creation time, and the monotonic entropy source keeps ids minted within the
// same millisecond strictly increasing, so ascending id order matches
// ascending creation order. Pagination tokens depend on this.
func NewJobID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewVideoID mints an identifier for an assembled source video.
func NewVideoID() string {
	return uuid.New().String()
}

// NewUploadID mints an identifier for an upload session.
func NewUploadID() string {
	return uuid.New().String()
}
