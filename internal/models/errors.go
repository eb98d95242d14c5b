package models

import "errors"

// Sentinel errors shared across the service layers.
var (
	// ErrUnknownFormat is returned when a standard format name has no predefined tuple.
	ErrUnknownFormat = errors.New("unknown standard format")

	// ErrInvalidFormat is returned when a requested format tuple is only
	// partially specified.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrChunkPersist is returned when the store fails to persist an upload chunk.
	ErrChunkPersist = errors.New("persisting chunk failed")

	// ErrJobNotFound is returned when a job id has no registry entry.
	ErrJobNotFound = errors.New("job not found")

	// ErrVideoNotFound is returned when no staged source matches a video id.
	ErrVideoNotFound = errors.New("video not found")

	// ErrSessionNotFound is returned when an upload id has no session.
	ErrSessionNotFound = errors.New("upload session not found")
)
