// Package storage provides the filesystem-backed byte store for transcoded.
// It owns two roots: a staging root for chunk files and assembled source
// videos, and an output root holding one subdirectory per job.
package storage

// Store is the filesystem contract used by the upload and transcode layers.
// It is an interface so tests can substitute an in-memory implementation.
type Store interface {
	// PutChunk persists one upload chunk and returns its path.
	PutChunk(uploadID string, seq int, data []byte) (string, error)

	// Assemble concatenates chunk files in ascending sequence order into a
	// staged source file named after a freshly minted video id, deleting each
	// chunk as it is consumed. It returns the video id and the assembled path.
	Assemble(chunkPaths map[int]string, totalChunks int, ext string) (string, string, error)

	// RemoveChunks deletes the given chunk files, ignoring missing ones.
	RemoveChunks(chunkPaths map[int]string)

	// CreateJobOutputDir creates and returns <output>/<jobID>/.
	CreateJobOutputDir(jobID string) (string, error)

	// OutputPath returns <output>/<jobID>/<videoID>_<formatName>.<container>.
	OutputPath(jobID, videoID, formatName, container string) string

	// LocateVideo returns the staged file whose name starts with videoID.
	LocateVideo(videoID string) (string, error)
}
