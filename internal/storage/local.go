package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mediaspool/transcoded/internal/models"
)

// LocalStore is the filesystem implementation of Store.
type LocalStore struct {
	stagingDir string
	outputDir  string
}

var _ Store = (*LocalStore)(nil)

// NewLocalStore creates the staging and output roots if absent.
// Failure to create either root is fatal to startup.
func NewLocalStore(stagingDir, outputDir string) (*LocalStore, error) {
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &LocalStore{stagingDir: stagingDir, outputDir: outputDir}, nil
}

// StagingDir returns the staging root path.
func (s *LocalStore) StagingDir() string { return s.stagingDir }

// OutputDir returns the output root path.
func (s *LocalStore) OutputDir() string { return s.outputDir }

// ChunkPath returns the path of the chunk file for (uploadID, seq).
func (s *LocalStore) ChunkPath(uploadID string, seq int) string {
	return filepath.Join(s.stagingDir, fmt.Sprintf("%s_%d", uploadID, seq))
}

// PutChunk writes a chunk to <staging>/<uploadID>_<seq>. The write goes to a
// temporary file first and is renamed into place so a reader never observes
// partial contents.
func (s *LocalStore) PutChunk(uploadID string, seq int, data []byte) (string, error) {
	path := s.ChunkPath(uploadID, seq)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("writing chunk %s seq %d: %w", uploadID, seq, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("committing chunk %s seq %d: %w", uploadID, seq, err)
	}
	return path, nil
}

// Assemble concatenates chunks 0..totalChunks-1 into <staging>/<videoID><ext>.
// The output is built in a temporary file and renamed on success, so a failed
// assembly never leaves a partial source visible. Chunk files are deleted as
// they are consumed.
func (s *LocalStore) Assemble(chunkPaths map[int]string, totalChunks int, ext string) (string, string, error) {
	videoID := models.NewVideoID()
	dst := filepath.Join(s.stagingDir, videoID+ext)
	tmp := dst + ".part"

	out, err := os.Create(tmp)
	if err != nil {
		return "", "", fmt.Errorf("creating assembly file: %w", err)
	}

	for seq := 0; seq < totalChunks; seq++ {
		path, ok := chunkPaths[seq]
		if !ok {
			out.Close()
			os.Remove(tmp)
			return "", "", fmt.Errorf("missing chunk %d of %d", seq, totalChunks)
		}
		if err := appendFile(out, path); err != nil {
			out.Close()
			os.Remove(tmp)
			return "", "", fmt.Errorf("appending chunk %d: %w", seq, err)
		}
		os.Remove(path)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", "", fmt.Errorf("closing assembly file: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", "", fmt.Errorf("committing assembly: %w", err)
	}

	return videoID, dst, nil
}

func appendFile(dst io.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(dst, in)
	return err
}

// RemoveChunks deletes chunk files, ignoring missing ones.
func (s *LocalStore) RemoveChunks(chunkPaths map[int]string) {
	for _, path := range chunkPaths {
		os.Remove(path)
	}
}

// CreateJobOutputDir creates <output>/<jobID>/.
func (s *LocalStore) CreateJobOutputDir(jobID string) (string, error) {
	dir := filepath.Join(s.outputDir, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating job output dir: %w", err)
	}
	return dir, nil
}

// OutputPath returns <output>/<jobID>/<videoID>_<formatName>.<container>.
func (s *LocalStore) OutputPath(jobID, videoID, formatName, container string) string {
	return filepath.Join(s.outputDir, jobID, fmt.Sprintf("%s_%s.%s", videoID, formatName, container))
}

// LocateVideo returns the first staged file (in lexicographic order) whose
// name starts with videoID. More than one match indicates a bug elsewhere;
// the deterministic choice keeps behavior stable regardless.
func (s *LocalStore) LocateVideo(videoID string) (string, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		return "", fmt.Errorf("reading staging dir: %w", err)
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, videoID) && !strings.HasSuffix(name, ".part") {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", models.ErrVideoNotFound, videoID)
	}
	sort.Strings(matches)
	return filepath.Join(s.stagingDir, matches[0]), nil
}
