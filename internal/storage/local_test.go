package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaspool/transcoded/internal/models"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(filepath.Join(t.TempDir(), "staging"), filepath.Join(t.TempDir(), "output"))
	require.NoError(t, err)
	return store
}

func TestNewLocalStoreCreatesRoots(t *testing.T) {
	staging := filepath.Join(t.TempDir(), "a", "staging")
	output := filepath.Join(t.TempDir(), "b", "output")

	_, err := NewLocalStore(staging, output)
	require.NoError(t, err)

	assert.DirExists(t, staging)
	assert.DirExists(t, output)
}

func TestPutChunk(t *testing.T) {
	store := newTestStore(t)

	path, err := store.PutChunk("up1", 0, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.StagingDir(), "up1_0"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestPutChunkOverwrite(t *testing.T) {
	store := newTestStore(t)

	_, err := store.PutChunk("up1", 0, []byte("first"))
	require.NoError(t, err)
	path, err := store.PutChunk("up1", 0, []byte("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func putChunks(t *testing.T, store *LocalStore, uploadID string, contents []string) map[int]string {
	t.Helper()
	paths := make(map[int]string, len(contents))
	for seq, c := range contents {
		path, err := store.PutChunk(uploadID, seq, []byte(c))
		require.NoError(t, err)
		paths[seq] = path
	}
	return paths
}

func TestAssemble(t *testing.T) {
	store := newTestStore(t)
	paths := putChunks(t, store, "up1", []string{"aaa", "bbb", "cc"})

	videoID, assembled, err := store.Assemble(paths, 3, ".mp4")
	require.NoError(t, err)
	assert.NotEmpty(t, videoID)
	assert.Equal(t, filepath.Join(store.StagingDir(), videoID+".mp4"), assembled)

	data, err := os.ReadFile(assembled)
	require.NoError(t, err)
	assert.Equal(t, "aaabbbcc", string(data))

	// Chunks are consumed.
	for _, p := range paths {
		assert.NoFileExists(t, p)
	}
}

func TestAssembleMissingChunk(t *testing.T) {
	store := newTestStore(t)
	paths := putChunks(t, store, "up1", []string{"aaa", "bbb"})
	delete(paths, 1)

	_, _, err := store.Assemble(paths, 3, ".mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing chunk 1")

	// No partial output left behind.
	entries, err := os.ReadDir(store.StagingDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".part")
	}
}

func TestAssembleEmptyExtension(t *testing.T) {
	store := newTestStore(t)
	paths := putChunks(t, store, "up1", []string{"data"})

	videoID, assembled, err := store.Assemble(paths, 1, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.StagingDir(), videoID), assembled)
}

func TestCreateJobOutputDirAndOutputPath(t *testing.T) {
	store := newTestStore(t)

	dir, err := store.CreateJobOutputDir("job42")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.OutputDir(), "job42"), dir)
	assert.DirExists(t, dir)

	path := store.OutputPath("job42", "vid1", "720p", "mp4")
	assert.Equal(t, filepath.Join(store.OutputDir(), "job42", "vid1_720p.mp4"), path)
}

func TestLocateVideo(t *testing.T) {
	store := newTestStore(t)

	src := filepath.Join(store.StagingDir(), "vid-abc.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	found, err := store.LocateVideo("vid-abc")
	require.NoError(t, err)
	assert.Equal(t, src, found)
}

func TestLocateVideoNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LocateVideo("nope")
	assert.ErrorIs(t, err, models.ErrVideoNotFound)
}

func TestLocateVideoDeterministicOnAmbiguity(t *testing.T) {
	store := newTestStore(t)

	for _, name := range []string{"vid.mp4", "vid.avi"} {
		require.NoError(t, os.WriteFile(filepath.Join(store.StagingDir(), name), []byte("x"), 0o644))
	}

	first, err := store.LocateVideo("vid")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := store.LocateVideo("vid")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRemoveChunks(t *testing.T) {
	store := newTestStore(t)
	paths := putChunks(t, store, "up1", []string{"a", "b"})
	paths[9] = filepath.Join(store.StagingDir(), "up1_9") // never written

	store.RemoveChunks(paths)
	for seq := 0; seq < 2; seq++ {
		assert.NoFileExists(t, fmt.Sprintf("%s_%d", filepath.Join(store.StagingDir(), "up1"), seq))
	}
}
