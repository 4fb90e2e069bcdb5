package storage

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerLayout(t *testing.T) {
	base := t.TempDir()
	m, err := NewManager(base, "alice", "example.social")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "scrapped_precise_alice_example.social"), m.OutputDir())
	assert.DirExists(t, filepath.Join(m.OutputDir(), "media"))
	assert.Equal(t, filepath.Join(m.OutputDir(), "posts.json"), m.Path(PostsFile))
	assert.Equal(t, "media/110_7.png", MediaRelPath("110_7.png"))
}

func TestDirNameSanitizes(t *testing.T) {
	assert.Equal(t, "scrapped_precise_bob_host_8080", DirName("bob", "host:8080"))
}

func TestSaveMedia(t *testing.T) {
	m, err := NewManager(t.TempDir(), "alice", "example.social")
	require.NoError(t, err)

	assert.False(t, m.IsDownloaded("1_2.jpg"))
	require.NoError(t, m.SaveMedia(bytes.NewReader([]byte("jpeg bytes")), "1_2.jpg"))

	data, err := os.ReadFile(filepath.Join(m.OutputDir(), "media", "1_2.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
	assert.True(t, m.IsDownloaded("1_2.jpg"))
	assert.Equal(t, 1, m.DownloadedCount())
	assert.NoFileExists(t, filepath.Join(m.OutputDir(), "media", "1_2.jpg.tmp"))
}

func TestSaveMediaRejectsPaths(t *testing.T) {
	m, err := NewManager(t.TempDir(), "alice", "example.social")
	require.NoError(t, err)

	assert.Error(t, m.SaveMedia(bytes.NewReader(nil), "../escape.jpg"))
	assert.Error(t, m.SaveMedia(bytes.NewReader(nil), ""))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestSaveMediaFailureLeavesNothing(t *testing.T) {
	m, err := NewManager(t.TempDir(), "alice", "example.social")
	require.NoError(t, err)

	err = m.SaveMedia(failingReader{}, "1_2.mp4")
	require.Error(t, err)
	assert.False(t, m.IsDownloaded("1_2.mp4"))
	entries, err := os.ReadDir(filepath.Join(m.OutputDir(), "media"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExistingMediaIsIndexed(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, DirName("alice", "example.social"), "media")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "5_6.png"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "5_7.png.tmp"), []byte("x"), 0644))

	m, err := NewManager(base, "alice", "example.social")
	require.NoError(t, err)
	assert.True(t, m.IsDownloaded("5_6.png"))
	assert.Equal(t, 1, m.DownloadedCount())
}

func TestWriteJSONPreservesText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, WriteJSON(path, map[string]string{"text": "café <b> & ünïcode"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"text\": \"café <b> & ünïcode\"\n}\n", string(data))

	var back map[string]string
	found, err := ReadJSON(path, &back)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "café <b> & ünïcode", back["text"])
}

func TestReadJSONMissingFile(t *testing.T) {
	var v []int
	found, err := ReadJSON(filepath.Join(t.TempDir(), "absent.json"), &v)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)
}

func TestWriteAtomicKeepsOldContentOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	err := WriteAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errors.New("disk full")
	})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}
