package downloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mastoscrape/pkg/logger"
)

type mockFetcher struct {
	body  string
	err   error
	calls []string
}

func (m *mockFetcher) Download(_ context.Context, url string) (io.ReadCloser, error) {
	m.calls = append(m.calls, url)
	if m.err != nil {
		return nil, m.err
	}
	return io.NopCloser(bytes.NewBufferString(m.body)), nil
}

type mockStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	saveErr error
}

func newMockStorage() *mockStorage {
	return &mockStorage{files: make(map[string][]byte)}
}

func (m *mockStorage) IsDownloaded(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok
}

func (m *mockStorage) SaveMedia(r io.Reader, name string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	return nil
}

type denyLimiter struct{ waits int }

func (l *denyLimiter) Allow() bool { return false }
func (l *denyLimiter) Wait(ctx context.Context) error {
	l.waits++
	return ctx.Err()
}
func (l *denyLimiter) Reset() {}

func TestExtension(t *testing.T) {
	tests := []struct {
		url, mediaType string
		want           string
		ok             bool
	}{
		{"https://files.example/media/abc.png", "image", ".png", true},
		{"https://files.example/media/abc.webm?x=1", "video", ".webm", true},
		{"https://files.example/media/abc", "image", ".jpg", true},
		{"https://files.example/media/abc", "video", ".mp4", true},
		{"https://files.example/media/abc", "audio", "", false},
		{"https://files.example/media/abc", "unknown", "", false},
	}
	for _, tt := range tests {
		got, ok := Extension(tt.url, tt.mediaType)
		assert.Equal(t, tt.ok, ok, tt.url)
		assert.Equal(t, tt.want, got, tt.url)
	}
}

func TestFilenameUsesOwnerID(t *testing.T) {
	// Two different reblogs of the same original carry the original's id
	// as owner, so they converge on one file.
	a, ok := Filename("1001", "77", "https://cdn.other.social/77.jpeg", "image")
	require.True(t, ok)
	b, ok := Filename("1001", "77", "https://cdn.other.social/77.jpeg", "image")
	require.True(t, ok)
	assert.Equal(t, "1001_77.jpeg", a)
	assert.Equal(t, a, b)

	_, ok = Filename("", "77", "https://cdn.other.social/77.jpeg", "image")
	assert.False(t, ok)
}

func TestFetchSavesFile(t *testing.T) {
	fetcher := &mockFetcher{body: "image bytes"}
	store := newMockStorage()
	d := New(fetcher, store, nil, func(n string) string { return "media/" + n }, logger.NewNopLogger())

	res := d.Fetch(context.Background(), Job{OwnerID: "1", MediaID: "2", MediaType: "image", URL: "https://x/2.png"})
	require.NoError(t, res.Error)
	assert.True(t, res.Success())
	assert.Equal(t, "1_2.png", res.Filename)
	assert.Equal(t, "media/1_2.png", res.RelPath)
	assert.Equal(t, int64(len("image bytes")), res.Size)
	assert.Equal(t, "image bytes", string(store.files["1_2.png"]))
}

func TestFetchSkipsExistingFile(t *testing.T) {
	fetcher := &mockFetcher{body: "new"}
	store := newMockStorage()
	store.files["1_2.png"] = []byte("old")
	d := New(fetcher, store, nil, nil, logger.NewNopLogger())

	res := d.Fetch(context.Background(), Job{OwnerID: "1", MediaID: "2", MediaType: "image", URL: "https://x/2.png"})
	assert.True(t, res.Cached)
	assert.True(t, res.Success())
	assert.Equal(t, "1_2.png", res.RelPath)
	assert.Empty(t, fetcher.calls)
}

func TestFetchUnresolvableExtension(t *testing.T) {
	fetcher := &mockFetcher{}
	d := New(fetcher, newMockStorage(), nil, nil, logger.NewNopLogger())

	res := d.Fetch(context.Background(), Job{OwnerID: "1", MediaID: "2", MediaType: "audio", URL: "https://x/noext"})
	assert.True(t, res.Skipped)
	assert.False(t, res.Success())
	assert.Empty(t, res.RelPath)
	assert.Empty(t, fetcher.calls)
}

func TestFetchFailureLeavesNoPath(t *testing.T) {
	log := logger.NewTestLogger()
	fetcher := &mockFetcher{err: errors.New("404")}
	d := New(fetcher, newMockStorage(), nil, nil, log)

	res := d.Fetch(context.Background(), Job{OwnerID: "1", MediaID: "2", MediaType: "image", URL: "https://x/2.png"})
	assert.Error(t, res.Error)
	assert.Empty(t, res.RelPath)
	assert.True(t, log.HasMessage("Media download failed"))
}

func TestFetchSaveFailure(t *testing.T) {
	store := newMockStorage()
	store.saveErr = errors.New("disk full")
	d := New(&mockFetcher{body: "x"}, store, nil, nil, logger.NewNopLogger())

	res := d.Fetch(context.Background(), Job{OwnerID: "1", MediaID: "2", MediaType: "video", URL: "https://x/2"})
	assert.ErrorContains(t, res.Error, "save failed")
	assert.Equal(t, "1_2.mp4", res.Filename)
}

func TestFetchHonoursLimiterCancellation(t *testing.T) {
	limiter := &denyLimiter{}
	fetcher := &mockFetcher{body: "x"}
	d := New(fetcher, newMockStorage(), limiter, nil, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := d.Fetch(ctx, Job{OwnerID: "1", MediaID: "2", MediaType: "image", URL: "https://x/2.png"})
	assert.ErrorIs(t, res.Error, context.Canceled)
	assert.Equal(t, 1, limiter.waits)
	assert.Empty(t, fetcher.calls)
}
