package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Names of the documents inside an export directory.
const (
	ProfileFile   = "profile_info.json"
	PostsFile     = "posts.json"
	FollowersFile = "followers.json"
	FollowingFile = "following.json"
	MediaDir      = "media"
)

// DirName returns the export directory name for a handle.
func DirName(username, host string) string {
	return fmt.Sprintf("scrapped_precise_%s_%s", sanitize(username), sanitize(host))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, s)
}

// Manager owns one export directory and its media folder, and remembers
// which media files already exist.
type Manager struct {
	outputDir  string
	downloaded map[string]bool
	mu         sync.RWMutex
}

// NewManager creates <baseDir>/scrapped_precise_<username>_<host>/media and
// indexes the media files already present there.
func NewManager(baseDir, username, host string) (*Manager, error) {
	outputDir := filepath.Join(baseDir, DirName(username, host))
	if err := os.MkdirAll(filepath.Join(outputDir, MediaDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	m := &Manager{
		outputDir:  outputDir,
		downloaded: make(map[string]bool),
	}
	if err := m.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}
	return m, nil
}

func (m *Manager) scanExistingFiles() error {
	entries, err := os.ReadDir(filepath.Join(m.outputDir, MediaDir))
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasSuffix(entry.Name(), ".tmp") {
			m.downloaded[entry.Name()] = true
		}
	}
	return nil
}

// OutputDir returns the export directory path.
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Path returns the path of a document inside the export directory.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.outputDir, name)
}

// MediaRelPath is the path recorded in media records, relative to the
// export directory.
func MediaRelPath(filename string) string {
	return MediaDir + "/" + filename
}

// IsDownloaded reports whether a media file is already on disk.
func (m *Manager) IsDownloaded(filename string) bool {
	m.mu.RLock()
	known := m.downloaded[filename]
	m.mu.RUnlock()
	if known {
		return true
	}

	if _, err := os.Stat(filepath.Join(m.outputDir, MediaDir, filename)); err == nil {
		m.mu.Lock()
		m.downloaded[filename] = true
		m.mu.Unlock()
		return true
	}
	return false
}

// SaveMedia streams r into media/<filename> atomically.
func (m *Manager) SaveMedia(r io.Reader, filename string) error {
	if filename == "" || filename != filepath.Base(filename) {
		return fmt.Errorf("invalid media filename %q", filename)
	}
	path := filepath.Join(m.outputDir, MediaDir, filename)
	err := WriteAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.downloaded[filename] = true
	m.mu.Unlock()
	return nil
}

// DownloadedCount returns the number of media files known on disk.
func (m *Manager) DownloadedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.downloaded)
}
