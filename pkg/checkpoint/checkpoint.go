package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/storage"
)

// Stage is a step of an export job.
type Stage string

const (
	StageResolve   Stage = "resolve"
	StageProfile   Stage = "profile"
	StagePosts     Stage = "posts"
	StageFollowers Stage = "followers"
	StageFollowing Stage = "following"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// Checkpoint records how far an export job has got
type Checkpoint struct {
	RunID       string            `json:"run_id"`
	Handle      string            `json:"handle"`
	AccountID   string            `json:"account_id"`
	OutputDir   string            `json:"output_dir"`
	Stage       Stage             `json:"stage"`
	Cursors     map[string]string `json:"cursors"`
	Counts      map[string]int    `json:"counts"`
	StopReasons map[string]string `json:"stop_reasons,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Version     int               `json:"version"`
}

// Manager handles checkpoint operations
type Manager struct {
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a checkpoint manager for username@host
func NewManager(username, host string) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}

	checkpointsDir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(checkpointsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.checkpoint.json", username, host)
	return &Manager{
		checkpointPath: filepath.Join(checkpointsDir, name),
		logger:         logger.GetLogger().WithField("component", "checkpoint"),
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a new run and saves its initial checkpoint
func (m *Manager) Create(handle, accountID, outputDir string) (*Checkpoint, error) {
	now := time.Now()
	checkpoint := &Checkpoint{
		RunID:     uuid.NewString(),
		Handle:    handle,
		AccountID: accountID,
		OutputDir: outputDir,
		Stage:     StageResolve,
		Cursors:   make(map[string]string),
		Counts:    make(map[string]int),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.InfoWithFields("Checkpoint created", map[string]interface{}{
		"run_id": checkpoint.RunID,
		"handle": handle,
		"path":   m.checkpointPath,
	})

	return checkpoint, nil
}

// Load loads the checkpoint of the previous run. It returns nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	var checkpoint Checkpoint
	found, err := storage.ReadJSON(m.checkpointPath, &checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &checkpoint, nil
}

// Save saves the checkpoint to disk atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	checkpoint.UpdatedAt = time.Now()
	if err := storage.WriteJSON(m.checkpointPath, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"run_id": checkpoint.RunID,
		"stage":  checkpoint.Stage,
	})
	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// EnterStage marks the start of a stage
func (m *Manager) EnterStage(checkpoint *Checkpoint, stage Stage) error {
	checkpoint.Stage = stage
	return m.Save(checkpoint)
}

// RecordCollection stores the outcome of a paginated collection
func (m *Manager) RecordCollection(checkpoint *Checkpoint, resource, cursor string, count int, stop string) error {
	checkpoint.Cursors[resource] = cursor
	checkpoint.Counts[resource] = count
	if stop != "" {
		if checkpoint.StopReasons == nil {
			checkpoint.StopReasons = make(map[string]string)
		}
		checkpoint.StopReasons[resource] = stop
	}
	return m.Save(checkpoint)
}

// RecordCount stores a running counter
func (m *Manager) RecordCount(checkpoint *Checkpoint, name string, count int) error {
	checkpoint.Counts[name] = count
	return m.Save(checkpoint)
}

// Complete marks the run as finished
func (m *Manager) Complete(checkpoint *Checkpoint) error {
	now := time.Now()
	checkpoint.Stage = StageDone
	checkpoint.CompletedAt = &now
	return m.Save(checkpoint)
}

// Fail records the error that stopped the run
func (m *Manager) Fail(checkpoint *Checkpoint, err error) error {
	checkpoint.Stage = StageFailed
	if err != nil {
		checkpoint.LastError = err.Error()
	}
	return m.Save(checkpoint)
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		// Use XDG_DATA_HOME if set, otherwise ~/.local/share
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "mastoscrape")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "mastoscrape")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "mastoscrape")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "mastoscrape")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
