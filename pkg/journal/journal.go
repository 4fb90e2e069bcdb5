// Package journal batches records in memory and persists them to a JSON
// array document at fixed intervals, so a job interrupted at any point
// leaves a valid file containing everything flushed so far.
package journal

import (
	"fmt"
	"sync"

	"mastoscrape/pkg/logger"
	"mastoscrape/pkg/storage"
)

// Mode selects how a flush combines pending records with the document.
type Mode int

const (
	// ModeSnapshot rewrites the document with every record seen so far.
	ModeSnapshot Mode = iota
	// ModeAppend reads the document back, appends the pending batch and
	// writes the merged list. A missing document counts as empty.
	ModeAppend
)

func (m Mode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "snapshot"
}

// Journal accumulates records of type T destined for one document.
type Journal[T any] struct {
	path      string
	mode      Mode
	batchSize int
	key       func(T) string
	log       logger.Logger

	mu       sync.Mutex
	all      []T
	pending  []T
	seen     map[string]bool
	durable  int
	written  bool
	failures int
}

// New creates a journal writing to path. A flush is triggered each time
// batchSize records are pending; batchSize <= 0 means only explicit Flush
// calls write. key identifies a record for de-duplication and may be nil.
func New[T any](path string, mode Mode, batchSize int, key func(T) string, log logger.Logger) *Journal[T] {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Journal[T]{
		path:      path,
		mode:      mode,
		batchSize: batchSize,
		key:       key,
		log:       log.WithField("component", "journal"),
		seen:      make(map[string]bool),
	}
}

// Path returns the document path.
func (j *Journal[T]) Path() string {
	return j.path
}

// Add records items and flushes when the batch is full. Records whose key
// was already added are ignored. The returned error is the flush error;
// the records stay pending and are retried on the next flush.
func (j *Journal[T]) Add(items ...T) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, item := range items {
		if j.key != nil {
			k := j.key(item)
			if j.seen[k] {
				continue
			}
			j.seen[k] = true
		}
		j.all = append(j.all, item)
		j.pending = append(j.pending, item)
	}

	if j.batchSize > 0 && len(j.pending) >= j.batchSize {
		return j.flushLocked()
	}
	return nil
}

// Flush persists the pending batch. It is a no-op when nothing is pending
// and the document already exists.
func (j *Journal[T]) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.flushLocked()
}

func (j *Journal[T]) flushLocked() error {
	if len(j.pending) == 0 && j.written {
		return nil
	}

	var (
		doc []T
		err error
	)
	switch j.mode {
	case ModeAppend:
		doc, err = j.merged()
	default:
		doc = j.all
	}
	if err == nil {
		if doc == nil {
			doc = []T{}
		}
		err = storage.WriteJSON(j.path, doc)
	}

	written := len(j.pending)
	if err != nil {
		j.failures++
		logger.LogJournalFlush(j.log, j.path, 0, len(j.all), err)
		return fmt.Errorf("journal %s: %w", j.path, err)
	}

	j.pending = nil
	j.written = true
	j.durable = len(doc)
	logger.LogJournalFlush(j.log, j.path, written, len(doc), nil)
	return nil
}

// merged reads the document back and appends pending records not already
// present in it.
func (j *Journal[T]) merged() ([]T, error) {
	var existing []T
	if _, err := storage.ReadJSON(j.path, &existing); err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(existing))
	if j.key != nil {
		for _, item := range existing {
			present[j.key(item)] = true
		}
	}

	out := existing
	for _, item := range j.pending {
		if j.key != nil {
			k := j.key(item)
			if present[k] {
				continue
			}
			present[k] = true
		}
		out = append(out, item)
	}
	return out, nil
}

// Len returns the number of distinct records added.
func (j *Journal[T]) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.all)
}

// Pending returns the number of records not yet persisted.
func (j *Journal[T]) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Durable returns the number of records in the document after the last
// successful flush.
func (j *Journal[T]) Durable() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.durable
}

// Failures returns how many flushes have failed.
func (j *Journal[T]) Failures() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.failures
}
