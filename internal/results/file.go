package results

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fitbench/fitbench/internal/pkg/errors"
	"github.com/fitbench/fitbench/internal/pkg/jsonfile"
)

// FileStore keeps the record in one JSON document that is rewritten
// atomically after every metric.
type FileStore struct {
	mu     sync.Mutex
	path   string
	record Record
}

// NewFileStore returns a store backed by {dir}/{name}.
func NewFileStore(dir, name string) *FileStore {
	return &FileStore{path: filepath.Join(dir, name)}
}

// Path returns the document location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the document. A missing document is an empty record.
func (s *FileStore) Load(_ context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return nil, err
	}
	return s.snapshot(), nil
}

func (s *FileStore) load() error {
	record := make(Record)
	if err := jsonfile.Read(s.path, &record); err != nil && !errors.IsNotFound(err) {
		return err
	}
	s.record = record
	return nil
}

func (s *FileStore) snapshot() Record {
	out := make(Record, len(s.record))
	for ckpt, metrics := range s.record {
		m := make(map[string]float64, len(metrics))
		for k, v := range metrics {
			m[k] = v
		}
		out[ckpt] = m
	}
	return out
}

// SaveMetrics sets metrics of a checkpoint and rewrites the document once.
// The in-memory record is only updated after the write succeeded.
func (s *FileStore) SaveMetrics(_ context.Context, ckpt int, values map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record == nil {
		if err := s.load(); err != nil {
			return err
		}
	}

	next := s.snapshot()
	for name, value := range values {
		next.Set(ckpt, name, value)
	}
	if err := jsonfile.Write(s.path, next); err != nil {
		return err
	}
	s.record = next
	return nil
}

// Close is a no-op; every SaveMetrics call is already on disk.
func (s *FileStore) Close() error {
	return nil
}
