package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileJournal appends records as JSON lines to a local file. It is the
// fallback backend when no database is configured, so an incident is
// still durably recorded somewhere an operator can find it.
type FileJournal struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileJournal opens (or creates) the journal file in append mode.
func NewFileJournal(path string) (*FileJournal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("reconcile: open journal %s: %w", path, err)
	}
	return &FileJournal{file: f}, nil
}

func (j *FileJournal) Append(_ context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("reconcile: marshal record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.file.Write(line); err != nil {
		return fmt.Errorf("reconcile: append record: %w", err)
	}
	return j.file.Sync()
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
