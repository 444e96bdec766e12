// Package audit provides append-only JSON-lines logging of download runs.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation names for audit entries.
const (
	OpGrab     = "grab"
	OpWorkshop = "workshop"
	OpInfo     = "info"
	OpPrune    = "prune"
)

// Entry is one JSON-lines record written to the audit log.
type Entry struct {
	Timestamp string   `json:"timestamp"` // RFC3339
	RunID     string   `json:"run_id"`
	Operation string   `json:"operation"`
	AppID     uint32   `json:"app_id,omitempty"`
	DepotID   uint32   `json:"depot_id,omitempty"`
	GID       string   `json:"gid,omitempty"`
	Manifest  string   `json:"manifest,omitempty"` // written manifest path
	Removed   []string `json:"removed,omitempty"`  // pruned file names
	User      string   `json:"user,omitempty"`
	Hostname  string   `json:"hostname,omitempty"`
	Success   bool     `json:"success"`
	Error     string   `json:"error,omitempty"`
}

// Logger writes audit entries. Safe for concurrent use.
type Logger interface {
	Log(e *Entry) error
}

// FileLogger appends JSON-lines to a file. Implements Logger.
type FileLogger struct {
	path  string
	runID string
	mu    sync.Mutex
}

// NewFileLogger creates a logger appending to path, stamping every
// entry with a fresh run id. The parent directory is created if needed.
func NewFileLogger(path string) (*FileLogger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit dir: %w", err)
		}
	}
	return &FileLogger{path: path, runID: uuid.NewString()}, nil
}

// RunID returns the identifier stamped on this logger's entries.
func (l *FileLogger) RunID() string {
	return l.runID
}

// Log appends one entry, filling timestamp, run id, user, and hostname
// if unset.
func (l *FileLogger) Log(e *Entry) error {
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if e.RunID == "" {
		e.RunID = l.runID
	}
	if e.User == "" {
		if u, err := user.Current(); err == nil {
			e.User = u.Username
		}
	}
	if e.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			e.Hostname = h
		}
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// Nop is a Logger that discards entries; used when no audit log is
// configured.
type Nop struct{}

func (Nop) Log(*Entry) error { return nil }
