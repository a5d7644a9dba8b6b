// Package audit persists observed query executions as NDJSON.
package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/sqltap"
)

// fileEntry is the NDJSON-serializable form of an observed execution.
type fileEntry struct {
	Timestamp   string  `json:"ts"`
	SQL         string  `json:"sql"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Params      int     `json:"params"`
	DurationMS  float64 `json:"duration_ms"`
	Rows        *int64  `json:"rows,omitempty"`
	Error       *string `json:"error,omitempty"`
}

// FileAuditor writes one JSON object per observed execution to a file.
// It implements sqltap.Auditor.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry sqltap.AuditEntry) {
	fe := fileEntry{
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		SQL:         entry.SQL,
		Fingerprint: entry.Fingerprint,
		Params:      entry.Params,
		DurationMS:  float64(entry.Duration.Nanoseconds()) / 1e6,
	}
	if entry.HasRows {
		rows := entry.Rows
		fe.Rows = &rows
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // best-effort; don't fail the query for audit I/O
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}
