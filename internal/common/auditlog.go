package common

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AuditEntry captures one repair or assumption made while recovering a
// record. Before and After hold the data lines when a record was rewritten.
type AuditEntry struct {
	File        string    `json:"file,omitempty"`
	Record      int       `json:"record"`
	Satellite   string    `json:"satellite,omitempty"`
	Action      string    `json:"action"`
	State       string    `json:"state,omitempty"`
	Description string    `json:"description,omitempty"`
	Before      []string  `json:"before,omitempty"`
	After       []string  `json:"after,omitempty"`
	Ts          time.Time `json:"ts"`
}

// AuditLog provides append-only access to a JSONL audit log.
type AuditLog struct {
	path string
	mu   sync.Mutex
}

func NewAuditLog(path string) *AuditLog {
	return &AuditLog{path: path}
}

func (a *AuditLog) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Append writes entries to the log, one JSON object per line.
func (a *AuditLog) Append(entries ...AuditEntry) error {
	if a == nil {
		return errors.New("nil audit log")
	}
	if len(entries) == 0 {
		return nil
	}
	var buf []byte
	for _, entry := range entries {
		if entry.Action == "" {
			return errors.New("audit entry missing action")
		}
		if entry.Ts.IsZero() {
			entry.Ts = time.Now().UTC()
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf = append(append(buf, data...), '\n')
	}
	dir := filepath.Dir(a.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(buf); err != nil {
		return err
	}
	return f.Sync()
}

// ReadAuditLog loads every entry from the supplied JSONL file.
func ReadAuditLog(path string) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	var entries []AuditEntry
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
