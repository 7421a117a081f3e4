// Package activity holds the operator-facing log of batch outcomes.
package activity

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/simrelease/simrelease/internal/core"
)

// ErrNothingToExport is returned by WriteExport when the log is empty.
var ErrNothingToExport = errors.New("no log entries to export")

// Log is the LogView: an ordered list of outcome entries that is only ever
// replaced whole or cleared.
type Log struct {
	mu      sync.RWMutex
	entries []core.OutcomeEntry
}

// NewLog returns an empty log.
func NewLog() *Log {
	return &Log{}
}

// Replace swaps in entries as the new log contents.
func (l *Log) Replace(entries []core.OutcomeEntry) {
	next := append([]core.OutcomeEntry(nil), entries...)
	l.mu.Lock()
	l.entries = next
	l.mu.Unlock()
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// Entries returns a copy of the current entries.
func (l *Log) Entries() []core.OutcomeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]core.OutcomeEntry(nil), l.entries...)
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Counts returns the number of SUCCESS entries and of all other entries.
func (l *Log) Counts() (success, errs int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.Status == core.StatusSuccess {
			success++
		} else {
			errs++
		}
	}
	return success, errs
}

// Export renders one `[STATUS] subject: message` line per entry.
// An empty log exports to nil.
func (l *Log) Export() []byte {
	entries := l.Entries()
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for i, e := range entries {
		if i > 0 {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "[%s] %s: %s", e.Status, e.Subject, flatten(e.Message))
	}
	return buf.Bytes()
}

// WriteExport writes the export to path. No file is created for an empty log.
func (l *Log) WriteExport(path string) error {
	data := l.Export()
	if data == nil {
		return ErrNothingToExport
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	return nil
}

// ParseExport reads an export back into entries. Subjects never contain
// ": " in practice; the first occurrence after the status tag is the split point.
func ParseExport(r io.Reader) ([]core.OutcomeEntry, error) {
	var out []core.OutcomeEntry
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		if !strings.HasPrefix(text, "[") {
			return nil, fmt.Errorf("line %d: missing status tag", line)
		}
		end := strings.Index(text, "] ")
		if end < 0 {
			return nil, fmt.Errorf("line %d: unterminated status tag", line)
		}
		rest := text[end+2:]
		sep := strings.Index(rest, ": ")
		if sep < 0 {
			return nil, fmt.Errorf("line %d: missing subject separator", line)
		}
		out = append(out, core.OutcomeEntry{
			Status:  core.Status(text[1:end]),
			Subject: rest[:sep],
			Message: rest[sep+2:],
		})
	}
	return out, sc.Err()
}

// flatten keeps each entry on a single line.
func flatten(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(strings.NewReplacer("\r", " ", "\n", " ").Replace(s)), " ")
}
