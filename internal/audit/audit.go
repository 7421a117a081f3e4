// Package audit provides the append-only operator audit trail.
// Records form a hash chain for tamper detection.
package audit

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventType categorizes audit log entries.
type EventType string

const (
	EventLogin          EventType = "login"
	EventLoginFailed    EventType = "login_failed"
	EventLogout         EventType = "logout"
	EventSessionExpired EventType = "session_expired"
	EventBatchSubmitted EventType = "batch_submitted"
	EventBatchRejected  EventType = "batch_rejected"
	EventLogsExported   EventType = "logs_exported"
)

// Event is a single audit record to append.
type Event struct {
	Type        EventType
	Operator    string
	Environment string
	RequestID   string
	Detail      any
}

// Record is a stored audit row.
type Record struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Operator    string    `json:"operator"`
	EventType   EventType `json:"event_type"`
	Environment string    `json:"environment,omitempty"`
	RequestID   string    `json:"request_id,omitempty"`
	Detail      string    `json:"detail"`
	RecordHash  string    `json:"record_hash"`
}

// Logger writes tamper-evident audit records to the audit database.
type Logger struct {
	db       *sql.DB
	mu       sync.Mutex
	lastHash string
	now      func() time.Time
}

// NewLogger creates an audit logger, resuming the chain from the last stored record.
func NewLogger(db *sql.DB) (*Logger, error) {
	al := &Logger{db: db, now: time.Now}

	var lastHash sql.NullString
	err := db.QueryRow("SELECT record_hash FROM audit_log ORDER BY id DESC LIMIT 1").Scan(&lastHash)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("recovering audit chain: %w", err)
	}
	if lastHash.Valid {
		al.lastHash = lastHash.String
	}

	return al, nil
}

// Log appends an event to the chain.
func (al *Logger) Log(ev Event) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	detailJSON, err := json.Marshal(ev.Detail)
	if err != nil || ev.Detail == nil {
		detailJSON = []byte("{}")
	}

	ts := al.now().UTC().Format(time.RFC3339Nano)
	recordHash := chainHash(al.lastHash, ts, string(ev.Type), ev.Operator, ev.Environment, ev.RequestID, string(detailJSON))

	_, err = al.db.Exec(
		`INSERT INTO audit_log (timestamp, operator, event_type, environment, request_id, detail, record_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts, ev.Operator, string(ev.Type), ev.Environment, ev.RequestID, string(detailJSON), recordHash,
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}

	al.lastHash = recordHash
	return nil
}

// chainHash links a record to its predecessor:
// SHA-256(previousHash + timestamp + eventType + operator + environment + requestID + detail)
func chainHash(prev string, fields ...string) string {
	h := sha256.New()
	h.Write([]byte(prev))
	for _, f := range fields {
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// List returns the most recent records, newest last. limit <= 0 returns all.
func List(db *sql.DB, limit int) ([]Record, error) {
	query := `SELECT id, timestamp, operator, event_type, environment, request_id, detail, record_hash
		FROM (SELECT * FROM audit_log ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	query += ") ORDER BY id ASC"

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var ts string
		if err := rows.Scan(&r.ID, &ts, &r.Operator, &r.EventType, &r.Environment, &r.RequestID, &r.Detail, &r.RecordHash); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Verify checks the integrity of the audit chain.
func Verify(db *sql.DB) (bool, int, error) {
	rows, err := db.Query(
		"SELECT timestamp, event_type, operator, environment, request_id, detail, record_hash FROM audit_log ORDER BY id ASC",
	)
	if err != nil {
		return false, 0, fmt.Errorf("querying audit log: %w", err)
	}
	defer rows.Close()

	var previousHash string
	count := 0

	for rows.Next() {
		var ts, eventType, operator, env, requestID, detail, recordHash string
		if err := rows.Scan(&ts, &eventType, &operator, &env, &requestID, &detail, &recordHash); err != nil {
			return false, count, fmt.Errorf("scanning audit row: %w", err)
		}

		if chainHash(previousHash, ts, eventType, operator, env, requestID, detail) != recordHash {
			return false, count, fmt.Errorf("audit chain broken at record %d", count+1)
		}

		previousHash = recordHash
		count++
	}

	return true, count, rows.Err()
}
