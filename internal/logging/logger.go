// Package logging provides structured logging with automatic secret redaction.
package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Known secret field names that must be redacted in all log output.
var secretFieldNames = []string{
	"password",
	"secret",
	"passphrase",
	"token",
	"jwt",
	"authorization",
	"credentials",
	"private_key",
	"privatekey",
}

// stringField matches a JSON "key":"value" pair as zerolog emits it.
var stringField = regexp.MustCompile(`"([^"\\]+)":"((?:[^"\\]|\\.)*)"`)

// RedactingWriter wraps an io.Writer and replaces values of secret fields
// in each JSON log event before passing it on.
type RedactingWriter struct {
	inner io.Writer
}

// NewRedactingWriter creates a writer that redacts secret field values from log output.
func NewRedactingWriter(inner io.Writer) *RedactingWriter {
	return &RedactingWriter{inner: inner}
}

func (rw *RedactingWriter) Write(p []byte) (int, error) {
	out := stringField.ReplaceAllFunc(p, func(m []byte) []byte {
		sub := stringField.FindSubmatch(m)
		if !IsSecretField(string(sub[1])) {
			return m
		}
		return []byte(`"` + string(sub[1]) + `":"` + RedactValue(string(sub[2])) + `"`)
	})
	if _, err := rw.inner.Write(out); err != nil {
		return 0, err
	}
	// zerolog expects the original length back.
	return len(p), nil
}

// NewLogger creates a console logger on stderr with secret redaction.
func NewLogger(level string) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(&RedactingWriter{inner: writer}).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("component", "simrelease").
		Logger()
}

// NewJSONLogger creates a JSON-formatted logger for file output or machine consumption.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(&RedactingWriter{inner: w}).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Str("component", "simrelease").
		Logger()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// IsSecretField checks if a field name is a known secret field that should be redacted.
func IsSecretField(fieldName string) bool {
	lower := strings.ToLower(fieldName)
	for _, secret := range secretFieldNames {
		if strings.Contains(lower, secret) {
			return true
		}
	}
	return false
}

// RedactValue replaces a secret value with a safe placeholder containing a hash prefix.
func RedactValue(value string) string {
	if value == "" {
		return ""
	}
	h := sha256.Sum256([]byte(value))
	return "[REDACTED:sha256:" + hex.EncodeToString(h[:])[:8] + "]"
}
