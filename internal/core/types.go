// Package core defines the shared domain types for simrelease and the Engine
// that opens an operator's local state. The primitives here (Credential,
// Environment, BatchRequest, OutcomeEntry) flow through every other package.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Environment is a provisioning target.
type Environment string

const (
	EnvProd Environment = "PROD"
	EnvUAT  Environment = "UAT"
)

// ParseEnvironment accepts PROD or UAT in any case.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(strings.ToUpper(strings.TrimSpace(s))) {
	case EnvProd:
		return EnvProd, nil
	case EnvUAT:
		return EnvUAT, nil
	}
	return "", fmt.Errorf("unknown environment %q (use PROD or UAT)", s)
}

// Status is the canonical per-item outcome.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusError   Status = "ERROR"
)

// SessionState is the observable authentication state of the operator session.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateAuthenticated   SessionState = "authenticated"
)

// BatchMode tags a provisioning request as a batch operation.
const BatchMode = "batch"

// Credential is the client-held proof of authentication.
type Credential struct {
	Token    string    `json:"token"`
	Expiry   time.Time `json:"expiry"`
	Role     string    `json:"role"`
	Identity string    `json:"identity"`
}

// Expired reports whether the credential expiry is strictly before now.
func (c Credential) Expired(now time.Time) bool {
	return c.Expiry.Before(now)
}

// BatchRequest is the body of a provisioning call. Built once per submission.
type BatchRequest struct {
	Mode        string      `json:"mode"`
	Items       []string    `json:"data"`
	Environment Environment `json:"environment"`
	Username    string      `json:"username"`
	Role        string      `json:"user_type"`
}

// NewBatchRequest copies items so later edits by the caller cannot leak in.
func NewBatchRequest(items []string, env Environment, cred Credential) BatchRequest {
	return BatchRequest{
		Mode:        BatchMode,
		Items:       append([]string(nil), items...),
		Environment: env,
		Username:    cred.Identity,
		Role:        cred.Role,
	}
}

// DefaultSubject labels entries whose item the backend did not echo.
const DefaultSubject = "SIM"

// OutcomeEntry is one classified result.
type OutcomeEntry struct {
	Subject string `json:"sim,omitempty"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// Label returns the subject or DefaultSubject when it is absent.
func (e OutcomeEntry) Label() string {
	if e.Subject == "" {
		return DefaultSubject
	}
	return e.Subject
}

// Failure builds a synthetic ERROR entry for client-side and transport failures.
func Failure(message string) OutcomeEntry {
	return OutcomeEntry{Status: StatusError, Message: message}
}

// expiryLayouts covers RFC 3339 and the naive ISO-8601 form some backends
// emit without an offset (read as UTC).
var expiryLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseExpiry parses a credential expiry timestamp.
func ParseExpiry(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range expiryLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable expiry %q", s)
}
