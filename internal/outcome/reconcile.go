// Package outcome reconciles provisioning responses into canonical entries.
//
// The backend is inconsistent in two ways: the per-item list may appear
// under any of several field names, and successful items do not always
// carry a success status. Both are resolved here and nowhere else.
package outcome

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/simrelease/simrelease/internal/core"
)

// ResultFields is the fixed priority list of fields that may hold the
// per-item outcome list. The first one present with an array value wins.
var ResultFields = []string{"results", "statusList", "errors"}

// Response is a decoded provisioning response body.
type Response struct {
	// Success is nil when the backend omitted the flag.
	Success *bool
	Message string
	Resume  string
	// Field names which of ResultFields supplied Entries, "" if none.
	Field   string
	Entries []core.OutcomeEntry
}

// Decode parses a provisioning response body and reconciles its entries.
// It fails only when body is not a JSON object.
func Decode(body []byte, vocab *Vocabulary) (Response, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return Response{}, fmt.Errorf("decoding response: %w", err)
	}
	if raw == nil {
		return Response{}, fmt.Errorf("decoding response: body is null")
	}

	var resp Response
	if v, ok := raw["success"]; ok {
		var b bool
		if json.Unmarshal(v, &b) == nil {
			resp.Success = &b
		}
	}
	resp.Message = text(raw["message"])
	if resp.Message == "" {
		// JWT middleware errors use "msg".
		resp.Message = text(raw["msg"])
	}
	resp.Resume = text(raw["resume"])
	resp.Field, resp.Entries = Reconcile(raw, vocab)
	return resp, nil
}

// Reconcile picks the outcome list by ResultFields priority and classifies
// each entry, preserving backend order.
func Reconcile(raw map[string]json.RawMessage, vocab *Vocabulary) (string, []core.OutcomeEntry) {
	field, items := selectList(raw)
	if len(items) == 0 {
		return field, []core.OutcomeEntry{}
	}

	entries := make([]core.OutcomeEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, reconcileEntry(item, vocab))
	}
	return field, entries
}

func selectList(raw map[string]json.RawMessage) (string, []json.RawMessage) {
	for _, name := range ResultFields {
		v, ok := raw[name]
		if !ok || isNull(v) {
			continue
		}
		var items []json.RawMessage
		if err := json.Unmarshal(v, &items); err != nil {
			// Not an array: the field is present in name only.
			continue
		}
		return name, items
	}
	return "", nil
}

type rawEntry struct {
	Sim     json.RawMessage `json:"sim"`
	Status  json.RawMessage `json:"status"`
	Message json.RawMessage `json:"message"`
}

func reconcileEntry(item json.RawMessage, vocab *Vocabulary) core.OutcomeEntry {
	var e rawEntry
	if err := json.Unmarshal(item, &e); err != nil {
		// Bare strings (or numbers) in the list carry only a message.
		msg := text(item)
		return core.OutcomeEntry{
			Subject: core.DefaultSubject,
			Status:  Classify("", msg, vocab),
			Message: msg,
		}
	}

	subject := text(e.Sim)
	if subject == "" {
		subject = core.DefaultSubject
	}
	msg := text(e.Message)
	return core.OutcomeEntry{
		Subject: subject,
		Status:  Classify(text(e.Status), msg, vocab),
		Message: msg,
	}
}

// Classify applies the dual rule: SUCCESS when the backend status is
// "success" in any case, or when message matches the vocabulary. Surrounding
// whitespace in status is ignored, so " success\n" counts as success.
func Classify(status, message string, vocab *Vocabulary) core.Status {
	if strings.EqualFold(strings.TrimSpace(status), "success") {
		return core.StatusSuccess
	}
	if vocab != nil && vocab.Matches(message) {
		return core.StatusSuccess
	}
	return core.StatusError
}

// text renders a JSON scalar as a string; null and absent become "".
func text(v json.RawMessage) string {
	if len(v) == 0 || isNull(v) {
		return ""
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	return string(bytes.TrimSpace(v))
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
