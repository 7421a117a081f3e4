package outcome

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// DefaultSuccessPhrases are backend messages that mean the item succeeded
// even when the entry's status field does not say so.
//
// The backend wording is locale-specific and matched by substring: if it
// changes, entries silently classify as ERROR. Extend the list through
// configuration rather than relying on it further.
var DefaultSuccessPhrases = []string{
	"SIM libérée",
	"AUC générée",
}

// Vocabulary is a fixed set of success phrases matched case-insensitively
// after Unicode normalization, so "SIM LIBÉRÉE" and a decomposed "libérée"
// both match.
type Vocabulary struct {
	phrases []string
	folded  []string
}

// NewVocabulary returns the default phrases plus extra.
func NewVocabulary(extra ...string) *Vocabulary {
	v := &Vocabulary{}
	seen := map[string]bool{}
	for _, p := range append(append([]string{}, DefaultSuccessPhrases...), extra...) {
		f := fold(strings.TrimSpace(p))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		v.phrases = append(v.phrases, p)
		v.folded = append(v.folded, f)
	}
	return v
}

// Phrases returns the configured phrases in order.
func (v *Vocabulary) Phrases() []string {
	return append([]string(nil), v.phrases...)
}

// Matches reports whether message contains any phrase.
func (v *Vocabulary) Matches(message string) bool {
	if message == "" {
		return false
	}
	m := fold(message)
	for _, p := range v.folded {
		if strings.Contains(m, p) {
			return true
		}
	}
	return false
}

var (
	folderMu sync.Mutex
	folder   = cases.Fold()
)

// fold applies NFC then Unicode case folding. cases.Caser is stateful, so
// calls are serialized.
func fold(s string) string {
	s = norm.NFC.String(s)
	folderMu.Lock()
	defer folderMu.Unlock()
	return folder.String(s)
}
