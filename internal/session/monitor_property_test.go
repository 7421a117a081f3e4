package session

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/vault"
)

// TestCheckValidityPastExpiryProperty: whatever the prior state, a stored
// expiry strictly before now always ends unauthenticated with an empty store.
func TestCheckValidityPastExpiryProperty(t *testing.T) {
	v, err := vault.CreateMemoryOnly("prop")
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("past expiry always downgrades", prop.ForAll(
		func(priorAuthenticated bool, agoNanos int64) bool {
			s := NewStore(v)
			m := NewMonitor(s, WithClock(func() time.Time { return now }))
			if priorAuthenticated {
				m.Authenticated(testCredential(now.Add(time.Hour)))
			}

			s.Save(testCredential(now.Add(-time.Duration(agoNanos))))
			st := m.CheckValidity()

			_, stored := s.Load()
			_, held := m.Credential()
			return st == core.StateUnauthenticated && !stored && !held &&
				m.State() == core.StateUnauthenticated
		},
		gen.Bool(),
		gen.Int64Range(1, int64(1000*time.Hour)),
	))

	properties.TestingRun(t)
}
