package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/simrelease/simrelease/internal/audit"
	"github.com/simrelease/simrelease/internal/core"
)

// DefaultCheckInterval is how often Run re-validates the credential.
const DefaultCheckInterval = 5 * time.Minute

// Auditor records session transitions. *audit.Logger satisfies it.
type Auditor interface {
	Log(ev audit.Event) error
}

// Monitor owns the observable session state. CheckValidity is the only path
// that downgrades authenticated to unauthenticated apart from Logout.
type Monitor struct {
	store    *Store
	audit    Auditor
	logger   zerolog.Logger
	now      func() time.Time
	interval time.Duration
	resume   chan struct{}

	// opMu serializes CheckValidity, Authenticated and Logout so a check
	// never clears a credential saved after it loaded the store.
	opMu sync.Mutex

	mu         sync.Mutex
	state      core.SessionState
	cred       core.Credential
	downgrades uint64
	listeners  []func(core.SessionState)
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

// WithInterval sets the recurring check period.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithAuditor records expiry and logout events.
func WithAuditor(a Auditor) MonitorOption {
	return func(m *Monitor) { m.audit = a }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// NewMonitor creates a monitor in the unauthenticated state. Call
// CheckValidity or Run to evaluate the stored credential.
func NewMonitor(store *Store, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		store:    store,
		logger:   zerolog.Nop(),
		now:      time.Now,
		interval: DefaultCheckInterval,
		resume:   make(chan struct{}, 1),
		state:    core.StateUnauthenticated,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnChange registers fn to be called after every state transition. fn runs
// while the transition's check, login or logout still holds the monitor, so
// it must not call back into CheckValidity, Authenticated or Logout.
func (m *Monitor) OnChange(fn func(core.SessionState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns the current session state.
func (m *Monitor) State() core.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Generation counts transitions to unauthenticated. A caller holding work
// started under one generation should drop its result once it changes.
func (m *Monitor) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.downgrades
}

// WithinGeneration runs fn only if no downgrade happened since gen was read,
// and reports whether it ran. fn runs before any later downgrade notifies
// its listeners.
func (m *Monitor) WithinGeneration(gen uint64, fn func()) bool {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if m.Generation() != gen {
		return false
	}
	fn()
	return true
}

// Credential returns the credential as of the last check.
func (m *Monitor) Credential() (core.Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, m.state == core.StateAuthenticated
}

// CheckValidity re-reads the stored expiry. When it is absent or strictly
// before now the store is cleared and the state becomes unauthenticated;
// otherwise the credential is re-derived from storage. Safe to call repeatedly.
func (m *Monitor) CheckValidity() core.SessionState {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	now := m.now()

	cred, ok := m.store.Load()
	if !ok || cred.Expired(now) {
		identity := cred.Identity
		hadCredential := ok
		if err := m.store.Clear(); err != nil {
			m.logger.Warn().Err(err).Msg("clearing credential store")
		}
		if hadCredential {
			m.logger.Info().Str("username", identity).Time("expiry", cred.Expiry).Msg("session expired")
			m.record(audit.Event{Type: audit.EventSessionExpired, Operator: identity,
				Detail: map[string]string{"expiry": cred.Expiry.Format(time.RFC3339)}})
		}
		m.transition(core.StateUnauthenticated, core.Credential{})
		return core.StateUnauthenticated
	}

	m.transition(core.StateAuthenticated, cred)
	return core.StateAuthenticated
}

// Authenticated stores a fresh credential and marks the session authenticated.
func (m *Monitor) Authenticated(cred core.Credential) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.store.Save(cred); err != nil {
		return err
	}
	m.transition(core.StateAuthenticated, cred)
	return nil
}

// Logout clears the store and forces the unauthenticated state regardless of expiry.
func (m *Monitor) Logout() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	cred, _ := m.store.Load()
	err := m.store.Clear()
	m.record(audit.Event{Type: audit.EventLogout, Operator: cred.Identity})
	m.transition(core.StateUnauthenticated, core.Credential{})
	return err
}

// Resume signals that the process came back to the foreground. The check
// runs on the Run goroutine; extra signals while one is pending are dropped.
func (m *Monitor) Resume() {
	select {
	case m.resume <- struct{}{}:
	default:
	}
}

// Run checks once, then on every interval tick and every Resume, until ctx
// is done. The ticker is the monitor's only timer and is stopped on return.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckValidity()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckValidity()
		case <-m.resume:
			m.CheckValidity()
		}
	}
}

func (m *Monitor) transition(state core.SessionState, cred core.Credential) {
	m.mu.Lock()
	changed := m.state != state
	if changed && state == core.StateUnauthenticated {
		m.downgrades++
	}
	m.state = state
	m.cred = cred
	listeners := append([]func(core.SessionState){}, m.listeners...)
	m.mu.Unlock()

	if !changed {
		return
	}
	m.logger.Debug().Str("state", string(state)).Msg("session state changed")
	for _, fn := range listeners {
		fn(state)
	}
}

func (m *Monitor) record(ev audit.Event) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Log(ev); err != nil {
		m.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("writing audit record")
	}
}
