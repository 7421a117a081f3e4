package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/simrelease/simrelease/internal/activity"
	"github.com/simrelease/simrelease/internal/audit"
	"github.com/simrelease/simrelease/internal/auth"
	"github.com/simrelease/simrelease/internal/batch"
	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/provision"
)

// Context is one operator session: the credential store and its monitor,
// the login client, the submitter and the log of the last batch. Front ends
// drive everything through it.
type Context struct {
	Store   *Store
	Monitor *Monitor
	Log     *activity.Log

	login     *auth.Client
	submitter *provision.Client
	audit     Auditor
	logger    zerolog.Logger
}

// NewContext wires a session. The log is cleared whenever the session
// becomes unauthenticated.
func NewContext(store *Store, monitor *Monitor, login *auth.Client, submitter *provision.Client, auditor Auditor, logger zerolog.Logger) *Context {
	c := &Context{
		Store:     store,
		Monitor:   monitor,
		Log:       activity.NewLog(),
		login:     login,
		submitter: submitter,
		audit:     auditor,
		logger:    logger,
	}
	monitor.OnChange(func(st core.SessionState) {
		if st == core.StateUnauthenticated {
			c.Log.Clear()
		}
	})
	return c
}

// Login authenticates and persists the resulting credential.
func (c *Context) Login(ctx context.Context, username, password string) (core.Credential, error) {
	cred, err := c.login.Login(ctx, username, password)
	if err != nil {
		return core.Credential{}, err
	}
	if err := c.Monitor.Authenticated(cred); err != nil {
		return core.Credential{}, err
	}
	return cred, nil
}

// Logout ends the session regardless of expiry.
func (c *Context) Logout() error {
	err := c.Monitor.Logout()
	c.Log.Clear()
	return err
}

// Submit normalizes text into a batch, sends it to env and replaces the log
// with the outcome. The log is cleared while the call is in flight. A
// missing or expired credential re-validates the session and returns
// provision.ErrNoCredential without touching the log further. If the
// session is downgraded before the call returns, the outcome is returned
// but not logged.
func (c *Context) Submit(ctx context.Context, text string, env core.Environment) (provision.Result, error) {
	if c.submitter.Busy() {
		return provision.Result{}, provision.ErrSubmissionInFlight
	}

	items := batch.Normalize(text)
	gen := c.Monitor.Generation()
	c.Log.Clear()

	res, err := c.submitter.Submit(ctx, items, env)
	if err != nil {
		if errors.Is(err, provision.ErrNoCredential) {
			c.Monitor.CheckValidity()
		}
		return res, err
	}

	if !c.Monitor.WithinGeneration(gen, func() { c.Log.Replace(res.View()) }) {
		c.logger.Info().Str("request_id", res.RequestID).Msg("session ended during submission, outcome not logged")
	}
	return res, nil
}

// Export writes the log to path in export format.
func (c *Context) Export(path string) error {
	if err := c.Log.WriteExport(path); err != nil {
		return err
	}

	cred, _ := c.Store.Load()
	success, errs := c.Log.Counts()
	c.logger.Info().Str("path", path).Int("entries", success+errs).Msg("log exported")
	if c.audit != nil {
		if err := c.audit.Log(audit.Event{
			Type:     audit.EventLogsExported,
			Operator: cred.Identity,
			Detail:   map[string]any{"path": path, "success": success, "errors": errs},
		}); err != nil {
			c.logger.Warn().Err(err).Msg("writing audit record")
		}
	}
	return nil
}
