// Package provision submits normalized batches to the provisioning service.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/simrelease/simrelease/internal/access"
	"github.com/simrelease/simrelease/internal/audit"
	"github.com/simrelease/simrelease/internal/batch"
	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/outcome"
)

var (
	// ErrSubmissionInFlight is returned when Submit is called while another
	// submission on the same client has not finished.
	ErrSubmissionInFlight = errors.New("a submission is already in progress")

	// ErrNoCredential is returned when there is no usable credential; the
	// caller should re-validate the session rather than log an entry.
	ErrNoCredential = errors.New("no valid credential")
)

// Operator-facing messages for failures that carry no backend text.
const (
	msgServerError   = "Erreur serveur"
	msgNonJSON       = "Réponse API non JSON"
	msgUnreachable   = "Impossible de contacter le serveur."
	maxBodyInMessage = 200
)

// CredentialSource yields the current credential. *session.Store satisfies it.
type CredentialSource interface {
	Load() (core.Credential, bool)
}

// Auditor records submissions. *audit.Logger satisfies it.
type Auditor interface {
	Log(ev audit.Event) error
}

// Result is the outcome of one Submit call.
type Result struct {
	RequestID   string
	Environment core.Environment
	Items       int
	// Rejected is set when the batch was refused before any network call.
	Rejected bool
	Success  bool
	// HTTPStatus is 0 when no response was received.
	HTTPStatus int
	Message    string
	Resume     string
	Entries    []core.OutcomeEntry
}

// View returns the entries to show for this result. A failed result with no
// per-item entries becomes a single synthetic ERROR entry carrying Message.
func (r Result) View() []core.OutcomeEntry {
	if len(r.Entries) > 0 {
		return r.Entries
	}
	if !r.Success {
		return []core.OutcomeEntry{core.Failure(r.Message)}
	}
	return []core.OutcomeEntry{}
}

// Client is the batch submitter. One Client serves one operator session;
// it allows a single submission at a time.
type Client struct {
	url    string
	http   *http.Client
	creds  CredentialSource
	policy *access.Policy
	vocab  *outcome.Vocabulary
	audit  Auditor
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string

	inFlight atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPolicy replaces the default role policy.
func WithPolicy(p *access.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithVocabulary replaces the default success vocabulary.
func WithVocabulary(v *outcome.Vocabulary) Option {
	return func(c *Client) { c.vocab = v }
}

// WithAuditor records each submission.
func WithAuditor(a Auditor) Option {
	return func(c *Client) { c.audit = a }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock replaces time.Now for credential expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a submitter posting to url.
func NewClient(url string, creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		url:    url,
		http:   &http.Client{},
		creds:  creds,
		policy: access.NewPolicy(access.Rules{}),
		vocab:  outcome.NewVocabulary(),
		logger: zerolog.Nop(),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Busy reports whether a submission is in flight.
func (c *Client) Busy() bool {
	return c.inFlight.Load()
}

// Submit sends items to env as one batch call. Identity and role are taken
// from the credential source. Transport and HTTP failures are reported in
// the Result, never as an error; the only errors are ErrSubmissionInFlight
// and ErrNoCredential.
func (c *Client) Submit(ctx context.Context, items []string, env core.Environment) (Result, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrSubmissionInFlight
	}
	defer c.inFlight.Store(false)

	res := Result{RequestID: c.newID(), Environment: env, Items: len(items)}

	if err := batch.Validate(items); err != nil {
		return c.reject(res, "", batch.EmptyMessage, err), nil
	}

	cred, ok := c.creds.Load()
	if !ok || cred.Expired(c.now()) {
		return Result{}, ErrNoCredential
	}

	if err := c.policy.Check(access.RoleFromToken(cred.Token), env); err != nil {
		return c.reject(res, cred.Identity, err.Error(), err), nil
	}

	req := core.NewBatchRequest(items, env, cred)
	res = c.send(ctx, res, req, cred.Token)

	success, errs := 0, 0
	for _, e := range res.Entries {
		if e.Status == core.StatusSuccess {
			success++
		} else {
			errs++
		}
	}
	c.logger.Info().
		Str("request_id", res.RequestID).
		Str("environment", string(env)).
		Int("items", len(items)).
		Int("http_status", res.HTTPStatus).
		Bool("success", res.Success).
		Int("ok", success).
		Int("failed", errs).
		Msg("batch submitted")
	c.record(audit.Event{
		Type:        audit.EventBatchSubmitted,
		Operator:    cred.Identity,
		Environment: string(env),
		RequestID:   res.RequestID,
		Detail: map[string]any{
			"items":       len(items),
			"http_status": res.HTTPStatus,
			"success":     res.Success,
			"ok":          success,
			"failed":      errs,
		},
	})
	return res, nil
}

func (c *Client) reject(res Result, operator, message string, cause error) Result {
	res.Rejected = true
	res.Message = message
	res.Entries = []core.OutcomeEntry{}
	c.logger.Warn().Str("environment", string(res.Environment)).Err(cause).Msg("batch rejected")
	c.record(audit.Event{
		Type:        audit.EventBatchRejected,
		Operator:    operator,
		Environment: string(res.Environment),
		RequestID:   res.RequestID,
		Detail:      map[string]any{"items": res.Items, "reason": message},
	})
	return res
}

// send performs the single outbound call. It does not retry.
func (c *Client) send(ctx context.Context, res Result, req core.BatchRequest, token string) Result {
	res.Entries = []core.OutcomeEntry{}

	body, err := json.Marshal(req)
	if err != nil {
		res.Message = fmt.Sprintf("encoding request: %v", err)
		return res
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		res.Message = err.Error()
		return res
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-Request-ID", res.RequestID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		res.Message = describe(err)
		return res
	}
	defer resp.Body.Close()
	res.HTTPStatus = resp.StatusCode

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		res.Message = describe(err)
		return res
	}

	decoded, err := outcome.Decode(data, c.vocab)
	if err != nil {
		res.Message = nonJSONMessage(data)
		return res
	}

	res.Entries = decoded.Entries
	res.Resume = decoded.Resume

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Message = decoded.Message
		if res.Message == "" {
			res.Message = msgServerError
		}
		return res
	}

	res.Success = decoded.Success == nil || *decoded.Success
	res.Message = decoded.Message
	if res.Message == "" {
		res.Message = decoded.Resume
	}
	return res
}

func (c *Client) record(ev audit.Event) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Log(ev); err != nil {
		c.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("writing audit record")
	}
}

func describe(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return msgUnreachable
}

func nonJSONMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return msgNonJSON
	}
	if len(text) > maxBodyInMessage {
		cut := maxBodyInMessage
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}
