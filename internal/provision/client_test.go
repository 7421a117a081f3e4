package provision

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/simrelease/simrelease/internal/audit"
	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/outcome"
	"github.com/simrelease/simrelease/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCreds struct {
	cred core.Credential
	ok   bool
}

func (s staticCreds) Load() (core.Credential, bool) { return s.cred, s.ok }

type recordingAuditor struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingAuditor) Log(ev audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, string(ev.Type))
	return nil
}

func credFor(b *testutil.Backend, user, role string) staticCreds {
	exp := time.Now().Add(time.Hour)
	return staticCreds{ok: true, cred: core.Credential{
		Token:    b.IssueToken(user, role, exp),
		Expiry:   exp,
		Role:     role,
		Identity: user,
	}}
}

func TestSubmitSuccess(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()

	aud := &recordingAuditor{}
	c := NewClient(b.ProvisionURL(), credFor(b, "jdoe", "support1515"), WithAuditor(aud))

	items := []string{"8921303022229842679F", "8921303022229842680A", "8921303022229842679F"}
	res, err := c.Submit(context.Background(), items, core.EnvUAT)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Rejected)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	require.Len(t, res.Entries, 3)
	for i, e := range res.Entries {
		assert.Equal(t, items[i], e.Subject)
		assert.Equal(t, core.StatusSuccess, e.Status)
	}

	reqs := b.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, core.BatchRequest{
		Mode:        "batch",
		Items:       items,
		Environment: core.EnvUAT,
		Username:    "jdoe",
		Role:        "support1515",
	}, reqs[0])

	hdr := b.Headers()[0]
	assert.Equal(t, "application/json", hdr.Get("Content-Type"))
	assert.Contains(t, hdr.Get("Authorization"), "Bearer ")
	assert.Equal(t, res.RequestID, hdr.Get("X-Request-ID"))

	assert.Equal(t, []string{"batch_submitted"}, aud.events)
}

func TestSubmitEmptyBatchMakesNoCall(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()

	aud := &recordingAuditor{}
	c := NewClient(b.ProvisionURL(), credFor(b, "jdoe", "support1515"), WithAuditor(aud))

	res, err := c.Submit(context.Background(), nil, core.EnvProd)
	require.NoError(t, err)

	assert.True(t, res.Rejected)
	assert.Equal(t, 0, b.ProvisionHits())
	require.Len(t, res.View(), 1)
	assert.Equal(t, core.StatusError, res.View()[0].Status)
	assert.Equal(t, "Please enter at least one ICCID.", res.View()[0].Message)
	assert.Equal(t, []string{"batch_rejected"}, aud.events)
}

func TestSubmitPermissionDeniedMakesNoCall(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()

	c := NewClient(b.ProvisionURL(), credFor(b, "ops", "boa_activations"))

	res, err := c.Submit(context.Background(), []string{"8921303022229842679F"}, core.EnvUAT)
	require.NoError(t, err)

	assert.True(t, res.Rejected)
	assert.Equal(t, 0, b.ProvisionHits())
	require.Len(t, res.View(), 1)
	assert.Contains(t, res.View()[0].Message, "access denied")

	// Same role is fine against PROD.
	res, err = c.Submit(context.Background(), []string{"8921303022229842679F"}, core.EnvProd)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, b.ProvisionHits())
}

func TestSubmitRoleComesFromTokenNotStoredRole(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()

	creds := credFor(b, "ops", "crm_it_team")
	creds.cred.Role = "support1515" // tampered local copy
	c := NewClient(b.ProvisionURL(), creds)

	res, err := c.Submit(context.Background(), []string{"x"}, core.EnvProd)
	require.NoError(t, err)
	assert.True(t, res.Rejected)
	assert.Equal(t, 0, b.ProvisionHits())
}

func TestSubmitWithoutCredential(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()

	c := NewClient(b.ProvisionURL(), staticCreds{})
	_, err := c.Submit(context.Background(), []string{"x"}, core.EnvUAT)
	assert.True(t, errors.Is(err, ErrNoCredential))

	expired := credFor(b, "jdoe", "support1515")
	expired.cred.Expiry = time.Now().Add(-time.Minute)
	c = NewClient(b.ProvisionURL(), expired)
	_, err = c.Submit(context.Background(), []string{"x"}, core.EnvUAT)
	assert.True(t, errors.Is(err, ErrNoCredential))

	assert.Equal(t, 0, b.ProvisionHits())
}

func TestSubmitTransportFailure(t *testing.T) {
	b := testutil.NewBackend()
	url := b.ProvisionURL()
	creds := credFor(b, "jdoe", "support1515")
	b.Close()

	c := NewClient(url, creds)
	res, err := c.Submit(context.Background(), []string{"8921303022229842679F"}, core.EnvUAT)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Empty(t, res.Entries)
	assert.NotEmpty(t, res.Message)

	view := res.View()
	require.Len(t, view, 1)
	assert.Equal(t, core.StatusError, view[0].Status)
	assert.Equal(t, res.Message, view[0].Message)
}

func TestSubmitTimeoutIsTransportFailure(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.RespondRaw(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	c := NewClient(b.ProvisionURL(), credFor(b, "jdoe", "support1515"),
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	res, err := c.Submit(context.Background(), []string{"x"}, core.EnvUAT)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Timeout")
}

func TestSubmitNonJSONBody(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.RespondRaw(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>Bad Gateway</html>"))
	})

	c := NewClient(b.ProvisionURL(), credFor(b, "jdoe", "support1515"))
	res, err := c.Submit(context.Background(), []string{"x"}, core.EnvUAT)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, http.StatusBadGateway, res.HTTPStatus)
	assert.Equal(t, "<html>Bad Gateway</html>", res.Message)
	assert.Len(t, res.View(), 1)

	b.RespondRaw(func(w http.ResponseWriter, r *http.Request) {})
	res, _ = c.Submit(context.Background(), []string{"x"}, core.EnvUAT)
	assert.Equal(t, "Réponse API non JSON", res.Message)
}

func TestSubmitHTTPErrorKeepsServerMessageAndPartialList(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.Respond(func(req core.BatchRequest) (int, any) {
		return http.StatusInternalServerError, map[string]any{
			"success":    false,
			"message":    "Erreur interne: ORA-12541",
			"statusList": []map[string]string{{"sim": req.Items[0], "status": "success", "message": "SIM libérée"}},
		}
	})

	c := NewClient(b.ProvisionURL(), credFor(b, "jdoe", "support1515"))
	res, err := c.Submit(context.Background(), []string{"a", "b"}, core.EnvUAT)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Equal(t, "Erreur interne: ORA-12541", res.Message)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, core.StatusSuccess, res.Entries[0].Status)
}

func TestSubmitHTTPErrorGenericMessage(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.Respond(func(core.BatchRequest) (int, any) {
		return http.StatusBadRequest, map[string]any{}
	})

	c := NewClient(b.ProvisionURL(), credFor(b, "jdoe", "support1515"))
	res, _ := c.Submit(context.Background(), []string{"a"}, core.EnvUAT)
	assert.Equal(t, "Erreur serveur", res.Message)
	assert.Equal(t, []core.OutcomeEntry{core.Failure("Erreur serveur")}, res.View())
}

func TestSubmitUnsignedTokenRejectedByBackend(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()

	other := testutil.NewBackend()
	other.Secret = []byte("different")
	defer other.Close()

	c := NewClient(b.ProvisionURL(), credFor(other, "jdoe", "support1515"))
	res, _ := c.Submit(context.Background(), []string{"a"}, core.EnvUAT)
	assert.Equal(t, http.StatusUnauthorized, res.HTTPStatus)
	assert.Equal(t, "Token has expired", res.Message)
}

func TestSubmitSuccessFlagDefaultsAndSummary(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	b.Respond(func(core.BatchRequest) (int, any) {
		return http.StatusOK, map[string]any{
			"resume": "2 traitées",
			"errors": []map[string]string{{"message": "AUC générée en UAT"}, {"status": "error", "message": "ICCID invalide"}},
		}
	})

	c := NewClient(b.ProvisionURL(), credFor(b, "jdoe", "support1515"),
		WithVocabulary(outcome.NewVocabulary()))
	res, err := c.Submit(context.Background(), []string{"a", "b"}, core.EnvUAT)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "2 traitées", res.Message)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, core.StatusSuccess, res.Entries[0].Status)
	assert.Equal(t, "SIM", res.Entries[0].Subject)
	assert.Equal(t, core.StatusError, res.Entries[1].Status)
}

func TestSubmitSingleFlight(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()

	release := make(chan struct{})
	entered := make(chan struct{})
	b.RespondRaw(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Write([]byte(`{"results":[]}`))
	})

	c := NewClient(b.ProvisionURL(), credFor(b, "jdoe", "support1515"))

	done := make(chan Result)
	go func() {
		res, _ := c.Submit(context.Background(), []string{"a"}, core.EnvUAT)
		done <- res
	}()

	<-entered
	assert.True(t, c.Busy())
	_, err := c.Submit(context.Background(), []string{"b"}, core.EnvUAT)
	assert.True(t, errors.Is(err, ErrSubmissionInFlight))

	close(release)
	res := <-done
	assert.True(t, res.Success)
	assert.False(t, c.Busy())
	assert.Equal(t, 1, b.ProvisionHits())
}

func TestSubmitLongNonJSONBodyCutOnRuneBoundary(t *testing.T) {
	b := testutil.NewBackend()
	defer b.Close()
	// 199 ASCII bytes, then two-byte runes straddling the cut.
	body := strings.Repeat("x", maxBodyInMessage-1) + strings.Repeat("é", 10)
	b.RespondRaw(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(body))
	})

	c := NewClient(b.ProvisionURL(), credFor(b, "jdoe", "support1515"))
	res, err := c.Submit(context.Background(), []string{"x"}, core.EnvUAT)
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(res.Message), "message must stay valid UTF-8")
	assert.Equal(t, strings.Repeat("x", maxBodyInMessage-1)+"...", res.Message)
}
