// Package auth exchanges operator credentials for a session token.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/simrelease/simrelease/internal/access"
	"github.com/simrelease/simrelease/internal/audit"
	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/vault"
)

// Operator-facing login messages.
const (
	MsgSuccess        = "Authentification réussie !"
	MsgMissingFields  = "Le nom d'utilisateur et le mot de passe sont obligatoires"
	MsgBadCredentials = "Utilisateur ou mot de passe incorrect"
	MsgForbidden      = "Accès refusé"
	MsgUnknownStatus  = "Erreur inconnue : Veuillez réessayer plus tard"
	MsgRequestFailed  = "Une erreur s'est produite lors de la demande"
	MsgNoToken        = "Une erreur inconnue est survenue."
)

// LoginError is a failed login. Status is the HTTP status, or 0 when no
// response was received or the request was refused locally.
type LoginError struct {
	Status  int
	Message string
	Err     error
}

func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LoginError) Unwrap() error { return e.Err }

// IsLoginError checks if an error is a login failure.
func IsLoginError(err error) bool {
	var le *LoginError
	return errors.As(err, &le)
}

// Auditor records login attempts. *audit.Logger satisfies it.
type Auditor interface {
	Log(ev audit.Event) error
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	TokenExpDate string `json:"tokenExpDate"`
	User         struct {
		Username string `json:"username"`
		UserType string `json:"userType"`
	} `json:"user"`
}

// Client logs operators in against the authentication service.
type Client struct {
	url    string
	http   *http.Client
	audit  Auditor
	logger zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithAuditor records login and login_failed events.
func WithAuditor(a Auditor) Option {
	return func(c *Client) { c.audit = a }
}

// WithLogger attaches a logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a login client posting to url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{url: url, http: &http.Client{}, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login exchanges username and password for a credential. Both are trimmed;
// when either is empty no request is made. Failures are *LoginError.
func (c *Client) Login(ctx context.Context, username, password string) (core.Credential, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return core.Credential{}, &LoginError{Message: MsgMissingFields}
	}

	cred, err := c.login(ctx, username, password)
	if err != nil {
		var le *LoginError
		errors.As(err, &le)
		c.logger.Warn().Str("username", username).Int("status", le.Status).Msg("login failed")
		c.record(audit.Event{
			Type:     audit.EventLoginFailed,
			Operator: username,
			Detail:   map[string]any{"status": le.Status, "message": le.Message},
		})
		return core.Credential{}, err
	}

	c.logger.Info().
		Str("username", cred.Identity).
		Str("role", cred.Role).
		Str("fingerprint", vault.Fingerprint([]byte(cred.Token))).
		Time("expiry", cred.Expiry).
		Msg("logged in")
	c.record(audit.Event{
		Type:     audit.EventLogin,
		Operator: cred.Identity,
		Detail:   map[string]any{"role": cred.Role, "expiry": cred.Expiry.Format(time.RFC3339)},
	})
	return cred, nil
}

func (c *Client) login(ctx context.Context, username, password string) (core.Credential, error) {
	body, err := json.Marshal(loginRequest{Username: username, Password: password})
	if err != nil {
		return core.Credential{}, &LoginError{Message: MsgRequestFailed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return core.Credential{}, &LoginError{Message: MsgRequestFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return core.Credential{}, &LoginError{Message: MsgRequestFailed, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.Credential{}, &LoginError{Status: resp.StatusCode, Message: statusMessage(resp.StatusCode)}
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return core.Credential{}, &LoginError{Status: resp.StatusCode, Message: MsgRequestFailed, Err: err}
	}
	if lr.AccessToken == "" {
		return core.Credential{}, &LoginError{Status: resp.StatusCode, Message: MsgNoToken}
	}

	expiry, err := tokenExpiry(lr)
	if err != nil {
		return core.Credential{}, &LoginError{Status: resp.StatusCode, Message: MsgNoToken, Err: err}
	}

	role := access.RoleFromToken(lr.AccessToken)
	if role == "" {
		role = lr.User.UserType
	}

	return core.Credential{
		Token:    lr.AccessToken,
		Expiry:   expiry,
		Role:     role,
		Identity: username,
	}, nil
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return MsgMissingFields
	case http.StatusUnauthorized:
		return MsgBadCredentials
	case http.StatusForbidden:
		return MsgForbidden
	default:
		return MsgUnknownStatus
	}
}

// tokenExpiry prefers the advertised tokenExpDate and falls back to the
// token's own exp claim.
func tokenExpiry(lr loginResponse) (time.Time, error) {
	if lr.TokenExpDate != "" {
		if t, err := core.ParseExpiry(lr.TokenExpDate); err == nil {
			return t, nil
		}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(lr.AccessToken, claims); err != nil {
		return time.Time{}, fmt.Errorf("no usable expiry: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.New("no usable expiry")
	}
	return exp.UTC(), nil
}

func (c *Client) record(ev audit.Event) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Log(ev); err != nil {
		c.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("writing audit record")
	}
}
