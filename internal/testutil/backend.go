// Package testutil provides an in-process stand-in for the authentication
// and provisioning services, speaking their wire contract, for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/simrelease/simrelease/internal/core"
)

const (
	LoginPath     = "/auth/login"
	ProvisionPath = "/sim/creation-liberation"
)

// User is a directory entry accepted by the login endpoint. An empty Role
// authenticates but is refused with 403.
type User struct {
	Password string
	Role     string
}

// Responder scripts the provisioning reply: status code and JSON-encodable body.
type Responder func(req core.BatchRequest) (int, any)

// Backend serves the login and provisioning endpoints.
type Backend struct {
	Server *httptest.Server
	Secret []byte
	TTL    time.Duration

	mu        sync.Mutex
	users     map[string]User
	respond   Responder
	raw       http.HandlerFunc
	requests  []core.BatchRequest
	headers   []http.Header
	loginHits atomic.Int64
	provHits  atomic.Int64
}

// NewBackend starts a backend. Close it with b.Close().
func NewBackend() *Backend {
	b := &Backend{
		Secret:  []byte("test-signing-key"),
		TTL:     24 * time.Hour,
		users:   map[string]User{},
		respond: ReleaseAll,
	}

	r := mux.NewRouter()
	r.HandleFunc(LoginPath, b.handleLogin).Methods(http.MethodPost)
	r.HandleFunc(ProvisionPath, b.handleProvision).Methods(http.MethodPost)
	b.Server = httptest.NewServer(r)
	return b
}

// Close shuts the server down.
func (b *Backend) Close() { b.Server.Close() }

// AuthURL is the login endpoint URL.
func (b *Backend) AuthURL() string { return b.Server.URL + LoginPath }

// ProvisionURL is the provisioning endpoint URL.
func (b *Backend) ProvisionURL() string { return b.Server.URL + ProvisionPath }

// AddUser registers a login.
func (b *Backend) AddUser(username, password, role string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[strings.ToLower(username)] = User{Password: password, Role: role}
}

// Respond replaces the provisioning responder.
func (b *Backend) Respond(fn Responder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.respond = fn
	b.raw = nil
}

// RespondRaw serves provisioning calls with h directly, bypassing JSON.
func (b *Backend) RespondRaw(h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw = h
}

// Requests returns the decoded provisioning bodies received so far.
func (b *Backend) Requests() []core.BatchRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.BatchRequest(nil), b.requests...)
}

// Headers returns the provisioning request headers received so far.
func (b *Backend) Headers() []http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]http.Header(nil), b.headers...)
}

// ProvisionHits counts provisioning calls, including rejected ones.
func (b *Backend) ProvisionHits() int { return int(b.provHits.Load()) }

// LoginHits counts login calls.
func (b *Backend) LoginHits() int { return int(b.loginHits.Load()) }

// IssueToken signs a token the way the real auth service does.
func (b *Backend) IssueToken(username, role string, expires time.Time) string {
	claims := jwt.MapClaims{
		"sub":      username,
		"userType": role,
		"iat":      time.Now().Unix(),
		"exp":      expires.Unix(),
	}
	tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.Secret)
	return tok
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.loginHits.Add(1)

	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	json.NewDecoder(r.Body).Decode(&body)
	username := strings.ToLower(strings.TrimSpace(body.Username))

	if username == "" || body.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Username and password are required"})
		return
	}

	b.mu.Lock()
	u, ok := b.users[username]
	b.mu.Unlock()
	if !ok || u.Password != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Incorrect username or password"})
		return
	}
	if u.Role == "" {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "Access denied"})
		return
	}

	expires := time.Now().UTC().Add(b.TTL)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":      "User Logged In",
		"accessToken":  b.IssueToken(username, u.Role, expires),
		"tokenExpDate": expires.Format("2006-01-02T15:04:05.000000-07:00"),
		"user":         map[string]string{"username": username, "userType": u.Role},
	})
}

func (b *Backend) handleProvision(w http.ResponseWriter, r *http.Request) {
	b.provHits.Add(1)

	b.mu.Lock()
	b.headers = append(b.headers, r.Header.Clone())
	raw, respond := b.raw, b.respond
	b.mu.Unlock()

	if raw != nil {
		raw(w, r)
		return
	}

	bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if _, err := jwt.Parse(bearer, func(*jwt.Token) (any, error) { return b.Secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "Token has expired"})
		return
	}

	var req core.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Format des données invalide"})
		return
	}

	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()

	status, body := respond(req)
	writeJSON(w, status, body)
}

// ReleaseAll answers every item with a successful release under "results".
func ReleaseAll(req core.BatchRequest) (int, any) {
	results := make([]map[string]string, 0, len(req.Items))
	for _, item := range req.Items {
		results = append(results, map[string]string{"sim": item, "status": "success", "message": "SIM libérée"})
	}
	return http.StatusOK, map[string]any{"success": true, "results": results}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
