// Package session manages the operator credential and its validity lifecycle.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/simrelease/simrelease/internal/core"
)

// Storage keys. Each credential attribute is stored independently.
const (
	KeyToken    = "token"
	KeyExpiry   = "date_expires"
	KeyRole     = "user_type"
	KeyIdentity = "username"
	KeyTheme    = "theme"
)

var credentialKeys = []string{KeyToken, KeyExpiry, KeyRole, KeyIdentity}

// Backend is the persistent key/value store behind the Store.
// *vault.Vault satisfies it.
type Backend interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Save() error
}

// Store is the credential store: load, save and clear the single credential.
type Store struct {
	mu      sync.Mutex
	backend Backend
}

// NewStore creates a credential store on top of backend.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Load returns the stored credential. A missing token or unparseable expiry
// yields ok=false; it is never an error.
func (s *Store) Load() (core.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.get(KeyToken)
	if token == "" {
		return core.Credential{}, false
	}
	expiry, err := core.ParseExpiry(s.get(KeyExpiry))
	if err != nil {
		return core.Credential{}, false
	}

	return core.Credential{
		Token:    token,
		Expiry:   expiry,
		Role:     s.get(KeyRole),
		Identity: s.get(KeyIdentity),
	}, true
}

// Save persists the credential.
func (s *Store) Save(c core.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := map[string]string{
		KeyToken:    c.Token,
		KeyExpiry:   c.Expiry.UTC().Format(time.RFC3339Nano),
		KeyRole:     c.Role,
		KeyIdentity: c.Identity,
	}
	for _, k := range credentialKeys {
		if err := s.backend.Put(k, []byte(values[k])); err != nil {
			return fmt.Errorf("storing %s: %w", k, err)
		}
	}
	return s.backend.Save()
}

// Clear removes every credential attribute. The theme preference is kept.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, k := range credentialKeys {
		if err := s.backend.Delete(k); err != nil {
			errs = append(errs, fmt.Errorf("deleting %s: %w", k, err))
		}
	}
	if err := s.backend.Save(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Theme returns the stored presentation theme, or "" when unset.
func (s *Store) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(KeyTheme)
}

// SetTheme persists the presentation theme.
func (s *Store) SetTheme(theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Put(KeyTheme, []byte(theme)); err != nil {
		return err
	}
	return s.backend.Save()
}

func (s *Store) get(key string) string {
	v, err := s.backend.Get(key)
	if err != nil {
		return ""
	}
	return string(v)
}
