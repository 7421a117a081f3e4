// Package vault implements the encrypted on-disk store that backs the
// operator session. Each value is sealed with AES-256-GCM under a key derived
// from the operator passphrase via Argon2id; the entry name is bound as AAD so
// values cannot be swapped between keys.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	VaultFileName = "session.vault"

	argonMemory  = 64 * 1024
	argonTime    = 3
	argonThreads = 4
	argonKeyLen  = 32

	saltLen  = 32
	nonceLen = 12

	// checkKey holds a known plaintext so a wrong passphrase is detected
	// even when the vault carries no session values.
	checkKey   = "_check"
	checkValue = "simrelease"
)

// ErrNotFound is returned by Get for keys that were never stored or were deleted.
var ErrNotFound = errors.New("vault key not found")

// ErrBadPassphrase is returned by Open when the passphrase does not unlock the file.
var ErrBadPassphrase = errors.New("incorrect passphrase or corrupted vault")

type entry struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

type vaultFile struct {
	Salt    []byte            `json:"salt"`
	Entries map[string]*entry `json:"entries"`
}

// Vault is a passphrase-protected key/value store. A Vault with an empty
// path lives only in memory.
type Vault struct {
	mu      sync.RWMutex
	key     []byte
	salt    []byte
	entries map[string]*entry
	path    string
	dirty   bool
}

// DeriveKey derives a 256-bit key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Create initializes a new vault with a fresh salt and writes it to path.
func Create(path, passphrase string) (*Vault, error) {
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	v := &Vault{
		key:     DeriveKey(passphrase, salt),
		salt:    salt,
		entries: make(map[string]*entry),
		path:    path,
	}
	if err := v.Put(checkKey, []byte(checkValue)); err != nil {
		return nil, err
	}
	if err := v.Save(); err != nil {
		return nil, err
	}
	return v, nil
}

// CreateMemoryOnly creates a vault that never touches disk.
func CreateMemoryOnly(passphrase string) (*Vault, error) {
	return Create("", passphrase)
}

// Open loads an existing vault file and unlocks it with the given passphrase.
func Open(path, passphrase string) (*Vault, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading vault file: %w", err)
	}

	var vf vaultFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, fmt.Errorf("parsing vault file: %w", err)
	}
	if vf.Entries == nil {
		vf.Entries = make(map[string]*entry)
	}

	v := &Vault{
		key:     DeriveKey(passphrase, vf.Salt),
		salt:    vf.Salt,
		entries: vf.Entries,
		path:    path,
	}

	if _, ok := vf.Entries[checkKey]; ok {
		got, err := v.Get(checkKey)
		if err != nil || string(got) != checkValue {
			v.zero()
			return nil, ErrBadPassphrase
		}
	}
	return v, nil
}

// OpenOrCreate opens the vault at path, creating it (and its directory) first
// when it does not exist yet.
func OpenOrCreate(path, passphrase string) (*Vault, error) {
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("checking vault file: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating vault directory: %w", err)
		}
		return Create(path, passphrase)
	}
	return Open(path, passphrase)
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Put encrypts and stores value under name.
func (v *Vault) Put(name string, value []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	aead, err := v.gcm()
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	v.entries[name] = &entry{
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, value, []byte(name)),
	}
	v.dirty = true
	return nil
}

// Get decrypts and returns the value stored under name.
func (v *Vault) Get(name string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	e, ok := v.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	aead, err := v.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, e.Nonce, e.Ciphertext, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("decrypting vault entry: %w", err)
	}
	return plaintext, nil
}

// Delete removes name. Deleting a missing key is not an error.
func (v *Vault) Delete(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.entries[name]; ok {
		delete(v.entries, name)
		v.dirty = true
	}
	return nil
}

// Has reports whether name is present.
func (v *Vault) Has(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.entries[name]
	return ok
}

// Keys returns the stored key names in sorted order, excluding internal entries.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.entries))
	for k := range v.entries {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Save persists pending changes. No-op for memory-only vaults.
func (v *Vault) Save() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.flush()
}

func (v *Vault) flush() error {
	if v.path == "" || !v.dirty {
		return nil
	}

	data, err := json.Marshal(vaultFile{Salt: v.salt, Entries: v.entries})
	if err != nil {
		return fmt.Errorf("marshaling vault: %w", err)
	}

	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing vault file: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		return fmt.Errorf("replacing vault file: %w", err)
	}

	v.dirty = false
	return nil
}

// Close flushes pending writes and zeroes the derived key.
func (v *Vault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	err := v.flush()
	v.zero()
	return err
}

func (v *Vault) zero() {
	for i := range v.key {
		v.key[i] = 0
	}
}

// Fingerprint returns a redaction-safe hash prefix for a secret value.
// Format: sha256:<first-8-chars-of-hex-hash>
func Fingerprint(secret []byte) string {
	h := sha256.Sum256(secret)
	return "sha256:" + hex.EncodeToString(h[:])[:8]
}
