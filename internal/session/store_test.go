package session

import (
	"testing"
	"time"

	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/vault"
)

func newTestStore(t *testing.T) (*Store, *vault.Vault) {
	t.Helper()
	v, err := vault.CreateMemoryOnly("test-passphrase")
	if err != nil {
		t.Fatalf("creating vault: %v", err)
	}
	return NewStore(v), v
}

func testCredential(expiry time.Time) core.Credential {
	return core.Credential{
		Token:    "eyJhbGciOiJIUzI1NiJ9.e30.sig",
		Expiry:   expiry,
		Role:     "support1515",
		Identity: "jdoe",
	}
}

func TestStoreSaveLoad(t *testing.T) {
	s, _ := newTestStore(t)

	if _, ok := s.Load(); ok {
		t.Fatal("empty store should not yield a credential")
	}

	exp := time.Date(2030, 1, 2, 3, 4, 5, 600000000, time.UTC)
	if err := s.Save(testCredential(exp)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok := s.Load()
	if !ok {
		t.Fatal("expected a credential after Save")
	}
	if got.Token != "eyJhbGciOiJIUzI1NiJ9.e30.sig" || got.Role != "support1515" || got.Identity != "jdoe" {
		t.Errorf("unexpected credential: %+v", got)
	}
	if !got.Expiry.Equal(exp) {
		t.Errorf("expiry = %v, want %v", got.Expiry, exp)
	}
}

func TestStoreClearKeepsTheme(t *testing.T) {
	s, v := newTestStore(t)

	if err := s.SetTheme("dark"); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if err := s.Save(testCredential(time.Now().Add(time.Hour))); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	for _, k := range credentialKeys {
		if v.Has(k) {
			t.Errorf("key %s still present after Clear", k)
		}
	}
	if s.Theme() != "dark" {
		t.Errorf("theme = %q, want dark", s.Theme())
	}

	// Clearing an empty store is fine.
	if err := s.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestStoreMalformedExpiry(t *testing.T) {
	s, v := newTestStore(t)

	v.Put(KeyToken, []byte("tok"))
	v.Put(KeyExpiry, []byte("next tuesday"))

	if _, ok := s.Load(); ok {
		t.Error("malformed expiry should not yield a credential")
	}
}

func TestStoreNaiveExpiryIsUTC(t *testing.T) {
	s, v := newTestStore(t)

	v.Put(KeyToken, []byte("tok"))
	v.Put(KeyExpiry, []byte("2031-05-06T07:08:09.123456"))

	got, ok := s.Load()
	if !ok {
		t.Fatal("expected credential")
	}
	want := time.Date(2031, 5, 6, 7, 8, 9, 123456000, time.UTC)
	if !got.Expiry.Equal(want) {
		t.Errorf("expiry = %v, want %v", got.Expiry, want)
	}
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/session.vault"

	v, err := vault.OpenOrCreate(path, "pw")
	if err != nil {
		t.Fatalf("OpenOrCreate: %v", err)
	}
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	if err := NewStore(v).Save(testCredential(exp)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	v.Close()

	v2, err := vault.Open(path, "pw")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v2.Close()

	got, ok := NewStore(v2).Load()
	if !ok || !got.Expiry.Equal(exp) || got.Identity != "jdoe" {
		t.Errorf("reopened credential = %+v, %v", got, ok)
	}
}
