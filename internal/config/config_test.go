package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionCheckIntervalMinutes != 5 {
		t.Errorf("expected 5 minute interval, got %d", cfg.SessionCheckIntervalMinutes)
	}
	if cfg.ExportFileName != DefaultExportFileName {
		t.Errorf("unexpected export name %q", cfg.ExportFileName)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ConfigFileName)

	cfg := Default()
	cfg.ProvisionURL = "https://prov.example/sim/creation-liberation"
	cfg.SuccessPhrases = []string{"SIM released"}
	if err := SaveTo(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600, got %v", info.Mode().Perm())
	}

	got, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ProvisionURL != cfg.ProvisionURL {
		t.Errorf("provision url not persisted: %q", got.ProvisionURL)
	}
	if len(got.SuccessPhrases) != 1 || got.SuccessPhrases[0] != "SIM released" {
		t.Errorf("phrases not persisted: %v", got.SuccessPhrases)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0600)

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected debug, got %s", cfg.LogLevel)
	}
	if cfg.AuthURL != DefaultAuthURL {
		t.Errorf("expected default auth url, got %s", cfg.AuthURL)
	}
}

func TestSet(t *testing.T) {
	cfg := Default()
	if err := cfg.Set("session_check_interval_minutes", "10"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.CheckInterval() != 10*time.Minute {
		t.Errorf("expected 10m, got %v", cfg.CheckInterval())
	}
	if err := cfg.Set("success_phrases", "SIM released, AUC generated,"); err != nil {
		t.Fatalf("set phrases: %v", err)
	}
	if len(cfg.SuccessPhrases) != 2 {
		t.Errorf("expected 2 phrases, got %v", cfg.SuccessPhrases)
	}
	if err := cfg.Set("http_timeout_seconds", "-1"); err == nil {
		t.Error("expected error for negative timeout")
	}
	if err := cfg.Set("bogus", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestHTTPTimeoutZeroMeansNone(t *testing.T) {
	cfg := Default()
	cfg.HTTPTimeoutSeconds = 0
	if cfg.HTTPTimeout() != 0 {
		t.Errorf("expected 0, got %v", cfg.HTTPTimeout())
	}
}
