// engine.go provides the Engine that opens the local operator state.
package core

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/simrelease/simrelease/internal/audit"
	"github.com/simrelease/simrelease/internal/config"
	"github.com/simrelease/simrelease/internal/db"
	"github.com/simrelease/simrelease/internal/logging"
	"github.com/simrelease/simrelease/internal/vault"
)

// Engine holds the resources backing one operator: the encrypted credential
// vault, the audit database and the logger.
type Engine struct {
	Config      config.Config
	AuditDB     *sql.DB
	Vault       *vault.Vault
	AuditLogger *audit.Logger
	Logger      zerolog.Logger
}

// Open opens the state directory named by cfg, creating the vault and audit
// database on first use. A wrong passphrase returns vault.ErrBadPassphrase.
func Open(cfg config.Config, passphrase string) (*Engine, error) {
	return OpenWithLogger(cfg, passphrase, logging.NewLogger(cfg.LogLevel))
}

// OpenWithLogger is Open with a caller-supplied logger.
func OpenWithLogger(cfg config.Config, passphrase string, logger zerolog.Logger) (*Engine, error) {
	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = config.Dir()
	}

	// Open audit database
	auditDB, err := db.OpenAuditDB(stateDir)
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}

	// Open encrypted vault
	vaultPath := filepath.Join(stateDir, vault.VaultFileName)
	v, err := vault.OpenOrCreate(vaultPath, passphrase)
	if err != nil {
		auditDB.Close()
		return nil, fmt.Errorf("opening vault: %w", err)
	}

	// Create audit logger
	al, err := audit.NewLogger(auditDB)
	if err != nil {
		v.Close()
		auditDB.Close()
		return nil, fmt.Errorf("creating audit logger: %w", err)
	}

	logger.Debug().Str("state_dir", stateDir).Msg("state opened")

	return &Engine{
		Config:      cfg,
		AuditDB:     auditDB,
		Vault:       v,
		AuditLogger: al,
		Logger:      logger,
	}, nil
}

// Close cleanly shuts down all engine resources.
func (e *Engine) Close() error {
	var firstErr error
	if e.Vault != nil {
		if err := e.Vault.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.AuditDB != nil {
		if err := e.AuditDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
