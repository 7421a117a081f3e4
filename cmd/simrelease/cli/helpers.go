package cli

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/simrelease/simrelease/internal/access"
	"github.com/simrelease/simrelease/internal/auth"
	"github.com/simrelease/simrelease/internal/config"
	"github.com/simrelease/simrelease/internal/console"
	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/outcome"
	"github.com/simrelease/simrelease/internal/provision"
	"github.com/simrelease/simrelease/internal/session"
	"golang.org/x/term"
)

// PassphraseEnv names the environment variable that supplies the vault
// passphrase non-interactively.
const PassphraseEnv = "SIMRELEASE_PASSPHRASE"

// loadEngine opens the operator state. Prompts for the vault passphrase
// unless PassphraseEnv is set.
func loadEngine() (*core.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	passphrase, ok := os.LookupEnv(PassphraseEnv)
	if !ok {
		passphrase, err = promptSecret("Vault passphrase: ")
		if err != nil {
			return nil, fmt.Errorf("reading passphrase: %w", err)
		}
	}

	engine, err := core.Open(cfg, passphrase)
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}
	return engine, nil
}

// newSession wires the operator session on top of an open engine.
func newSession(engine *core.Engine) *session.Context {
	cfg := engine.Config
	hc := &http.Client{Timeout: cfg.HTTPTimeout()}

	store := session.NewStore(engine.Vault)
	mon := session.NewMonitor(store,
		session.WithInterval(cfg.CheckInterval()),
		session.WithAuditor(engine.AuditLogger),
		session.WithLogger(engine.Logger),
	)
	login := auth.NewClient(cfg.AuthURL,
		auth.WithHTTPClient(hc),
		auth.WithAuditor(engine.AuditLogger),
		auth.WithLogger(engine.Logger),
	)
	submitter := provision.NewClient(cfg.ProvisionURL, store,
		provision.WithHTTPClient(hc),
		provision.WithPolicy(newPolicy(cfg)),
		provision.WithVocabulary(outcome.NewVocabulary(cfg.SuccessPhrases...)),
		provision.WithAuditor(engine.AuditLogger),
		provision.WithLogger(engine.Logger),
	)
	return session.NewContext(store, mon, login, submitter, engine.AuditLogger, engine.Logger)
}

func newPolicy(cfg config.Config) *access.Policy {
	return access.NewPolicy(access.Rules{
		ProdOnly: cfg.AccessRules.ProdOnly,
		UATOnly:  cfg.AccessRules.UATOnly,
		Both:     cfg.AccessRules.Both,
	})
}

// newRenderer builds a stdout renderer using the stored theme.
func newRenderer(store *session.Store) *console.Renderer {
	theme, _ := console.ParseTheme(store.Theme())
	return console.NewRenderer(os.Stdout, theme, term.IsTerminal(int(os.Stdout.Fd())))
}

// requireSession re-validates the stored credential and fails when there is none.
func requireSession(sc *session.Context) (core.Credential, error) {
	if sc.Monitor.CheckValidity() != core.StateAuthenticated {
		return core.Credential{}, fmt.Errorf("not logged in (or session expired); run 'simrelease login'")
	}
	cred, _ := sc.Monitor.Credential()
	return cred, nil
}

func promptSecret(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func promptLine(r *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readInput returns the contents of path, or stdin when path is "" or "-".
func readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}
