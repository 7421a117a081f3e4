package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/simrelease/simrelease/internal/access"
	"github.com/simrelease/simrelease/internal/activity"
	"github.com/simrelease/simrelease/internal/batch"
	"github.com/simrelease/simrelease/internal/console"
	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/session"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const shellHelp = `Commands:
  login               authenticate
  paste               enter ICCIDs, one per line; finish with a single "." line
  count               number of ICCIDs in the current input
  submit prod|uat     submit the current input as one batch
  logs                show the log of the last batch
  clear               clear the input and the log
  export [path]       write the log to a file
  theme [light|dark]  switch the color theme
  whoami              show identity, role and grants
  logout              end the session
  quit                leave the shell`

// RegisterShellCommand adds the interactive shell.
func RegisterShellCommand(root *cobra.Command) {
	root.AddCommand(&cobra.Command{
		Use:   "shell",
		Short: "Interactive session: paste, submit, review and export",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sc := newSession(engine)
			sh := newShell(sc, newPolicy(engine.Config), engine.Config.ExportFileName,
				bufio.NewReader(os.Stdin), os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))

			notifyResume(ctx, sc.Monitor)
			return sh.run(ctx)
		},
	})
}

type shell struct {
	sc         *session.Context
	policy     *access.Policy
	exportName string
	in         *bufio.Reader
	out        io.Writer
	colorize   bool
	r          *console.Renderer
	input      string
}

func newShell(sc *session.Context, policy *access.Policy, exportName string, in *bufio.Reader, out io.Writer, colorize bool) *shell {
	sh := &shell{
		sc:         sc,
		policy:     policy,
		exportName: exportName,
		in:         in,
		out:        out,
		colorize:   colorize,
	}
	theme, _ := console.ParseTheme(sc.Store.Theme())
	sh.r = console.NewRenderer(out, theme, colorize)
	return sh
}

func (sh *shell) run(ctx context.Context) error {
	if sh.sc.Monitor.CheckValidity() == core.StateAuthenticated {
		cred, _ := sh.sc.Monitor.Credential()
		sh.r.Notice(true, "Logged in as %s.", cred.Identity)
	} else {
		sh.r.Info("Not logged in. Type 'login' to sign in.")
	}

	sh.sc.Monitor.OnChange(func(st core.SessionState) {
		// Runs on the monitor goroutine; write plainly rather than share sh.r.
		if st == core.StateUnauthenticated {
			fmt.Fprintln(sh.out, "Session ended. Type 'login' to sign in again.")
		}
	})
	go sh.sc.Monitor.Run(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(sh.out, sh.prompt())
		line, err := sh.in.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				fmt.Fprintln(sh.out)
				return nil
			}
			return err
		}
		if quit := sh.exec(ctx, strings.TrimSpace(line)); quit {
			return nil
		}
	}
}

func (sh *shell) prompt() string {
	if cred, ok := sh.sc.Monitor.Credential(); ok {
		return fmt.Sprintf("simrelease[%s]> ", cred.Identity)
	}
	return "simrelease> "
}

// exec runs one command line and reports whether the shell should exit.
func (sh *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "quit", "exit":
		return true
	case "help", "?":
		sh.r.Info("%s", shellHelp)
		return false
	case "theme":
		sh.theme(args)
		return false
	case "login":
		if sh.sc.Monitor.State() == core.StateAuthenticated {
			sh.r.Info("Already logged in.")
			return false
		}
		if err := interactiveLogin(ctx, sh.sc, sh.r, sh.policy, sh.in, ""); err != nil && !errors.Is(err, errLoginFailed) {
			sh.r.Notice(false, "%v", err)
		}
		return false
	}

	if sh.sc.Monitor.State() != core.StateAuthenticated {
		sh.r.Notice(false, "Not logged in. Type 'login' to sign in.")
		return false
	}

	switch name {
	case "paste":
		sh.paste()
	case "count":
		sh.r.LineCount(batch.Count(sh.input))
	case "submit":
		sh.submit(ctx, args)
	case "logs":
		sh.r.Entries(sh.sc.Log.Entries())
		sh.r.Counts(sh.sc.Log.Counts())
	case "clear":
		sh.input = ""
		sh.sc.Log.Clear()
		sh.r.Info("Cleared.")
	case "export":
		sh.export(args)
	case "whoami":
		cred, _ := sh.sc.Monitor.Credential()
		printIdentity(sh.r, cred, sh.policy)
	case "logout":
		sh.input = ""
		if err := sh.sc.Logout(); err != nil {
			sh.r.Notice(false, "logout: %v", err)
		}
	default:
		sh.r.Notice(false, "Unknown command %q. Type 'help'.", name)
	}
	return false
}

func (sh *shell) paste() {
	sh.r.Info(`Paste ICCIDs, one per line. End with a single "." line.`)
	var b strings.Builder
	for {
		line, err := sh.in.ReadString('\n')
		if strings.TrimSpace(line) == "." {
			break
		}
		b.WriteString(line)
		if err != nil {
			break
		}
	}
	sh.input = b.String()
	sh.r.LineCount(batch.Count(sh.input))
}

func (sh *shell) submit(ctx context.Context, args []string) {
	if len(args) != 1 {
		sh.r.Notice(false, "usage: submit prod|uat")
		return
	}
	env, err := core.ParseEnvironment(args[0])
	if err != nil {
		sh.r.Notice(false, "%v", err)
		return
	}

	// A dispatched submission is never cancelled.
	if _, err := runSubmit(context.WithoutCancel(ctx), sh.sc, sh.r, sh.input, env); err != nil {
		sh.r.Notice(false, "%v", err)
	}
}

func (sh *shell) export(args []string) {
	path := sh.exportName
	if len(args) > 0 {
		path = args[0]
	}
	if err := sh.sc.Export(path); err != nil {
		if errors.Is(err, activity.ErrNothingToExport) {
			sh.r.Notice(false, "No logs to export.")
			return
		}
		sh.r.Notice(false, "%v", err)
		return
	}
	sh.r.Notice(true, "Exported %d entries to %s", sh.sc.Log.Len(), path)
}

func (sh *shell) theme(args []string) {
	next := sh.r.Theme().Toggle()
	if len(args) > 0 {
		t, ok := console.ParseTheme(args[0])
		if !ok {
			sh.r.Notice(false, "usage: theme [light|dark]")
			return
		}
		next = t
	}
	if err := sh.sc.Store.SetTheme(string(next)); err != nil {
		sh.r.Notice(false, "saving theme: %v", err)
	}
	sh.r = console.NewRenderer(sh.out, next, sh.colorize)
	sh.r.Info("Theme: %s", next)
}
