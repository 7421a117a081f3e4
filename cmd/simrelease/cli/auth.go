package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/simrelease/simrelease/internal/access"
	"github.com/simrelease/simrelease/internal/auth"
	"github.com/simrelease/simrelease/internal/console"
	"github.com/simrelease/simrelease/internal/core"
	"github.com/simrelease/simrelease/internal/session"
	"github.com/spf13/cobra"
)

var errLoginFailed = errors.New("login failed")

// RegisterAuthCommands adds login, logout and whoami.
func RegisterAuthCommands(root *cobra.Command) {
	root.AddCommand(newLoginCmd())
	root.AddCommand(newLogoutCmd())
	root.AddCommand(newWhoamiCmd())
}

func newLoginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the session credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			sc := newSession(engine)
			r := newRenderer(sc.Store)
			return interactiveLogin(cmd.Context(), sc, r, newPolicy(engine.Config), bufio.NewReader(os.Stdin), username)
		},
	}

	cmd.Flags().StringVar(&username, "user", "", "Username (prompted when omitted)")
	return cmd
}

// interactiveLogin prompts for whatever is missing and logs in.
func interactiveLogin(ctx context.Context, sc *session.Context, r *console.Renderer, policy *access.Policy, in *bufio.Reader, username string) error {
	if username == "" {
		var err error
		username, err = promptLine(in, "Username: ")
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
	}
	password, err := promptSecret("Password: ")
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}

	cred, err := sc.Login(ctx, username, password)
	if err != nil {
		var le *auth.LoginError
		if errors.As(err, &le) {
			r.Notice(false, "%s", le.Message)
			return errLoginFailed
		}
		return err
	}

	r.Notice(true, "%s", auth.MsgSuccess)
	printIdentity(r, cred, policy)
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the stored session credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			sc := newSession(engine)
			if err := sc.Logout(); err != nil {
				return err
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current identity, role, expiry and environment grants",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := loadEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			sc := newSession(engine)
			cred, err := requireSession(sc)
			if err != nil {
				return err
			}
			printIdentity(newRenderer(sc.Store), cred, newPolicy(engine.Config))
			return nil
		},
	}
}

func printIdentity(r *console.Renderer, cred core.Credential, policy *access.Policy) {
	role := access.RoleFromToken(cred.Token)
	grants := policy.Permissions(role)

	r.Info("User:    %s", cred.Identity)
	r.Info("Role:    %s", role)
	r.Info("Expires: %s (%s remaining)", cred.Expiry.Local().Format(time.RFC1123),
		time.Until(cred.Expiry).Truncate(time.Minute))
	r.Info("PROD:    %s", yesNo(grants.Prod))
	r.Info("UAT:     %s", yesNo(grants.UAT))
}

func yesNo(b bool) string {
	if b {
		return "allowed"
	}
	return "denied"
}
