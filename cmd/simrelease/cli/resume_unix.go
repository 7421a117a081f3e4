//go:build !windows

package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/simrelease/simrelease/internal/session"
)

// notifyResume re-checks the session whenever the process is continued
// after being stopped (fg after Ctrl-Z).
func notifyResume(ctx context.Context, m *session.Monitor) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGCONT)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				m.Resume()
			}
		}
	}()
}
