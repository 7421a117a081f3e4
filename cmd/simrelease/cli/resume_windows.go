package cli

import (
	"context"

	"github.com/simrelease/simrelease/internal/session"
)

// notifyResume is a no-op: there is no job-control signal on Windows.
func notifyResume(ctx context.Context, m *session.Monitor) {}
