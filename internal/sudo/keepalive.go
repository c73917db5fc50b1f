package sudo

import (
	"context"
	"os/exec"
	"time"

	"github.com/alexisbeaulieu97/bootstrap/internal/execx"
	"github.com/alexisbeaulieu97/bootstrap/internal/logger"
)

// Keepalive is a supervised background task refreshing the sudo timestamp
// so later privileged steps do not re-prompt mid-run. It shares no mutable
// state with the pipeline and must be stopped from the pipeline's
// guaranteed-cleanup path; an orphaned refresher is an open elevated
// session, not a cosmetic leak.
type Keepalive struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// RefreshFunc refreshes the privilege cache once. Injectable for tests.
type RefreshFunc func(ctx context.Context) error

func defaultRefresh(ctx context.Context) error {
	// -n: never prompt from the background task; the interactive prompt
	// happened (if needed) when Start validated the session.
	_, err := execx.Run(ctx, "sudo", "-n", "-v")
	return err
}

// Start validates the sudo session interactively once, then refreshes it on
// the given interval until Stop. Returns nil without starting anything when
// sudo is not on PATH (single-user machines without it are fine: installs
// that need privilege will fail with their own message).
func Start(ctx context.Context, log *logger.Logger, interval time.Duration) *Keepalive {
	if _, err := exec.LookPath("sudo"); err != nil {
		log.Debug("sudo not found, skipping privilege keepalive")
		return nil
	}

	if _, err := execx.RunStreaming(ctx, "sudo", "-v"); err != nil {
		log.Warn("could not validate sudo session, privileged steps may re-prompt")
		return nil
	}

	return start(ctx, log, interval, defaultRefresh)
}

func start(ctx context.Context, log *logger.Logger, interval time.Duration, refresh RefreshFunc) *Keepalive {
	taskCtx, cancel := context.WithCancel(ctx)
	k := &Keepalive{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(k.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-taskCtx.Done():
				return
			case <-ticker.C:
				if err := refresh(taskCtx); err != nil && taskCtx.Err() == nil {
					log.Warn("sudo refresh failed, privileged steps may re-prompt")
				}
			}
		}
	}()

	return k
}

// Stop cancels the refresher and waits for it to exit. Safe on a nil
// receiver so callers can defer it unconditionally.
func (k *Keepalive) Stop() {
	if k == nil {
		return
	}
	k.cancel()
	<-k.done
}
