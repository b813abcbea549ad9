package engine

import (
	"context"
	"errors"
	"time"

	"github.com/hay-kot/gltodo/internal/core/credential"
)

// Watch runs a pass immediately with first and then an incremental pass
// every interval until ctx is cancelled. fn, when set, receives each pass
// result. Failures are logged and
// the loop continues, except authentication failures which end it. Watch
// returns nil when ctx is cancelled.
func (e *Engine) Watch(
	ctx context.Context,
	account credential.Account,
	interval time.Duration,
	first SyncOptions,
	fn func(Report, error),
) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	run := func(opts SyncOptions) error {
		report, err := e.Sync(ctx, account, opts)
		if ctx.Err() != nil {
			return nil
		}
		if fn != nil {
			fn(report, err)
		}

		switch {
		case err == nil:
		case isAuthError(err):
			return err
		case errors.Is(err, ErrSyncInProgress):
			e.log.Debug().Msg("pass skipped, another sync is running")
		default:
			e.log.Warn().Err(err).Msg("watch pass failed, retrying on next tick")
		}
		return nil
	}

	if err := run(first); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := run(SyncOptions{}); err != nil {
				return err
			}
		}
	}
}

func isAuthError(err error) bool {
	return errors.Is(err, credential.ErrUnavailable) || errors.Is(err, credential.ErrRejected)
}
