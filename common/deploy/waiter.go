package deploy

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// StatusQuerier is the capability the waiter needs from an API client:
// report the current deployment status of a single app.
type StatusQuerier interface {
	DeployStatus(ctx context.Context, appID string) (Status, error)
}

// WaitConfig bounds a single wait: how many status queries to issue and
// how long to suspend between them.
type WaitConfig struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultWaitConfig returns the standard polling bounds: 30 attempts,
// one second apart.
func DefaultWaitConfig() WaitConfig {
	return WaitConfig{
		MaxAttempts: 30,
		Interval:    time.Second,
	}
}

// Wait polls q for the deployment status of appID until a terminal status
// is observed or cfg.MaxAttempts queries have been issued, and returns the
// final Outcome.
//
// SUCCESS, FAIL and CANCEL end the wait immediately. Any other status,
// including values this package does not know about, keeps the wait going;
// the interval is measured from the end of one query to the start of the
// next. A MaxAttempts of zero or less yields a TIMEOUT outcome without
// querying at all.
//
// Errors from q are not retried: the wait aborts and the error is returned
// with no Outcome. Cancelling ctx aborts the wait the same way.
//
// Wait keeps no state between calls and is safe to run concurrently for
// different app IDs.
func Wait(ctx context.Context, q StatusQuerier, appID string, cfg WaitConfig) (Outcome, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultWaitConfig().Interval
	}

	for i := 0; i < cfg.MaxAttempts; i++ {
		status, err := q.DeployStatus(ctx, appID)
		if err != nil {
			return Outcome{}, err
		}

		switch status {
		case StatusSuccess:
			return Outcome{Success: true, Status: StatusSuccess}, nil
		case StatusFail, StatusCancel:
			return Outcome{Success: false, Status: status}, nil
		case StatusProcessing:
			// keep polling
		default:
			log.Warn().
				Str("appID", appID).
				Str("status", string(status)).
				Msg("Unrecognized deploy status, continuing to poll")
		}

		// No suspension after the last attempt; the budget is spent.
		if i == cfg.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Outcome{}, ctx.Err()
		case <-timer.C:
		}
	}

	return Outcome{Success: false, Status: StatusTimeout}, nil
}
