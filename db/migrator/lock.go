package migrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/nrednav/cuid2"
)

const defaultLockPollInterval = 250 * time.Millisecond

// heldLock is an acquired migration lock.
type heldLock struct {
	sess   Session
	key    string
	owner  string
	logger *slog.Logger
}

// acquireLock obtains the migration lock identified by key, retrying until
// timeout elapses. A zero timeout makes a single attempt. Locks held for
// longer than staleAfter are taken over, where the dialect supports it.
func acquireLock(
	ctx context.Context, sess Session, key string, timeout, staleAfter, pollInterval time.Duration,
	logger *slog.Logger,
) (*heldLock, error) {
	owner := cuid2.Generate()
	logger = logger.With("lock_key", key, "lock_owner", owner)
	deadline := time.Now().Add(timeout)

	for {
		ok, err := sess.Dialect().TryLock(ctx, sess, key, owner, staleAfter)
		if err != nil {
			return nil, err
		}
		if ok {
			logger.Debug("acquired migration lock")
			return &heldLock{sess: sess, key: key, owner: owner, logger: logger}, nil
		}

		wait := min(pollInterval, time.Until(deadline))
		if wait <= 0 {
			return nil, &LockTimeoutError{Key: key, Timeout: timeout}
		}
		logger.Debug("waiting for migration lock held by another runner")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

// release frees the lock, even if ctx was canceled.
func (l *heldLock) release(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	if err := l.sess.Dialect().Unlock(ctx, l.sess, l.key, l.owner); err != nil {
		return err //nolint:wrapcheck // Dialects add context.
	}
	l.logger.Debug("released migration lock")

	return nil
}
