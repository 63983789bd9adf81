package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/adapters/crdb"
	"github.com/robertarktes/tour-checkout/internal/checkout"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
	"golang.org/x/sync/errgroup"
)

const (
	lockName    = "expiry-worker"
	batchSize   = 100
	parallelism = 8
	maxRetries  = 3
)

type Ledger interface {
	GetStaleAttempts(ctx context.Context, cutoff time.Time, limit int) ([]crdb.AttemptRecord, error)
	AbandonAttempt(ctx context.Context, orderID string) error
}

type Locker interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) error
}

type StatusStore interface {
	Get(ctx context.Context, orderID string) (*checkout.AttemptStatus, error)
	Put(ctx context.Context, st checkout.AttemptStatus) error
}

// ExpiryWorker abandons attempts whose widget session outlived its TTL
// without a callback. Only the ledger and the status read model change; the
// gateway never reported, so no failure record is posted.
type ExpiryWorker struct {
	ledger     Ledger
	locks      Locker
	statuses   StatusStore
	sessionTTL time.Duration
	owner      string
	logger     observability.Logger
	now        func() time.Time
	backoff    time.Duration
}

func NewExpiryWorker(ledger Ledger, locks Locker, statuses StatusStore, sessionTTL time.Duration, owner string, logger observability.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		ledger:     ledger,
		locks:      locks,
		statuses:   statuses,
		sessionTTL: sessionTTL,
		owner:      owner,
		logger:     logger,
		now:        time.Now,
		backoff:    time.Second,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.Sweep(ctx, interval)
			if err != nil {
				w.logger.WithField("error", err.Error()).Error("expiry sweep failed")
				continue
			}
			if n > 0 {
				w.logger.WithField("abandoned", n).Info("abandoned stale attempts")
			}
		}
	}
}

// Sweep abandons one batch of stale attempts. Only one worker sweeps at a
// time; the others skip the round.
func (w *ExpiryWorker) Sweep(ctx context.Context, lockTTL time.Duration) (int, error) {
	ok, err := w.locks.AcquireLock(ctx, lockName, w.owner, lockTTL)
	if err != nil {
		return 0, errors.Wrap(err, "acquire sweep lock")
	}
	if !ok {
		return 0, nil
	}
	defer func() {
		if err := w.locks.ReleaseLock(context.WithoutCancel(ctx), lockName, w.owner); err != nil {
			w.logger.WithField("error", err.Error()).Warn("failed to release sweep lock")
		}
	}()

	stale, err := w.ledger.GetStaleAttempts(ctx, w.now().Add(-w.sessionTTL), batchSize)
	if err != nil {
		return 0, errors.Wrap(err, "load stale attempts")
	}

	abandoned := make([]bool, len(stale))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, rec := range stale {
		g.Go(func() error {
			done, err := w.abandonWithRetry(gctx, rec.OrderID)
			if err != nil {
				w.logger.WithField("order_id", rec.OrderID).WithField("error", err.Error()).Error("failed to abandon attempt after retries")
				return nil
			}
			if !done {
				return nil
			}
			abandoned[i] = true
			w.markStatus(gctx, rec.OrderID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	for _, ok := range abandoned {
		if ok {
			n++
		}
	}
	return n, nil
}

// abandonWithRetry reports false when the attempt settled on its own in the
// meantime.
func (w *ExpiryWorker) abandonWithRetry(ctx context.Context, orderID string) (bool, error) {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = w.ledger.AbandonAttempt(ctx, orderID)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, domain.ErrAlreadySettled), errors.Is(err, domain.ErrNotFound):
			return false, nil
		}
		backoff := time.Duration(1<<i) * w.backoff
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return false, errors.Wrapf(err, "abandon %s after %d retries", orderID, maxRetries)
}

func (w *ExpiryWorker) markStatus(ctx context.Context, orderID string) {
	st, err := w.statuses.Get(ctx, orderID)
	if err != nil || st.Terminal() {
		return
	}
	if err := w.statuses.Put(ctx, st.Abandoned(w.now())); err != nil {
		w.logger.WithField("order_id", orderID).WithField("error", err.Error()).Warn("failed to update attempt status")
	}
}
