package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/usecase"
	"github.com/secmon-lab/moderato/pkg/utils/errutil"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSweepInterval    = 15 * time.Second
	DefaultSweepConcurrency = 8

	defaultStartupAttempts = 3
	defaultStartupBackoff  = 2 * time.Second
)

// Expirer is the part of the moderation use case the sweeper drives
type Expirer interface {
	ListDue(ctx context.Context) ([]*model.ActionRecord, error)
	Expire(ctx context.Context, rec *model.ActionRecord) (*usecase.ExpireResult, error)
	ReconcilePending(ctx context.Context) int
}

// SweepResult summarizes one pass
type SweepResult struct {
	Due        int
	Expired    int
	Failed     int
	Reconciled int
}

// ExpirySweeper lifts timed actions once they are due.
//
// Architecture assumptions:
// - Single instance; the per key locks in the use case are process local
// - Records missed while the process was down are picked up by the startup sweep
type ExpirySweeper struct {
	expirer     Expirer
	interval    time.Duration
	concurrency int

	startupAttempts int
	startupBackoff  time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

type SweeperOption func(*ExpirySweeper)

func WithInterval(d time.Duration) SweeperOption {
	return func(w *ExpirySweeper) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithConcurrency bounds how many records one pass expires in parallel
func WithConcurrency(n int) SweeperOption {
	return func(w *ExpirySweeper) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithStartupRetry sets how often the startup sweep is tried before Start
// gives up, and the wait between tries
func WithStartupRetry(attempts int, backoff time.Duration) SweeperOption {
	return func(w *ExpirySweeper) {
		if attempts > 0 {
			w.startupAttempts = attempts
		}
		if backoff >= 0 {
			w.startupBackoff = backoff
		}
	}
}

func NewExpirySweeper(expirer Expirer, opts ...SweeperOption) *ExpirySweeper {
	w := &ExpirySweeper{
		expirer:         expirer,
		interval:        DefaultSweepInterval,
		concurrency:     DefaultSweepConcurrency,
		startupAttempts: defaultStartupAttempts,
		startupBackoff:  defaultStartupBackoff,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs one full sweep synchronously, then continues in the background.
// Callers start accepting commands only after Start returns, so actions that
// expired while the process was down are lifted first. When due records
// cannot be listed after the startup retries, Start fails and no loop runs.
func (w *ExpirySweeper) Start(ctx context.Context) error {
	started := false
	w.startOnce.Do(func() { started = true })
	if !started {
		return goerr.New("expiry sweeper already started")
	}

	logging.Default().Info("Expiry sweeper starting",
		"interval", w.interval.String(),
		"concurrency", w.concurrency)

	result, err := w.startupSweep(ctx)
	if err != nil {
		close(w.doneCh)
		return err
	}
	logging.Default().Info("Initial expiry sweep done", resultAttrs(result)...)

	go w.run(ctx)
	return nil
}

func (w *ExpirySweeper) startupSweep(ctx context.Context) (*SweepResult, error) {
	var lastErr error
	for attempt := 1; attempt <= w.startupAttempts; attempt++ {
		result, err := w.SweepOnce(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logging.Default().Warn("Initial expiry sweep failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", w.startupAttempts),
			slog.Any("error", err))

		if attempt == w.startupAttempts {
			break
		}
		select {
		case <-time.After(w.startupBackoff):
		case <-ctx.Done():
			return nil, goerr.Wrap(ctx.Err(), "startup sweep cancelled")
		}
	}
	return nil, goerr.Wrap(lastErr, "startup sweep failed", goerr.V("attempts", w.startupAttempts))
}

// Stop signals the loop to stop and waits for the running pass to finish
func (w *ExpirySweeper) Stop() {
	started := true
	w.startOnce.Do(func() { started = false })

	w.stopOnce.Do(func() {
		logging.Default().Info("Expiry sweeper stopping")
		close(w.stopCh)
		if started {
			<-w.doneCh
		}
		logging.Default().Info("Expiry sweeper stopped")
	})
}

func (w *ExpirySweeper) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			result, err := w.SweepOnce(ctx)
			if err != nil {
				_ = errutil.Handle(ctx, err, "expiry sweep failed (will retry next interval)")
				continue
			}
			if result.Due > 0 || result.Reconciled > 0 {
				logging.Default().Info("Expiry sweep done", resultAttrs(result)...)
			}

		case <-w.stopCh:
			logging.Default().Info("Expiry sweeper received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("Expiry sweeper context cancelled")
			return
		}
	}
}

// SweepOnce retries queued reconciliation writes, then expires every due
// record. A failing record is logged and counted; it never stops the pass.
func (w *ExpirySweeper) SweepOnce(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{
		Reconciled: w.expirer.ReconcilePending(ctx),
	}

	due, err := w.expirer.ListDue(ctx)
	if err != nil {
		return result, goerr.Wrap(err, "failed to list due actions")
	}
	result.Due = len(due)

	var expired, failed atomic.Int64
	var eg errgroup.Group
	eg.SetLimit(w.concurrency)

	for _, rec := range due {
		eg.Go(func() error {
			res, err := w.expirer.Expire(ctx, rec)
			if err != nil {
				failed.Add(1)
				_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to expire action",
					goerr.V("key", rec.Key().String())), "expiry failed (will retry next pass)")
				return nil
			}
			if res.Expired {
				expired.Add(1)
			}
			return nil
		})
	}
	_ = eg.Wait()

	result.Expired = int(expired.Load())
	result.Failed = int(failed.Load())
	return result, nil
}

func resultAttrs(r *SweepResult) []any {
	return []any{
		slog.Int("due", r.Due),
		slog.Int("expired", r.Expired),
		slog.Int("failed", r.Failed),
		slog.Int("reconciled", r.Reconciled),
	}
}
