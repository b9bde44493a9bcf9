package usecase

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/utils/errutil"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

// pendingOp is a store write that failed after the external mutation
// succeeded. record is set for an upsert and nil for a delete.
type pendingOp struct {
	record   *model.ActionRecord
	since    time.Time
	attempts int
}

// pendingQueue holds the latest unpersisted intent per key. It lives in
// process memory only.
type pendingQueue struct {
	mu  sync.Mutex
	ops map[model.ActionKey]*pendingOp
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{ops: make(map[model.ActionKey]*pendingOp)}
}

func (q *pendingQueue) putUpsert(rec *model.ActionRecord, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops[rec.Key()] = &pendingOp{record: rec.Copy(), since: now}
}

func (q *pendingQueue) putDelete(key model.ActionKey, now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ops[key] = &pendingOp{since: now}
}

func (q *pendingQueue) get(key model.ActionKey) (pendingOp, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	op, ok := q.ops[key]
	if !ok {
		return pendingOp{}, false
	}
	return *op, true
}

func (q *pendingQueue) bump(key model.ActionKey) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if op, ok := q.ops[key]; ok {
		op.attempts++
	}
}

func (q *pendingQueue) clear(key model.ActionKey) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.ops, key)
}

func (q *pendingQueue) keys() []model.ActionKey {
	q.mu.Lock()
	defer q.mu.Unlock()

	keys := make([]model.ActionKey, 0, len(q.ops))
	for k := range q.ops {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// PendingCount returns the number of store writes waiting for reconciliation
func (uc *ModerationUseCase) PendingCount() int {
	return uc.pending.len()
}

// ReconcilePending retries queued store writes and returns how many of them
// succeeded. External state is never touched here. Keys that still fail stay
// queued for the next call.
func (uc *ModerationUseCase) ReconcilePending(ctx context.Context) int {
	var done int
	for _, key := range uc.pending.keys() {
		ok, err := uc.reconcile(ctx, key)
		if err != nil {
			_ = errutil.Handle(ctx, err, "failed to reconcile action record")
			continue
		}
		if ok {
			done++
		}
	}
	return done
}

func (uc *ModerationUseCase) reconcile(ctx context.Context, key model.ActionKey) (bool, error) {
	unlock, err := uc.locks.Lock(ctx, key)
	if err != nil {
		return false, goerr.Wrap(err, "failed to acquire action lock", keyValues(key)...)
	}
	defer unlock()

	// A transition may have resolved the key while we waited for the lock
	op, ok := uc.pending.get(key)
	if !ok {
		return false, nil
	}

	if op.record != nil {
		err = uc.repo.Upsert(ctx, op.record)
	} else {
		err = uc.repo.Delete(ctx, key)
	}
	if err != nil {
		uc.pending.bump(key)
		return false, fail(ErrPersistenceFailed, err, "reconciliation write failed",
			append(keyValues(key), goerr.V("attempts", op.attempts+1), goerr.V("since", op.since))...)
	}

	uc.pending.clear(key)
	logging.From(ctx).Info("reconciled action record",
		append(keyAttrs(key), slog.Bool("deleted", op.record == nil))...)
	return true, nil
}
