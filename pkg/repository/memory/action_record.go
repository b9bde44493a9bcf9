package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

type actionRecordRepository struct {
	mu      sync.RWMutex
	records map[model.ActionKey]*model.ActionRecord
}

func newActionRecordRepository() *actionRecordRepository {
	return &actionRecordRepository{
		records: make(map[model.ActionKey]*model.ActionRecord),
	}
}

func (r *actionRecordRepository) Upsert(ctx context.Context, rec *model.ActionRecord) error {
	if err := rec.Validate(); err != nil {
		return goerr.Wrap(err, "invalid action record")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.Key()] = rec.Copy()
	return nil
}

func (r *actionRecordRepository) Delete(ctx context.Context, key model.ActionKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, key)
	return nil
}

func (r *actionRecordRepository) Get(ctx context.Context, key model.ActionKey) (*model.ActionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[key]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "action record not found", goerr.V("key", key.String()))
	}
	return rec.Copy(), nil
}

func (r *actionRecordRepository) ListDueBefore(ctx context.Context, t time.Time) ([]*model.ActionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.ActionRecord
	for _, rec := range r.records {
		if rec.IsDue(t) {
			result = append(result, rec.Copy())
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(*result[j].ExpiresAt)
	})
	return result, nil
}

func (r *actionRecordRepository) ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ActionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.ActionRecord
	for _, rec := range r.records {
		if rec.GuildID == guildID {
			result = append(result, rec.Copy())
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AppliedAt.Before(result[j].AppliedAt)
	})
	return result, nil
}
