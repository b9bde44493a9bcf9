package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

// ActionRecordRepository persists active timed actions, one per ActionKey
type ActionRecordRepository interface {
	// Upsert inserts the record or replaces the one with the same key
	Upsert(ctx context.Context, rec *model.ActionRecord) error

	// Delete removes the record. Deleting an absent key succeeds.
	Delete(ctx context.Context, key model.ActionKey) error

	// Get returns the record or an error wrapping ErrNotFound
	Get(ctx context.Context, key model.ActionKey) (*model.ActionRecord, error)

	// ListDueBefore returns records whose ExpiresAt is set and not after t,
	// ordered by ExpiresAt ascending. Permanent records are never returned.
	ListDueBefore(ctx context.Context, t time.Time) ([]*model.ActionRecord, error)

	// ListByGuild returns every active record of the guild ordered by AppliedAt
	ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ActionRecord, error)
}
