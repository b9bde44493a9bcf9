// Package rediscache decorates a Repository with a Redis read-through cache
// for ActionRecord lookups. The wrapped repository stays authoritative: every
// mutation invalidates the cached entry before and after writing, and listing
// queries always reach the store. A mutation fails only when the store write
// or the invalidation before it fails.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/redis/go-redis/v9"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

const (
	defaultTTL    = 5 * time.Minute
	absentMarker  = "-"
	defaultPrefix = "moderato"
)

type Cache struct {
	interfaces.Repository
	actionRecord *actionRecordCache
}

var _ interfaces.Repository = &Cache{}

type Option func(*actionRecordCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *actionRecordCache) {
		c.ttl = ttl
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(c *actionRecordCache) {
		c.prefix = prefix
	}
}

func New(repo interfaces.Repository, client redis.UniversalClient, opts ...Option) *Cache {
	ar := &actionRecordCache{
		store:  repo.ActionRecord(),
		client: client,
		ttl:    defaultTTL,
		prefix: defaultPrefix,
	}
	for _, opt := range opts {
		opt(ar)
	}

	return &Cache{
		Repository:   repo,
		actionRecord: ar,
	}
}

func (c *Cache) ActionRecord() interfaces.ActionRecordRepository {
	return c.actionRecord
}

// Close closes the wrapped repository. The redis client is owned by the caller.
func (c *Cache) Close() error {
	return c.Repository.Close()
}

type actionRecordCache struct {
	store  interfaces.ActionRecordRepository
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

var _ interfaces.ActionRecordRepository = &actionRecordCache{}

type cachedRecord struct {
	GuildID   string     `json:"guild_id"`
	SubjectID string     `json:"subject_id"`
	Kind      string     `json:"kind"`
	CaseRef   string     `json:"case_ref"`
	ActorID   string     `json:"actor_id"`
	AppliedAt time.Time  `json:"applied_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
}

func (c *actionRecordCache) cacheKey(key model.ActionKey) string {
	return c.prefix + ":action:" + key.String()
}

func (c *actionRecordCache) invalidate(ctx context.Context, key model.ActionKey) error {
	if err := c.client.Del(ctx, c.cacheKey(key)).Err(); err != nil {
		return goerr.Wrap(err, "failed to invalidate cached action record", goerr.V("key", key.String()))
	}
	return nil
}

// invalidateAfterWrite drops an entry cached while the store write was in
// flight. The write has already committed, so a failure only leaves an entry
// that lives until its TTL.
func (c *actionRecordCache) invalidateAfterWrite(ctx context.Context, key model.ActionKey) {
	if err := c.invalidate(ctx, key); err != nil {
		logging.From(ctx).Warn("failed to invalidate cached action record after write",
			slog.String("key", key.String()), slog.Duration("ttl", c.ttl), slog.Any("error", err))
	}
}

func (c *actionRecordCache) Upsert(ctx context.Context, rec *model.ActionRecord) error {
	key := rec.Key()
	if err := c.invalidate(ctx, key); err != nil {
		return err
	}
	if err := c.store.Upsert(ctx, rec); err != nil {
		return err
	}
	c.invalidateAfterWrite(ctx, key)
	return nil
}

func (c *actionRecordCache) Delete(ctx context.Context, key model.ActionKey) error {
	if err := c.invalidate(ctx, key); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, key); err != nil {
		return err
	}
	c.invalidateAfterWrite(ctx, key)
	return nil
}

func (c *actionRecordCache) Get(ctx context.Context, key model.ActionKey) (*model.ActionRecord, error) {
	logger := logging.From(ctx)

	raw, err := c.client.Get(ctx, c.cacheKey(key)).Result()
	switch {
	case err == nil:
		if raw == absentMarker {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "action record not found", goerr.V("key", key.String()))
		}
		var cached cachedRecord
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return fromCached(&cached), nil
		}
		logger.Warn("discarding undecodable cached action record", slog.String("key", key.String()))

	case errors.Is(err, redis.Nil):
		// miss

	default:
		logger.Warn("redis get failed, reading through", slog.String("key", key.String()), slog.Any("error", err))
		return c.store.Get(ctx, key)
	}

	rec, err := c.store.Get(ctx, key)
	if errors.Is(err, interfaces.ErrNotFound) {
		c.set(ctx, key, absentMarker)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(toCached(rec)); err == nil {
		c.set(ctx, key, string(data))
	}
	return rec, nil
}

func (c *actionRecordCache) set(ctx context.Context, key model.ActionKey, value string) {
	if err := c.client.Set(ctx, c.cacheKey(key), value, c.ttl).Err(); err != nil {
		logging.From(ctx).Warn("failed to cache action record", slog.String("key", key.String()), slog.Any("error", err))
	}
}

func (c *actionRecordCache) ListDueBefore(ctx context.Context, t time.Time) ([]*model.ActionRecord, error) {
	return c.store.ListDueBefore(ctx, t)
}

func (c *actionRecordCache) ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ActionRecord, error) {
	return c.store.ListByGuild(ctx, guildID)
}

func toCached(rec *model.ActionRecord) *cachedRecord {
	return &cachedRecord{
		GuildID:   string(rec.GuildID),
		SubjectID: string(rec.SubjectID),
		Kind:      string(rec.Kind),
		CaseRef:   string(rec.CaseRef),
		ActorID:   string(rec.ActorID),
		AppliedAt: rec.AppliedAt,
		ExpiresAt: rec.ExpiresAt,
		Reason:    rec.Reason,
	}
}

func fromCached(c *cachedRecord) *model.ActionRecord {
	return &model.ActionRecord{
		GuildID:   types.GuildID(c.GuildID),
		SubjectID: types.SubjectID(c.SubjectID),
		Kind:      types.ActionKind(c.Kind),
		CaseRef:   types.CaseRef(c.CaseRef),
		ActorID:   types.ActorID(c.ActorID),
		AppliedAt: c.AppliedAt,
		ExpiresAt: c.ExpiresAt,
		Reason:    c.Reason,
	}
}
