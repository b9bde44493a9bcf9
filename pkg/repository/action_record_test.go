package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

// uniqueGuild keeps shared backends (firestore, postgres) free of cross-test interference
func uniqueGuild() types.GuildID {
	return types.GuildID("G" + uuid.NewString())
}

func newActionRecord(guild types.GuildID, subject types.SubjectID, applied time.Time, ttl *time.Duration) *model.ActionRecord {
	rec := &model.ActionRecord{
		GuildID:   guild,
		SubjectID: subject,
		Kind:      types.ActionKindMute,
		CaseRef:   types.NewCaseRef(),
		ActorID:   "M1",
		AppliedAt: applied,
		Reason:    "spamming links",
	}
	if ttl != nil {
		at := applied.Add(*ttl)
		rec.ExpiresAt = &at
	}
	return rec
}

func ptr[T any](v T) *T {
	return &v
}

func runActionRecordRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	// millisecond precision is the coarsest any backend stores
	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Upsert and Get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := newActionRecord(uniqueGuild(), "U1", base, ptr(time.Hour))

		gt.NoError(t, repo.ActionRecord().Upsert(ctx, rec)).Required()

		got, err := repo.ActionRecord().Get(ctx, rec.Key())
		gt.NoError(t, err).Required()
		gt.Value(t, got.GuildID).Equal(rec.GuildID)
		gt.Value(t, got.SubjectID).Equal(rec.SubjectID)
		gt.Value(t, got.Kind).Equal(rec.Kind)
		gt.Value(t, got.CaseRef).Equal(rec.CaseRef)
		gt.Value(t, got.ActorID).Equal(rec.ActorID)
		gt.Value(t, got.Reason).Equal(rec.Reason)
		gt.Bool(t, got.AppliedAt.Equal(rec.AppliedAt)).True()
		gt.Value(t, got.ExpiresAt).NotNil()
		gt.Bool(t, got.ExpiresAt.Equal(*rec.ExpiresAt)).True()
	})

	t.Run("Get missing returns ErrNotFound", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.ActionRecord().Get(ctx, model.ActionKey{GuildID: uniqueGuild(), SubjectID: "U1", Kind: types.ActionKindMute})
		gt.Error(t, err).Is(interfaces.ErrNotFound)
	})

	t.Run("permanent record keeps nil ExpiresAt", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := newActionRecord(uniqueGuild(), "U1", base, nil)

		gt.NoError(t, repo.ActionRecord().Upsert(ctx, rec)).Required()
		got, err := repo.ActionRecord().Get(ctx, rec.Key())
		gt.NoError(t, err).Required()
		gt.Value(t, got.ExpiresAt).Nil()
	})

	t.Run("Upsert overwrites the same key", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		guild := uniqueGuild()

		first := newActionRecord(guild, "U1", base, ptr(time.Hour))
		gt.NoError(t, repo.ActionRecord().Upsert(ctx, first)).Required()

		second := newActionRecord(guild, "U1", base.Add(time.Minute), nil)
		second.Reason = "reapplied"
		gt.NoError(t, repo.ActionRecord().Upsert(ctx, second)).Required()

		list, err := repo.ActionRecord().ListByGuild(ctx, guild)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(1)
		gt.Value(t, list[0].Reason).Equal("reapplied")
		gt.Value(t, list[0].ExpiresAt).Nil()
		gt.Value(t, list[0].CaseRef).Equal(second.CaseRef)
	})

	t.Run("Upsert rejects invalid records", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		rec := newActionRecord(uniqueGuild(), "U1", base, ptr(time.Duration(0)))
		gt.Error(t, repo.ActionRecord().Upsert(ctx, rec))

		rec = newActionRecord(uniqueGuild(), "", base, nil)
		gt.Error(t, repo.ActionRecord().Upsert(ctx, rec))
	})

	t.Run("Delete is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		rec := newActionRecord(uniqueGuild(), "U1", base, nil)

		gt.NoError(t, repo.ActionRecord().Delete(ctx, rec.Key()))
		gt.NoError(t, repo.ActionRecord().Upsert(ctx, rec)).Required()
		gt.NoError(t, repo.ActionRecord().Delete(ctx, rec.Key()))
		gt.NoError(t, repo.ActionRecord().Delete(ctx, rec.Key()))

		_, err := repo.ActionRecord().Get(ctx, rec.Key())
		gt.Error(t, err).Is(interfaces.ErrNotFound)
	})

	t.Run("ListDueBefore returns due timed records in expiry order", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		guild := uniqueGuild()

		// applied far in the past so the due window does not catch other tests' records
		past := base.Add(-100 * 24 * time.Hour)
		late := newActionRecord(guild, "late", past, ptr(3*time.Second))
		early := newActionRecord(guild, "early", past, ptr(time.Second))
		exact := newActionRecord(guild, "exact", past, ptr(5*time.Second))
		future := newActionRecord(guild, "future", past, ptr(time.Hour))
		permanent := newActionRecord(guild, "permanent", past, nil)

		for _, rec := range []*model.ActionRecord{late, early, exact, future, permanent} {
			gt.NoError(t, repo.ActionRecord().Upsert(ctx, rec)).Required()
		}

		due, err := repo.ActionRecord().ListDueBefore(ctx, *exact.ExpiresAt)
		gt.NoError(t, err).Required()

		var mine []*model.ActionRecord
		for _, rec := range due {
			if rec.GuildID == guild {
				mine = append(mine, rec)
			}
		}
		gt.Array(t, mine).Length(3)
		gt.Value(t, mine[0].SubjectID).Equal(types.SubjectID("early"))
		gt.Value(t, mine[1].SubjectID).Equal(types.SubjectID("late"))
		gt.Value(t, mine[2].SubjectID).Equal(types.SubjectID("exact"))
	})

	t.Run("ListByGuild scopes by guild", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		g1, g2 := uniqueGuild(), uniqueGuild()

		gt.NoError(t, repo.ActionRecord().Upsert(ctx, newActionRecord(g1, "U1", base, nil))).Required()
		gt.NoError(t, repo.ActionRecord().Upsert(ctx, newActionRecord(g1, "U2", base.Add(time.Second), ptr(time.Hour)))).Required()
		gt.NoError(t, repo.ActionRecord().Upsert(ctx, newActionRecord(g2, "U1", base, nil))).Required()

		list, err := repo.ActionRecord().ListByGuild(ctx, g1)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(2)
		gt.Value(t, list[0].SubjectID).Equal(types.SubjectID("U1"))
		gt.Value(t, list[1].SubjectID).Equal(types.SubjectID("U2"))

		empty, err := repo.ActionRecord().ListByGuild(ctx, uniqueGuild())
		gt.NoError(t, err).Required()
		gt.Array(t, empty).Length(0)
	})

	t.Run("concurrent upserts keep one record per key", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		guild := uniqueGuild()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				rec := newActionRecord(guild, "U1", base.Add(time.Duration(i)*time.Millisecond), nil)
				if err := repo.ActionRecord().Upsert(ctx, rec); err != nil {
					t.Errorf("upsert: %v", err)
				}
			}(i)
		}
		wg.Wait()

		list, err := repo.ActionRecord().ListByGuild(ctx, guild)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(1)
	})
}
