package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

func newModlogCase(guild types.GuildID, subject types.SubjectID, caseType types.ModlogType, at time.Time) *model.ModlogCase {
	return &model.ModlogCase{
		CaseRef:   types.NewCaseRef(),
		GuildID:   guild,
		SubjectID: subject,
		ActorID:   "M1",
		Type:      caseType,
		Reason:    model.DefaultReason,
		Details:   "duration: 1 day",
		CreatedAt: at,
	}
}

func runModlogRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	base := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("Put and Get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		c := newModlogCase(uniqueGuild(), "U1", types.ModlogTypeTempMute, base)

		gt.NoError(t, repo.Modlog().Put(ctx, c)).Required()

		got, err := repo.Modlog().Get(ctx, c.CaseRef)
		gt.NoError(t, err).Required()
		gt.Value(t, got.Type).Equal(types.ModlogTypeTempMute)
		gt.Value(t, got.Details).Equal("duration: 1 day")
		gt.Bool(t, got.CreatedAt.Equal(base)).True()
		gt.Bool(t, got.IsOpen()).True()

		_, err = repo.Modlog().Get(ctx, types.NewCaseRef())
		gt.Error(t, err).Is(interfaces.ErrNotFound)
	})

	t.Run("Put requires a case ref", func(t *testing.T) {
		repo := newRepo(t)
		c := newModlogCase(uniqueGuild(), "U1", types.ModlogTypeMute, base)
		c.CaseRef = ""
		gt.Error(t, repo.Modlog().Put(context.Background(), c))
	})

	t.Run("ListOpen filters by subject, type and open state", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		guild := uniqueGuild()

		mute := newModlogCase(guild, "U1", types.ModlogTypeMute, base)
		temp := newModlogCase(guild, "U1", types.ModlogTypeTempMute, base.Add(time.Second))
		closed := newModlogCase(guild, "U1", types.ModlogTypeMute, base.Add(2*time.Second))
		closed.Close(types.NewCaseRef(), base.Add(3*time.Second))
		unmute := newModlogCase(guild, "U1", types.ModlogTypeUnmute, base.Add(4*time.Second))
		other := newModlogCase(guild, "U2", types.ModlogTypeMute, base)

		for _, c := range []*model.ModlogCase{mute, temp, closed, unmute, other} {
			gt.NoError(t, repo.Modlog().Put(ctx, c)).Required()
		}

		open, err := repo.Modlog().ListOpen(ctx, guild, "U1", types.ApplyModlogTypes(types.ActionKindMute))
		gt.NoError(t, err).Required()
		gt.Array(t, open).Length(2)
		gt.Value(t, open[0].CaseRef).Equal(mute.CaseRef)
		gt.Value(t, open[1].CaseRef).Equal(temp.CaseRef)

		none, err := repo.Modlog().ListOpen(ctx, guild, "U1", nil)
		gt.NoError(t, err).Required()
		gt.Array(t, none).Length(0)
	})

	t.Run("closing a case through Put", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		guild := uniqueGuild()
		c := newModlogCase(guild, "U1", types.ModlogTypeMute, base)
		gt.NoError(t, repo.Modlog().Put(ctx, c)).Required()

		closer := types.NewCaseRef()
		c.Close(closer, base.Add(time.Minute))
		gt.NoError(t, repo.Modlog().Put(ctx, c)).Required()

		got, err := repo.Modlog().Get(ctx, c.CaseRef)
		gt.NoError(t, err).Required()
		gt.Bool(t, got.IsOpen()).False()
		gt.Value(t, got.ClosedBy).Equal(closer)

		open, err := repo.Modlog().ListOpen(ctx, guild, "U1", []types.ModlogType{types.ModlogTypeMute})
		gt.NoError(t, err).Required()
		gt.Array(t, open).Length(0)
	})

	t.Run("ListByGuild orders by creation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()
		guild := uniqueGuild()

		second := newModlogCase(guild, "U1", types.ModlogTypeUnmute, base.Add(time.Second))
		first := newModlogCase(guild, "U1", types.ModlogTypeMute, base)
		gt.NoError(t, repo.Modlog().Put(ctx, second)).Required()
		gt.NoError(t, repo.Modlog().Put(ctx, first)).Required()
		gt.NoError(t, repo.Modlog().Put(ctx, newModlogCase(uniqueGuild(), "U1", types.ModlogTypeMute, base))).Required()

		list, err := repo.Modlog().ListByGuild(ctx, guild)
		gt.NoError(t, err).Required()
		gt.Array(t, list).Length(2)
		gt.Value(t, list[0].CaseRef).Equal(first.CaseRef)
		gt.Value(t, list[1].CaseRef).Equal(second.CaseRef)
	})
}
