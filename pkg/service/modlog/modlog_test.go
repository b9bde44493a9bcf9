package modlog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/repository/memory"
	"github.com/secmon-lab/moderato/pkg/service/modlog"
)

type messengerMock struct {
	mu        sync.Mutex
	posted    []*model.ModlogCase
	notified  []*model.ModlogCase
	postErr   error
	notifyErr error
}

func (m *messengerMock) PostModlog(ctx context.Context, channel string, c *model.ModlogCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posted = append(m.posted, c)
	return m.postErr
}

func (m *messengerMock) NotifySubject(ctx context.Context, guild *model.GuildSettings, c *model.ModlogCase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, c)
	return m.notifyErr
}

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, guild *model.GuildSettings) (*memory.Memory, *messengerMock, *modlog.Service) {
	t.Helper()

	reg, err := model.NewGuildRegistry(guild)
	gt.NoError(t, err).Required()

	repo := memory.New()
	msg := &messengerMock{}
	svc := modlog.New(repo.Modlog(), reg,
		modlog.WithMessenger(types.PlatformSlack, msg),
		modlog.WithClock(func() time.Time { return now }))
	return repo, msg, svc
}

func TestRecord(t *testing.T) {
	guild := &model.GuildSettings{ID: "G1", Platform: types.PlatformSlack, ModlogChannel: "C1"}
	repo, msg, svc := setup(t, guild)
	ctx := context.Background()

	d := 36 * time.Hour
	ref, err := svc.Record(ctx, &model.ModlogEntry{
		GuildID:   "G1",
		SubjectID: "U1",
		ActorID:   "M1",
		Kind:      types.ActionKindMute,
		Type:      types.ModlogTypeTempMute,
		Duration:  &d,
	})
	gt.NoError(t, err).Required()
	gt.Value(t, ref).NotEqual(types.CaseRef(""))

	c, err := repo.Modlog().Get(ctx, ref)
	gt.NoError(t, err).Required()
	gt.Value(t, c.Reason).Equal("No reason was given.")
	gt.String(t, c.Details).Contains("Duration: 1 day 12 hours")
	gt.Bool(t, c.CreatedAt.Equal(now)).True()

	gt.Array(t, msg.posted).Length(1)
	gt.Value(t, msg.posted[0].CaseRef).Equal(ref)
}

func TestRecord_PostFailureIsNotFatal(t *testing.T) {
	guild := &model.GuildSettings{ID: "G1", Platform: types.PlatformSlack, ModlogChannel: "C1"}
	_, msg, svc := setup(t, guild)
	msg.postErr = errors.New("channel_not_found")

	ref, err := svc.Record(context.Background(), &model.ModlogEntry{
		GuildID: "G1", SubjectID: "U1", Type: types.ModlogTypeMute,
	})
	gt.NoError(t, err).Required()
	gt.Value(t, ref).NotEqual(types.CaseRef(""))
}

func TestNotify(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		guild := &model.GuildSettings{ID: "G1", Platform: types.PlatformSlack, ModlogChannel: "C1"}
		_, msg, svc := setup(t, guild)
		gt.NoError(t, svc.Notify(context.Background(), "G1", "U1", types.ModlogTypeMute, ""))
		gt.Array(t, msg.notified).Length(0)
	})

	t.Run("sends the stored case", func(t *testing.T) {
		guild := &model.GuildSettings{ID: "G1", Platform: types.PlatformSlack, ModlogChannel: "C1", NotifySubjects: true}
		_, msg, svc := setup(t, guild)
		ctx := context.Background()

		ref, err := svc.Record(ctx, &model.ModlogEntry{GuildID: "G1", SubjectID: "U1", Type: types.ModlogTypeMute, Reason: "spam"})
		gt.NoError(t, err).Required()

		gt.NoError(t, svc.Notify(ctx, "G1", "U1", types.ModlogTypeMute, ref))
		gt.Array(t, msg.notified).Length(1)
		gt.Value(t, msg.notified[0].Reason).Equal("spam")
	})

	t.Run("without case ref", func(t *testing.T) {
		guild := &model.GuildSettings{ID: "G1", Platform: types.PlatformSlack, ModlogChannel: "C1", NotifySubjects: true}
		_, msg, svc := setup(t, guild)

		gt.NoError(t, svc.Notify(context.Background(), "G1", "U1", types.ModlogTypeUnmute, ""))
		gt.Array(t, msg.notified).Length(1)
		gt.Value(t, msg.notified[0].Type).Equal(types.ModlogTypeUnmute)
	})
}

func TestCloseOpen(t *testing.T) {
	guild := &model.GuildSettings{ID: "G1", Platform: types.PlatformSlack, ModlogChannel: "C1"}
	repo, _, svc := setup(t, guild)
	ctx := context.Background()

	mute, err := svc.Record(ctx, &model.ModlogEntry{GuildID: "G1", SubjectID: "U1", Type: types.ModlogTypeMute})
	gt.NoError(t, err).Required()
	_, err = svc.Record(ctx, &model.ModlogEntry{GuildID: "G1", SubjectID: "U1", Type: types.ModlogTypeTempMute})
	gt.NoError(t, err).Required()
	_, err = svc.Record(ctx, &model.ModlogEntry{GuildID: "G1", SubjectID: "U2", Type: types.ModlogTypeMute})
	gt.NoError(t, err).Required()

	unmute, err := svc.Record(ctx, &model.ModlogEntry{GuildID: "G1", SubjectID: "U1", Type: types.ModlogTypeUnmute})
	gt.NoError(t, err).Required()

	n, err := svc.CloseOpen(ctx, "G1", "U1", types.ApplyModlogTypes(types.ActionKindMute), unmute)
	gt.NoError(t, err).Required()
	gt.Number(t, n).Equal(2)

	c, err := repo.Modlog().Get(ctx, mute)
	gt.NoError(t, err).Required()
	gt.Bool(t, c.IsOpen()).False()
	gt.Value(t, c.ClosedBy).Equal(unmute)

	n, err = svc.CloseOpen(ctx, "G1", "U1", types.ApplyModlogTypes(types.ActionKindMute), unmute)
	gt.NoError(t, err).Required()
	gt.Number(t, n).Equal(0)

	open, err := repo.Modlog().ListOpen(ctx, "G1", "U2", types.ApplyModlogTypes(types.ActionKindMute))
	gt.NoError(t, err).Required()
	gt.Array(t, open).Length(1)
}
