package worker_test

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
	"github.com/secmon-lab/moderato/pkg/service/restrict"
	"github.com/secmon-lab/moderato/pkg/service/worker"
	"github.com/secmon-lab/moderato/pkg/usecase"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	repo  *memory.Memory
	roles *restrict.RoleSet
	guild *model.GuildSettings
	clock *clock
	uc    *usecase.UseCases
}

func setup(t *testing.T) *env {
	t.Helper()

	guild := &model.GuildSettings{ID: "G1", Platform: types.PlatformSlack, ModlogChannel: "C1", MuteRole: "muted"}
	reg, err := model.NewGuildRegistry(guild)
	gt.NoError(t, err).Required()

	repo := memory.New()
	roles := restrict.NewRoleSet()
	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	audit := modlog.New(repo.Modlog(), reg, modlog.WithClock(clk.Now))
	uc := usecase.New(repo, reg, audit,
		usecase.WithRestrictor(types.ActionKindMute, roles),
		usecase.WithClock(clk.Now))

	return &env{repo: repo, roles: roles, guild: guild, clock: clk, uc: uc}
}

func (e *env) countCases(t *testing.T, caseType types.ModlogType) int {
	t.Helper()
	cases, err := e.repo.Modlog().ListByGuild(context.Background(), e.guild.ID)
	gt.NoError(t, err).Required()
	n := 0
	for _, c := range cases {
		if c.Type == caseType {
			n++
		}
	}
	return n
}

func TestSweepOnce_TimedExpiry(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	d := time.Second
	_, err := e.uc.Moderation.Apply(ctx, usecase.ApplyInput{
		Guild: "G1", Subject: "U1", Kind: types.ActionKindMute, Actor: "MOD", Duration: &d,
	})
	gt.NoError(t, err).Required()

	sweeper := worker.NewExpirySweeper(e.uc.Moderation)

	result, err := sweeper.SweepOnce(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, *result).Equal(worker.SweepResult{})

	e.clock.Advance(time.Second)
	result, err = sweeper.SweepOnce(ctx)
	gt.NoError(t, err).Required()
	gt.Value(t, *result).Equal(worker.SweepResult{Due: 1, Expired: 1})

	gt.Bool(t, e.roles.Has(e.guild, "U1")).False()
	gt.Number(t, e.countCases(t, types.ModlogTypeAutoUnmute)).Equal(1)

	records, err := e.repo.ActionRecord().ListByGuild(ctx, "G1")
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(0)
}

func TestStart_RecoversExpiredOnStartup(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	// state left behind by a previous process
	gt.NoError(t, e.roles.Apply(ctx, e.guild, "U1", "")).Required()
	gt.NoError(t, e.roles.Apply(ctx, e.guild, "U2", "")).Required()
	past := e.clock.Now().Add(-time.Hour)
	expired := past.Add(30 * time.Minute)
	future := e.clock.Now().Add(time.Hour)
	gt.NoError(t, e.repo.ActionRecord().Upsert(ctx, &model.ActionRecord{
		GuildID: "G1", SubjectID: "U1", Kind: types.ActionKindMute,
		ActorID: "MOD", AppliedAt: past, ExpiresAt: &expired, Reason: "old",
	})).Required()
	gt.NoError(t, e.repo.ActionRecord().Upsert(ctx, &model.ActionRecord{
		GuildID: "G1", SubjectID: "U2", Kind: types.ActionKindMute,
		ActorID: "MOD", AppliedAt: past, ExpiresAt: &future, Reason: "pending",
	})).Required()

	sweeper := worker.NewExpirySweeper(e.uc.Moderation, worker.WithInterval(time.Hour))
	gt.NoError(t, sweeper.Start(ctx)).Required()
	defer sweeper.Stop()

	// lifted before Start returned
	gt.Bool(t, e.roles.Has(e.guild, "U1")).False()
	gt.Bool(t, e.roles.Has(e.guild, "U2")).True()

	records, err := e.repo.ActionRecord().ListByGuild(ctx, "G1")
	gt.NoError(t, err).Required()
	gt.Array(t, records).Length(1).Required()
	gt.Value(t, records[0].SubjectID).Equal(types.SubjectID("U2"))

	gt.Error(t, sweeper.Start(ctx))
}

type expirerMock struct {
	mu      sync.Mutex
	due     []*model.ActionRecord
	failFor types.SubjectID
	expired []types.SubjectID
	listErr error
	// listFailures makes only the first n ListDue calls fail with listErr
	listFailures int
	listCalls    int
}

func (m *expirerMock) ListDue(ctx context.Context) ([]*model.ActionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil && (m.listFailures == 0 || m.listCalls <= m.listFailures) {
		return nil, m.listErr
	}
	return m.due, nil
}

func (m *expirerMock) Expire(ctx context.Context, rec *model.ActionRecord) (*usecase.ExpireResult, error) {
	if rec.SubjectID == m.failFor {
		return nil, errors.New("platform unavailable")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expired = append(m.expired, rec.SubjectID)
	return &usecase.ExpireResult{Expired: true, Record: rec}, nil
}

func (m *expirerMock) ReconcilePending(ctx context.Context) int {
	return 2
}

func TestSweepOnce_ContinuesPastFailures(t *testing.T) {
	now := time.Now()
	var due []*model.ActionRecord
	for _, s := range []types.SubjectID{"U1", "U2", "U3", "U4"} {
		due = append(due, &model.ActionRecord{GuildID: "G1", SubjectID: s, Kind: types.ActionKindMute, AppliedAt: now.Add(-time.Hour), ExpiresAt: &now})
	}
	mock := &expirerMock{due: due, failFor: "U2"}

	sweeper := worker.NewExpirySweeper(mock, worker.WithConcurrency(2))
	result, err := sweeper.SweepOnce(context.Background())
	gt.NoError(t, err).Required()
	gt.Value(t, *result).Equal(worker.SweepResult{Due: 4, Expired: 3, Failed: 1, Reconciled: 2})
	gt.Array(t, mock.expired).Length(3)
}

func TestSweepOnce_ListFailure(t *testing.T) {
	mock := &expirerMock{listErr: errors.New("store down")}
	sweeper := worker.NewExpirySweeper(mock)

	result, err := sweeper.SweepOnce(context.Background())
	gt.Value(t, err).NotNil()
	gt.Number(t, result.Reconciled).Equal(2)
}

func TestStop_WithoutStart(t *testing.T) {
	sweeper := worker.NewExpirySweeper(&expirerMock{})
	sweeper.Stop()
	sweeper.Stop()
}

func TestStart_LoopSweeps(t *testing.T) {
	mock := &expirerMock{}
	sweeper := worker.NewExpirySweeper(mock, worker.WithInterval(10*time.Millisecond))
	gt.NoError(t, sweeper.Start(context.Background())).Required()

	now := time.Now()
	mock.mu.Lock()
	mock.due = []*model.ActionRecord{{GuildID: "G1", SubjectID: "U9", Kind: types.ActionKindMute, AppliedAt: now.Add(-time.Minute), ExpiresAt: &now}}
	mock.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mock.mu.Lock()
		n := len(mock.expired)
		mock.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	sweeper.Stop()

	mock.mu.Lock()
	defer mock.mu.Unlock()
	gt.Bool(t, len(mock.expired) > 0).True()
}

func TestStart_FailsWhenStartupSweepCannotList(t *testing.T) {
	mock := &expirerMock{listErr: errors.New("store down")}
	sweeper := worker.NewExpirySweeper(mock,
		worker.WithInterval(10*time.Millisecond),
		worker.WithStartupRetry(3, time.Millisecond))

	gt.Value(t, sweeper.Start(context.Background())).NotNil()

	mock.mu.Lock()
	gt.Number(t, mock.listCalls).Equal(3)
	mock.mu.Unlock()

	// no loop is running, so Stop returns at once and no further sweep happens
	sweeper.Stop()
	time.Sleep(30 * time.Millisecond)
	mock.mu.Lock()
	defer mock.mu.Unlock()
	gt.Number(t, mock.listCalls).Equal(3)
}

func TestStart_RetriesStartupSweep(t *testing.T) {
	now := time.Now()
	mock := &expirerMock{
		listErr:      errors.New("store warming up"),
		listFailures: 1,
		due:          []*model.ActionRecord{{GuildID: "G1", SubjectID: "U1", Kind: types.ActionKindMute, AppliedAt: now.Add(-time.Minute), ExpiresAt: &now}},
	}
	sweeper := worker.NewExpirySweeper(mock,
		worker.WithInterval(time.Hour),
		worker.WithStartupRetry(3, time.Millisecond))

	gt.NoError(t, sweeper.Start(context.Background())).Required()
	defer sweeper.Stop()

	mock.mu.Lock()
	defer mock.mu.Unlock()
	gt.Number(t, mock.listCalls).Equal(2)
	gt.Array(t, mock.expired).Length(1)
}
