package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/repository/memory"
	"github.com/secmon-lab/moderato/pkg/service/modlog"
	"github.com/secmon-lab/moderato/pkg/usecase"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type restrictorMock struct {
	mu          sync.Mutex
	restricted  map[types.SubjectID]bool
	applyCalls  int
	removeCalls int
	applyErr    error
	removeErr   error
	// block makes calls wait for ctx cancellation
	block bool
}

func newRestrictorMock() *restrictorMock {
	return &restrictorMock{restricted: make(map[types.SubjectID]bool)}
}

func (m *restrictorMock) Apply(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.applyErr != nil {
		return m.applyErr
	}
	if m.restricted[subject] {
		return goerr.Wrap(interfaces.ErrAlreadyInState, "already muted")
	}
	m.restricted[subject] = true
	return nil
}

func (m *restrictorMock) Remove(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeCalls++
	if m.removeErr != nil {
		return m.removeErr
	}
	if !m.restricted[subject] {
		return goerr.Wrap(interfaces.ErrAlreadyInState, "not muted")
	}
	delete(m.restricted, subject)
	return nil
}

func (m *restrictorMock) calls() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyCalls, m.removeCalls
}

func (m *restrictorMock) isRestricted(subject types.SubjectID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restricted[subject]
}

type resolverMock struct {
	known map[types.SubjectID]bool
}

func (m *resolverMock) ResolveSubject(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID) (bool, error) {
	return m.known[subject], nil
}

type failingAudit struct {
	interfaces.AuditLog
}

func (a *failingAudit) Record(ctx context.Context, entry *model.ModlogEntry) (types.CaseRef, error) {
	return "", errors.New("modlog store is down")
}

// flakyRepo fails record writes while fail is set
type flakyRepo struct {
	*memory.Memory
	actions *flakyActions
}

type flakyActions struct {
	interfaces.ActionRecordRepository
	fail atomic.Bool
}

func (r *flakyRepo) ActionRecord() interfaces.ActionRecordRepository {
	return r.actions
}

func (a *flakyActions) Upsert(ctx context.Context, rec *model.ActionRecord) error {
	if a.fail.Load() {
		return errors.New("write failed")
	}
	return a.ActionRecordRepository.Upsert(ctx, rec)
}

func (a *flakyActions) Delete(ctx context.Context, key model.ActionKey) error {
	if a.fail.Load() {
		return errors.New("delete failed")
	}
	return a.ActionRecordRepository.Delete(ctx, key)
}

type testEnv struct {
	uc         *usecase.UseCases
	repo       *flakyRepo
	restrictor *restrictorMock
	clock      *fakeClock
	guild      *model.GuildSettings
}

const (
	testGuild   types.GuildID   = "G1"
	testSubject types.SubjectID = "U1"
	testActor   types.ActorID   = "MOD1"
)

type envOption func(*envConfig)

type envConfig struct {
	audit   func(repo *memory.Memory, reg *model.GuildRegistry, clock *fakeClock) interfaces.AuditLog
	options []usecase.Option
	guild   *model.GuildSettings
}

func withAudit(f func(repo *memory.Memory, reg *model.GuildRegistry, clock *fakeClock) interfaces.AuditLog) envOption {
	return func(c *envConfig) { c.audit = f }
}

func withOptions(opts ...usecase.Option) envOption {
	return func(c *envConfig) { c.options = append(c.options, opts...) }
}

func withGuild(g *model.GuildSettings) envOption {
	return func(c *envConfig) { c.guild = g }
}

func newModlog(repo *memory.Memory, reg *model.GuildRegistry, clock *fakeClock) interfaces.AuditLog {
	return modlog.New(repo.Modlog(), reg, modlog.WithClock(clock.Now))
}

func setupEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	cfg := &envConfig{
		audit: newModlog,
		guild: &model.GuildSettings{ID: testGuild, Platform: types.PlatformSlack, ModlogChannel: "C-MODLOG", MuteRole: "muted"},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reg, err := model.NewGuildRegistry(cfg.guild)
	gt.NoError(t, err).Required()

	mem := memory.New()
	repo := &flakyRepo{Memory: mem, actions: &flakyActions{ActionRecordRepository: mem.ActionRecord()}}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	restrictor := newRestrictorMock()

	options := append([]usecase.Option{
		usecase.WithRestrictor(types.ActionKindMute, restrictor),
		usecase.WithClock(clock.Now),
	}, cfg.options...)

	uc := usecase.New(repo, reg, cfg.audit(mem, reg, clock), options...)

	return &testEnv{uc: uc, repo: repo, restrictor: restrictor, clock: clock, guild: cfg.guild}
}

func (e *testEnv) key() model.ActionKey {
	return model.ActionKey{GuildID: testGuild, SubjectID: testSubject, Kind: types.ActionKindMute}
}

func (e *testEnv) cases(t *testing.T) []*model.ModlogCase {
	t.Helper()
	cases, err := e.repo.Modlog().ListByGuild(context.Background(), testGuild)
	gt.NoError(t, err).Required()
	return cases
}

func (e *testEnv) countCases(t *testing.T, caseType types.ModlogType) int {
	t.Helper()
	n := 0
	for _, c := range e.cases(t) {
		if c.Type == caseType {
			n++
		}
	}
	return n
}

func ptr[T any](v T) *T {
	return &v
}
