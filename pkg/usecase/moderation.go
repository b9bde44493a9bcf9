package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/utils/errutil"
	"github.com/secmon-lab/moderato/pkg/utils/keylock"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

// ExpireReason is the reason recorded on automatic lifts
const ExpireReason = "Timed action expired"

// ModerationUseCase runs the Apply, ManualLift and Expire transitions. Every
// transition holds the per key lock for its whole duration, external calls
// included.
type ModerationUseCase struct {
	repo        interfaces.ActionRecordRepository
	guilds      *model.GuildRegistry
	audit       interfaces.AuditLog
	restrictors map[types.ActionKind]interfaces.Restrictor
	resolvers   map[types.Platform]interfaces.SubjectResolver
	now         func() time.Time
	timeout     time.Duration

	locks   *keylock.Locker[model.ActionKey]
	pending *pendingQueue
}

func newModerationUseCase(uc *UseCases) *ModerationUseCase {
	return &ModerationUseCase{
		repo:        uc.repo.ActionRecord(),
		guilds:      uc.guilds,
		audit:       uc.audit,
		restrictors: uc.restrictors,
		resolvers:   uc.resolvers,
		now:         uc.now,
		timeout:     uc.externalTimeout,
		locks:       keylock.New[model.ActionKey](),
		pending:     newPendingQueue(),
	}
}

type ApplyInput struct {
	Guild    types.GuildID
	Subject  types.SubjectID
	Kind     types.ActionKind
	Actor    types.ActorID
	Duration *time.Duration
	Reason   string
	// Reapply overwrites an active record instead of failing with ErrAlreadyActive
	Reapply bool
}

type ApplyResult struct {
	Record    *model.ActionRecord
	CaseRef   types.CaseRef
	Reapplied bool
	Drift     bool
}

type LiftInput struct {
	Guild   types.GuildID
	Subject types.SubjectID
	Kind    types.ActionKind
	Actor   types.ActorID
	Reason  string
}

type LiftResult struct {
	Record      *model.ActionRecord
	CaseRef     types.CaseRef
	ClosedCases int
	Drift       bool
}

type ExpireResult struct {
	// Expired is false when the record was already gone or re-applied
	Expired     bool
	Record      *model.ActionRecord
	CaseRef     types.CaseRef
	ClosedCases int
	Drift       bool
}

// Apply restricts the subject and persists the active record
func (uc *ModerationUseCase) Apply(ctx context.Context, in ApplyInput) (*ApplyResult, error) {
	key := model.ActionKey{GuildID: in.Guild, SubjectID: in.Subject, Kind: in.Kind}
	vals := keyValues(key)
	vals = append(vals, goerr.V(ActorIDKey, in.Actor))

	guild, restrictor, err := uc.prepare(ctx, key, true)
	if err != nil {
		return nil, err
	}
	if in.Duration != nil && *in.Duration <= 0 {
		return nil, goerr.Wrap(ErrInvalidDuration, "duration must be positive", append(vals, goerr.V("duration", *in.Duration))...)
	}

	unlock, err := uc.locks.Lock(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to acquire action lock", vals...)
	}
	defer unlock()

	active, _, err := uc.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if active && !in.Reapply {
		return nil, goerr.Wrap(ErrAlreadyActive, "action is already active", vals...)
	}

	reason := model.ReasonOrDefault(in.Reason)
	result := &ApplyResult{Reapplied: active}

	if err := uc.external(ctx, func(ctx context.Context) error {
		return restrictor.Apply(ctx, guild, in.Subject, reason)
	}); err != nil {
		if !errors.Is(err, interfaces.ErrAlreadyInState) {
			return nil, fail(ErrExternalMutationFailed, err, "failed to apply restriction", vals...)
		}
		result.Drift = true
		logging.From(ctx).Info("subject already restricted, continuing", keyAttrs(key)...)
	}

	now := uc.now()
	caseType := types.ModlogTypeMute
	if in.Duration != nil {
		caseType = types.ModlogTypeTempMute
	}
	result.CaseRef = uc.record(ctx, &model.ModlogEntry{
		GuildID:   in.Guild,
		SubjectID: in.Subject,
		ActorID:   in.Actor,
		Kind:      in.Kind,
		Type:      caseType,
		Reason:    reason,
		Duration:  in.Duration,
		CreatedAt: now,
	})
	uc.notify(ctx, key, caseType, result.CaseRef)

	rec := &model.ActionRecord{
		GuildID:   in.Guild,
		SubjectID: in.Subject,
		Kind:      in.Kind,
		CaseRef:   result.CaseRef,
		ActorID:   in.Actor,
		AppliedAt: now,
		Reason:    reason,
	}
	if in.Duration != nil {
		expiresAt := now.Add(*in.Duration)
		rec.ExpiresAt = &expiresAt
	}
	result.Record = rec

	if err := uc.repo.Upsert(ctx, rec); err != nil {
		uc.pending.putUpsert(rec, now)
		return result, fail(ErrPersistenceFailed, err, "failed to save action record, queued for reconciliation", vals...)
	}
	uc.pending.clear(key)

	logging.From(ctx).Info("action applied",
		append(keyAttrs(key),
			slog.String("case_ref", string(result.CaseRef)),
			slog.Bool("permanent", rec.IsPermanent()),
			slog.Bool("reapplied", result.Reapplied))...)

	return result, nil
}

// ManualLift removes an active restriction on a moderator's request
func (uc *ModerationUseCase) ManualLift(ctx context.Context, in LiftInput) (*LiftResult, error) {
	key := model.ActionKey{GuildID: in.Guild, SubjectID: in.Subject, Kind: in.Kind}
	vals := keyValues(key)
	vals = append(vals, goerr.V(ActorIDKey, in.Actor))

	guild, restrictor, err := uc.prepare(ctx, key, false)
	if err != nil {
		return nil, err
	}

	unlock, err := uc.locks.Lock(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to acquire action lock", vals...)
	}
	defer unlock()

	active, rec, err := uc.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, goerr.Wrap(ErrNotActive, "action is not active", vals...)
	}

	reason := model.ReasonOrDefault(in.Reason)
	result, err := uc.lift(ctx, guild, restrictor, rec, in.Actor, types.ModlogTypeUnmute, reason)
	if err != nil {
		return result, goerr.Wrap(err, "failed to lift action", vals...)
	}

	logging.From(ctx).Info("action lifted", append(keyAttrs(key), slog.String("actor_id", string(in.Actor)))...)
	return result, nil
}

// Expire lifts a due record. It is called by the sweeper only. The record is
// re-read under the key lock, pending reconciliation writes included, so a
// record lifted or re-applied since it was listed is left alone.
func (uc *ModerationUseCase) Expire(ctx context.Context, rec *model.ActionRecord) (*ExpireResult, error) {
	key := rec.Key()
	vals := keyValues(key)

	unlock, err := uc.locks.Lock(ctx, key)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to acquire action lock", vals...)
	}
	defer unlock()

	active, current, err := uc.lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if !active {
		return &ExpireResult{}, nil
	}
	if !current.IsDue(uc.now()) {
		return &ExpireResult{Record: current}, nil
	}

	guild, restrictor, err := uc.prepare(ctx, key, false)
	if err != nil {
		return nil, err
	}

	lifted, err := uc.lift(ctx, guild, restrictor, current, types.ActorSystem, types.ModlogTypeAutoUnmute, ExpireReason)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to expire action", vals...)
	}

	logging.From(ctx).Info("action expired", keyAttrs(key)...)
	return &ExpireResult{
		Expired:     true,
		Record:      lifted.Record,
		CaseRef:     lifted.CaseRef,
		ClosedCases: lifted.ClosedCases,
		Drift:       lifted.Drift,
	}, nil
}

// ListActive returns the persisted active records of the guild
func (uc *ModerationUseCase) ListActive(ctx context.Context, guildID types.GuildID) ([]*model.ActionRecord, error) {
	records, err := uc.repo.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, fail(ErrPersistenceFailed, err, "failed to list action records", goerr.V(GuildIDKey, guildID))
	}
	return records, nil
}

// ListDue returns persisted records due at now
func (uc *ModerationUseCase) ListDue(ctx context.Context) ([]*model.ActionRecord, error) {
	records, err := uc.repo.ListDueBefore(ctx, uc.now())
	if err != nil {
		return nil, fail(ErrPersistenceFailed, err, "failed to list due action records")
	}
	return records, nil
}

// lift runs the remove side of a transition: external remove, audit, notify,
// close out of open apply cases, delete.
func (uc *ModerationUseCase) lift(ctx context.Context, guild *model.GuildSettings, restrictor interfaces.Restrictor, rec *model.ActionRecord, actor types.ActorID, caseType types.ModlogType, reason string) (*LiftResult, error) {
	key := rec.Key()
	result := &LiftResult{Record: rec}

	if err := uc.external(ctx, func(ctx context.Context) error {
		return restrictor.Remove(ctx, guild, rec.SubjectID, reason)
	}); err != nil {
		if !errors.Is(err, interfaces.ErrAlreadyInState) {
			return nil, fail(ErrExternalMutationFailed, err, "failed to remove restriction")
		}
		result.Drift = true
		logging.From(ctx).Info("subject already unrestricted, continuing", keyAttrs(key)...)
	}

	now := uc.now()
	result.CaseRef = uc.record(ctx, &model.ModlogEntry{
		GuildID:   rec.GuildID,
		SubjectID: rec.SubjectID,
		ActorID:   actor,
		Kind:      rec.Kind,
		Type:      caseType,
		Reason:    reason,
		CreatedAt: now,
	})
	uc.notify(ctx, key, caseType, result.CaseRef)

	if err := uc.external(ctx, func(ctx context.Context) error {
		n, err := uc.audit.CloseOpen(ctx, rec.GuildID, rec.SubjectID, types.ApplyModlogTypes(rec.Kind), result.CaseRef)
		result.ClosedCases = n
		return err
	}); err != nil {
		_ = errutil.Handle(ctx, err, "failed to close open modlog cases")
	}

	if err := uc.repo.Delete(ctx, key); err != nil {
		uc.pending.putDelete(key, now)
		return result, fail(ErrPersistenceFailed, err, "failed to delete action record, queued for reconciliation")
	}
	uc.pending.clear(key)

	return result, nil
}

// prepare resolves the guild settings and restrictor for key. withSubject
// also checks that the subject exists on the platform.
func (uc *ModerationUseCase) prepare(ctx context.Context, key model.ActionKey, withSubject bool) (*model.GuildSettings, interfaces.Restrictor, error) {
	vals := keyValues(key)

	if err := key.SubjectID.Validate(); err != nil {
		return nil, nil, fail(ErrInvalidSubject, err, "invalid subject", vals...)
	}

	guild := uc.guilds.Get(key.GuildID)
	if guild == nil {
		return nil, nil, goerr.Wrap(ErrConfigurationMissing, "guild is not configured", vals...)
	}
	if !guild.HasModlog() {
		return nil, nil, goerr.Wrap(ErrConfigurationMissing, "modlog channel is not configured", vals...)
	}

	restrictor, ok := uc.restrictors[key.Kind]
	if !key.Kind.IsValid() || !ok {
		return nil, nil, goerr.Wrap(ErrConfigurationMissing, "no restrictor for action kind", vals...)
	}
	if checker, ok := restrictor.(interfaces.RestrictorChecker); ok {
		if err := checker.Check(guild); err != nil {
			return nil, nil, fail(ErrConfigurationMissing, err, "restrictor is not ready", vals...)
		}
	}

	if !withSubject {
		return guild, restrictor, nil
	}

	resolver, ok := uc.resolvers[guild.Platform]
	if !ok {
		return guild, restrictor, nil
	}

	var found bool
	if err := uc.external(ctx, func(ctx context.Context) error {
		var err error
		found, err = resolver.ResolveSubject(ctx, guild, key.SubjectID)
		return err
	}); err != nil {
		return nil, nil, fail(ErrExternalMutationFailed, err, "failed to resolve subject", vals...)
	}
	if !found {
		return nil, nil, goerr.Wrap(ErrInvalidSubject, "subject not found in guild", vals...)
	}

	return guild, restrictor, nil
}

// lookup reports whether key is active, counting unpersisted applies and
// deletes waiting in the reconciliation queue
func (uc *ModerationUseCase) lookup(ctx context.Context, key model.ActionKey) (bool, *model.ActionRecord, error) {
	if op, ok := uc.pending.get(key); ok {
		if op.record != nil {
			return true, op.record.Copy(), nil
		}
		return false, nil, nil
	}

	rec, err := uc.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return false, nil, nil
		}
		return false, nil, fail(ErrPersistenceFailed, err, "failed to read action record", keyValues(key)...)
	}
	return true, rec, nil
}

// external runs fn under the collaborator timeout
func (uc *ModerationUseCase) external(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return goerr.Wrap(err, "external call timed out", goerr.V("timeout", uc.timeout))
		}
		return err
	}
	return nil
}

// record writes the audit entry. Failure is logged and yields an empty ref.
func (uc *ModerationUseCase) record(ctx context.Context, entry *model.ModlogEntry) types.CaseRef {
	var ref types.CaseRef
	if err := uc.external(ctx, func(ctx context.Context) error {
		var err error
		ref, err = uc.audit.Record(ctx, entry)
		return err
	}); err != nil {
		_ = errutil.Handle(ctx, goerr.Wrap(err, "failed to record modlog case",
			goerr.V(GuildIDKey, entry.GuildID),
			goerr.V(SubjectIDKey, entry.SubjectID),
			goerr.V("type", entry.Type)), "modlog write failed")
		return ""
	}
	return ref
}

func (uc *ModerationUseCase) notify(ctx context.Context, key model.ActionKey, caseType types.ModlogType, ref types.CaseRef) {
	if err := uc.external(ctx, func(ctx context.Context) error {
		return uc.audit.Notify(ctx, key.GuildID, key.SubjectID, caseType, ref)
	}); err != nil {
		logging.From(ctx).Warn("failed to notify subject",
			append(keyAttrs(key), slog.String("type", string(caseType)), slog.Any("error", err))...)
	}
}

func keyValues(key model.ActionKey) []goerr.Option {
	return []goerr.Option{
		goerr.V(GuildIDKey, key.GuildID),
		goerr.V(SubjectIDKey, key.SubjectID),
		goerr.V(KindKey, key.Kind),
	}
}

func keyAttrs(key model.ActionKey) []any {
	return []any{
		slog.String(GuildIDKey, string(key.GuildID)),
		slog.String(SubjectIDKey, string(key.SubjectID)),
		slog.String(KindKey, string(key.Kind)),
	}
}
