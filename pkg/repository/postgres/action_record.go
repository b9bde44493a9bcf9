package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

const actionRecordColumns = `guild_id, subject_id, action_kind, case_ref, actor_id, applied_at, expires_at, reason`

type actionRecordRepository struct {
	pool *pgxpool.Pool
}

var _ interfaces.ActionRecordRepository = &actionRecordRepository{}

func scanActionRecord(row pgx.Row) (*model.ActionRecord, error) {
	var (
		guildID, subjectID, kind, caseRef, actorID, reason string
		appliedAt                                          time.Time
		expiresAt                                          *time.Time
	)
	if err := row.Scan(&guildID, &subjectID, &kind, &caseRef, &actorID, &appliedAt, &expiresAt, &reason); err != nil {
		return nil, err
	}

	rec := &model.ActionRecord{
		GuildID:   types.GuildID(guildID),
		SubjectID: types.SubjectID(subjectID),
		Kind:      types.ActionKind(kind),
		CaseRef:   types.CaseRef(caseRef),
		ActorID:   types.ActorID(actorID),
		AppliedAt: appliedAt.UTC(),
		Reason:    reason,
	}
	if expiresAt != nil {
		t := expiresAt.UTC()
		rec.ExpiresAt = &t
	}
	return rec, nil
}

func (r *actionRecordRepository) Upsert(ctx context.Context, rec *model.ActionRecord) error {
	if err := rec.Validate(); err != nil {
		return goerr.Wrap(err, "invalid action record")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO timed_actions (`+actionRecordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (guild_id, subject_id, action_kind) DO UPDATE SET
	case_ref = EXCLUDED.case_ref,
	actor_id = EXCLUDED.actor_id,
	applied_at = EXCLUDED.applied_at,
	expires_at = EXCLUDED.expires_at,
	reason = EXCLUDED.reason
`,
		string(rec.GuildID), string(rec.SubjectID), string(rec.Kind), string(rec.CaseRef), string(rec.ActorID),
		rec.AppliedAt, rec.ExpiresAt, rec.Reason,
	); err != nil {
		return goerr.Wrap(err, "failed to upsert action record", goerr.V("key", rec.Key().String()))
	}
	return nil
}

func (r *actionRecordRepository) Delete(ctx context.Context, key model.ActionKey) error {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM timed_actions WHERE guild_id = $1 AND subject_id = $2 AND action_kind = $3`,
		string(key.GuildID), string(key.SubjectID), string(key.Kind),
	); err != nil {
		return goerr.Wrap(err, "failed to delete action record", goerr.V("key", key.String()))
	}
	return nil
}

func (r *actionRecordRepository) Get(ctx context.Context, key model.ActionKey) (*model.ActionRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+actionRecordColumns+` FROM timed_actions WHERE guild_id = $1 AND subject_id = $2 AND action_kind = $3`,
		string(key.GuildID), string(key.SubjectID), string(key.Kind),
	)
	rec, err := scanActionRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "action record not found", goerr.V("key", key.String()))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get action record", goerr.V("key", key.String()))
	}
	return rec, nil
}

func (r *actionRecordRepository) ListDueBefore(ctx context.Context, t time.Time) ([]*model.ActionRecord, error) {
	return r.list(ctx, `SELECT `+actionRecordColumns+` FROM timed_actions
WHERE expires_at IS NOT NULL AND expires_at <= $1
ORDER BY expires_at ASC`, t)
}

func (r *actionRecordRepository) ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ActionRecord, error) {
	return r.list(ctx, `SELECT `+actionRecordColumns+` FROM timed_actions
WHERE guild_id = $1 ORDER BY applied_at ASC`, string(guildID))
}

func (r *actionRecordRepository) list(ctx context.Context, query string, args ...any) ([]*model.ActionRecord, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query action records")
	}
	defer rows.Close()

	var result []*model.ActionRecord
	for rows.Next() {
		rec, err := scanActionRecord(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan action record")
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate action records")
	}
	return result, nil
}
