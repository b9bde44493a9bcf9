package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/repository/sqlite/db"
)

const actionRecordColumns = `guild_id, subject_id, action_kind, case_ref, actor_id, applied_at_ms, expires_at_ms, reason`

type actionRecordRepository struct {
	conn   *sql.DB
	writer *db.Writer
}

var _ interfaces.ActionRecordRepository = &actionRecordRepository{}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActionRecord(row rowScanner) (*model.ActionRecord, error) {
	var (
		rec       model.ActionRecord
		appliedAt int64
		expiresAt sql.NullInt64
	)
	if err := row.Scan(&rec.GuildID, &rec.SubjectID, &rec.Kind, &rec.CaseRef, &rec.ActorID, &appliedAt, &expiresAt, &rec.Reason); err != nil {
		return nil, err
	}
	rec.AppliedAt = fromMillis(appliedAt)
	rec.ExpiresAt = fromNullMillis(expiresAt)
	return &rec, nil
}

func (r *actionRecordRepository) Upsert(ctx context.Context, rec *model.ActionRecord) error {
	if err := rec.Validate(); err != nil {
		return goerr.Wrap(err, "invalid action record")
	}

	return r.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO timed_actions(`+actionRecordColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(guild_id, subject_id, action_kind) DO UPDATE SET
  case_ref = excluded.case_ref,
  actor_id = excluded.actor_id,
  applied_at_ms = excluded.applied_at_ms,
  expires_at_ms = excluded.expires_at_ms,
  reason = excluded.reason;`,
			rec.GuildID, rec.SubjectID, rec.Kind, rec.CaseRef, rec.ActorID,
			toMillis(rec.AppliedAt), nullMillis(rec.ExpiresAt), rec.Reason,
		); err != nil {
			return goerr.Wrap(err, "failed to upsert action record", goerr.V("key", rec.Key().String()))
		}
		return nil
	})
}

func (r *actionRecordRepository) Delete(ctx context.Context, key model.ActionKey) error {
	return r.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM timed_actions WHERE guild_id = ? AND subject_id = ? AND action_kind = ?;`,
			key.GuildID, key.SubjectID, key.Kind,
		); err != nil {
			return goerr.Wrap(err, "failed to delete action record", goerr.V("key", key.String()))
		}
		return nil
	})
}

func (r *actionRecordRepository) Get(ctx context.Context, key model.ActionKey) (*model.ActionRecord, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+actionRecordColumns+` FROM timed_actions WHERE guild_id = ? AND subject_id = ? AND action_kind = ?;`,
		key.GuildID, key.SubjectID, key.Kind,
	)
	rec, err := scanActionRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "action record not found", goerr.V("key", key.String()))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get action record", goerr.V("key", key.String()))
	}
	return rec, nil
}

func (r *actionRecordRepository) ListDueBefore(ctx context.Context, t time.Time) ([]*model.ActionRecord, error) {
	return r.list(ctx,
		`SELECT `+actionRecordColumns+` FROM timed_actions
WHERE expires_at_ms IS NOT NULL AND expires_at_ms <= ?
ORDER BY expires_at_ms ASC;`,
		toMillis(t),
	)
}

func (r *actionRecordRepository) ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ActionRecord, error) {
	return r.list(ctx,
		`SELECT `+actionRecordColumns+` FROM timed_actions WHERE guild_id = ? ORDER BY applied_at_ms ASC;`,
		guildID,
	)
}

func (r *actionRecordRepository) list(ctx context.Context, query string, args ...any) ([]*model.ActionRecord, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
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
