package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/repository/sqlite/db"
)

const modlogColumns = `case_ref, guild_id, subject_id, actor_id, type, reason, details, created_at_ms, closed_by, closed_at_ms`

type modlogRepository struct {
	conn   *sql.DB
	writer *db.Writer
}

var _ interfaces.ModlogRepository = &modlogRepository{}

func scanModlogCase(row rowScanner) (*model.ModlogCase, error) {
	var (
		c         model.ModlogCase
		createdAt int64
		closedAt  sql.NullInt64
	)
	if err := row.Scan(&c.CaseRef, &c.GuildID, &c.SubjectID, &c.ActorID, &c.Type, &c.Reason, &c.Details, &createdAt, &c.ClosedBy, &closedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	c.ClosedAt = fromNullMillis(closedAt)
	return &c, nil
}

func (r *modlogRepository) Put(ctx context.Context, c *model.ModlogCase) error {
	if c.CaseRef == "" {
		return goerr.New("case ref is required")
	}

	return r.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO modlog_cases(`+modlogColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(case_ref) DO UPDATE SET
  guild_id = excluded.guild_id,
  subject_id = excluded.subject_id,
  actor_id = excluded.actor_id,
  type = excluded.type,
  reason = excluded.reason,
  details = excluded.details,
  created_at_ms = excluded.created_at_ms,
  closed_by = excluded.closed_by,
  closed_at_ms = excluded.closed_at_ms;`,
			c.CaseRef, c.GuildID, c.SubjectID, c.ActorID, c.Type, c.Reason, c.Details,
			toMillis(c.CreatedAt), c.ClosedBy, nullMillis(c.ClosedAt),
		); err != nil {
			return goerr.Wrap(err, "failed to put modlog case", goerr.V("case_ref", c.CaseRef))
		}
		return nil
	})
}

func (r *modlogRepository) Get(ctx context.Context, ref types.CaseRef) (*model.ModlogCase, error) {
	row := r.conn.QueryRowContext(ctx, `SELECT `+modlogColumns+` FROM modlog_cases WHERE case_ref = ?;`, ref)
	c, err := scanModlogCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "modlog case not found", goerr.V("case_ref", ref))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get modlog case", goerr.V("case_ref", ref))
	}
	return c, nil
}

func (r *modlogRepository) ListOpen(ctx context.Context, guildID types.GuildID, subjectID types.SubjectID, caseTypes []types.ModlogType) ([]*model.ModlogCase, error) {
	if len(caseTypes) == 0 {
		return nil, nil
	}

	args := []any{guildID, subjectID}
	placeholders := make([]string, len(caseTypes))
	for i, t := range caseTypes {
		placeholders[i] = "?"
		args = append(args, t)
	}

	return r.list(ctx, `SELECT `+modlogColumns+` FROM modlog_cases
WHERE guild_id = ? AND subject_id = ? AND closed_at_ms IS NULL AND type IN (`+strings.Join(placeholders, ",")+`)
ORDER BY created_at_ms ASC, case_ref ASC;`, args...)
}

func (r *modlogRepository) ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ModlogCase, error) {
	return r.list(ctx, `SELECT `+modlogColumns+` FROM modlog_cases
WHERE guild_id = ? ORDER BY created_at_ms ASC, case_ref ASC;`, guildID)
}

func (r *modlogRepository) list(ctx context.Context, query string, args ...any) ([]*model.ModlogCase, error) {
	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query modlog cases")
	}
	defer rows.Close()

	var result []*model.ModlogCase
	for rows.Next() {
		c, err := scanModlogCase(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan modlog case")
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate modlog cases")
	}
	return result, nil
}
