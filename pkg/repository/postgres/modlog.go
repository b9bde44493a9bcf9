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

const modlogColumns = `case_ref, guild_id, subject_id, actor_id, type, reason, details, created_at, closed_by, closed_at`

type modlogRepository struct {
	pool *pgxpool.Pool
}

var _ interfaces.ModlogRepository = &modlogRepository{}

func scanModlogCase(row pgx.Row) (*model.ModlogCase, error) {
	var (
		caseRef, guildID, subjectID, actorID, caseType, reason, details, closedBy string
		createdAt                                                                 time.Time
		closedAt                                                                  *time.Time
	)
	if err := row.Scan(&caseRef, &guildID, &subjectID, &actorID, &caseType, &reason, &details, &createdAt, &closedBy, &closedAt); err != nil {
		return nil, err
	}

	c := &model.ModlogCase{
		CaseRef:   types.CaseRef(caseRef),
		GuildID:   types.GuildID(guildID),
		SubjectID: types.SubjectID(subjectID),
		ActorID:   types.ActorID(actorID),
		Type:      types.ModlogType(caseType),
		Reason:    reason,
		Details:   details,
		CreatedAt: createdAt.UTC(),
		ClosedBy:  types.CaseRef(closedBy),
	}
	if closedAt != nil {
		t := closedAt.UTC()
		c.ClosedAt = &t
	}
	return c, nil
}

func (r *modlogRepository) Put(ctx context.Context, c *model.ModlogCase) error {
	if c.CaseRef == "" {
		return goerr.New("case ref is required")
	}

	if _, err := r.pool.Exec(ctx, `
INSERT INTO modlog_cases (`+modlogColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (case_ref) DO UPDATE SET
	guild_id = EXCLUDED.guild_id,
	subject_id = EXCLUDED.subject_id,
	actor_id = EXCLUDED.actor_id,
	type = EXCLUDED.type,
	reason = EXCLUDED.reason,
	details = EXCLUDED.details,
	created_at = EXCLUDED.created_at,
	closed_by = EXCLUDED.closed_by,
	closed_at = EXCLUDED.closed_at
`,
		string(c.CaseRef), string(c.GuildID), string(c.SubjectID), string(c.ActorID), string(c.Type),
		c.Reason, c.Details, c.CreatedAt, string(c.ClosedBy), c.ClosedAt,
	); err != nil {
		return goerr.Wrap(err, "failed to put modlog case", goerr.V("case_ref", c.CaseRef))
	}
	return nil
}

func (r *modlogRepository) Get(ctx context.Context, ref types.CaseRef) (*model.ModlogCase, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+modlogColumns+` FROM modlog_cases WHERE case_ref = $1`, string(ref))
	c, err := scanModlogCase(row)
	if errors.Is(err, pgx.ErrNoRows) {
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

	typeNames := make([]string, len(caseTypes))
	for i, t := range caseTypes {
		typeNames[i] = string(t)
	}

	return r.list(ctx, `SELECT `+modlogColumns+` FROM modlog_cases
WHERE guild_id = $1 AND subject_id = $2 AND closed_at IS NULL AND type = ANY($3)
ORDER BY created_at ASC, case_ref ASC`, string(guildID), string(subjectID), typeNames)
}

func (r *modlogRepository) ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ModlogCase, error) {
	return r.list(ctx, `SELECT `+modlogColumns+` FROM modlog_cases
WHERE guild_id = $1 ORDER BY created_at ASC, case_ref ASC`, string(guildID))
}

func (r *modlogRepository) list(ctx context.Context, query string, args ...any) ([]*model.ModlogCase, error) {
	rows, err := r.pool.Query(ctx, query, args...)
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
