package interfaces

import (
	"context"

	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

// ModlogRepository persists audit log cases
type ModlogRepository interface {
	// Put inserts or replaces a case by CaseRef
	Put(ctx context.Context, c *model.ModlogCase) error

	// Get returns the case or an error wrapping ErrNotFound
	Get(ctx context.Context, ref types.CaseRef) (*model.ModlogCase, error)

	// ListOpen returns open cases of the subject with one of the given types
	ListOpen(ctx context.Context, guildID types.GuildID, subjectID types.SubjectID, caseTypes []types.ModlogType) ([]*model.ModlogCase, error)

	// ListByGuild returns all cases of the guild ordered by CreatedAt
	ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ModlogCase, error)
}
