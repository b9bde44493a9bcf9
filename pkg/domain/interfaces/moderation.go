package interfaces

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

// ErrAlreadyInState is returned by a Restrictor when the platform already has
// the requested state: the subject is already restricted on Apply, or already
// free on Remove.
var ErrAlreadyInState = goerr.New("already in requested state")

// Restrictor mutates the platform side state for one ActionKind
type Restrictor interface {
	Apply(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error
	Remove(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error
}

// RestrictorChecker is implemented by restrictors that depend on guild
// settings beyond the modlog channel. Check must not call the platform.
type RestrictorChecker interface {
	Check(guild *model.GuildSettings) error
}

// AuditLog writes modlog cases and notifies subjects about them
type AuditLog interface {
	// Record writes the entry and returns its case reference
	Record(ctx context.Context, entry *model.ModlogEntry) (types.CaseRef, error)

	// Notify tells the subject about the case. Best effort.
	Notify(ctx context.Context, guildID types.GuildID, subjectID types.SubjectID, caseType types.ModlogType, ref types.CaseRef) error

	// CloseOpen closes every open case of the subject with one of caseTypes and
	// returns how many were closed
	CloseOpen(ctx context.Context, guildID types.GuildID, subjectID types.SubjectID, caseTypes []types.ModlogType, closedBy types.CaseRef) (int, error)
}

// Messenger delivers moderation messages on one chat platform
type Messenger interface {
	PostModlog(ctx context.Context, channel string, c *model.ModlogCase) error
	NotifySubject(ctx context.Context, guild *model.GuildSettings, c *model.ModlogCase) error
}

// SubjectResolver checks that a subject exists in the guild. Platforms that
// cannot check membership accept any non-empty ID.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID) (bool, error)
}
