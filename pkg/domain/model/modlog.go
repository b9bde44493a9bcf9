package model

import (
	"time"

	"github.com/secmon-lab/moderato/pkg/domain/types"
)

// ModlogCase is one audit log entry. Apply cases stay open until the matching
// lift closes them out.
type ModlogCase struct {
	CaseRef   types.CaseRef
	GuildID   types.GuildID
	SubjectID types.SubjectID
	ActorID   types.ActorID
	Type      types.ModlogType
	Reason    string
	Details   string
	CreatedAt time.Time
	ClosedBy  types.CaseRef
	ClosedAt  *time.Time
}

// IsOpen reports whether the case has not been closed by a later lift
func (c *ModlogCase) IsOpen() bool {
	return c.ClosedAt == nil
}

// Close marks the case closed by the given lift case
func (c *ModlogCase) Close(by types.CaseRef, at time.Time) {
	c.ClosedBy = by
	c.ClosedAt = &at
}

// ModlogEntry is what a transition asks the audit log to record
type ModlogEntry struct {
	GuildID   types.GuildID
	SubjectID types.SubjectID
	ActorID   types.ActorID
	Kind      types.ActionKind
	Type      types.ModlogType
	Reason    string
	Duration  *time.Duration
	CreatedAt time.Time
}
