package model

import (
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

// DefaultReason is stored when a moderator gives no reason
const DefaultReason = "No reason was given."

// ActionKey identifies at most one active action
type ActionKey struct {
	GuildID   types.GuildID
	SubjectID types.SubjectID
	Kind      types.ActionKind
}

func (k ActionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.GuildID, k.SubjectID, k.Kind)
}

// Validate checks all key components are present and the kind is known
func (k ActionKey) Validate() error {
	if err := k.GuildID.Validate(); err != nil {
		return err
	}
	if err := k.SubjectID.Validate(); err != nil {
		return err
	}
	if !k.Kind.IsValid() {
		return goerr.New("invalid action kind", goerr.V("kind", k.Kind))
	}
	return nil
}

// ActionRecord is the durable state of an active moderation action. Its
// existence means the action is active. A nil ExpiresAt means permanent.
type ActionRecord struct {
	GuildID   types.GuildID
	SubjectID types.SubjectID
	Kind      types.ActionKind
	CaseRef   types.CaseRef
	ActorID   types.ActorID
	AppliedAt time.Time
	ExpiresAt *time.Time
	Reason    string
}

func (r *ActionRecord) Key() ActionKey {
	return ActionKey{GuildID: r.GuildID, SubjectID: r.SubjectID, Kind: r.Kind}
}

// Validate checks the record can be persisted
func (r *ActionRecord) Validate() error {
	if err := r.Key().Validate(); err != nil {
		return goerr.Wrap(err, "invalid action record key")
	}
	if r.AppliedAt.IsZero() {
		return goerr.New("applied_at is required", goerr.V("key", r.Key().String()))
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(r.AppliedAt) {
		return goerr.New("expires_at must be after applied_at",
			goerr.V("key", r.Key().String()),
			goerr.V("applied_at", r.AppliedAt),
			goerr.V("expires_at", *r.ExpiresAt))
	}
	return nil
}

// IsPermanent reports whether the action never expires
func (r *ActionRecord) IsPermanent() bool {
	return r.ExpiresAt == nil
}

// IsDue reports whether the action has expired at now
func (r *ActionRecord) IsDue(now time.Time) bool {
	return r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Remaining returns the time left until expiry, zero for permanent or due records
func (r *ActionRecord) Remaining(now time.Time) time.Duration {
	if r.ExpiresAt == nil || r.IsDue(now) {
		return 0
	}
	return r.ExpiresAt.Sub(now)
}

// Copy returns a deep copy so stores never share ExpiresAt pointers with callers
func (r *ActionRecord) Copy() *ActionRecord {
	c := *r
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// ReasonOrDefault normalizes an empty reason to DefaultReason
func ReasonOrDefault(reason string) string {
	if reason == "" {
		return DefaultReason
	}
	return reason
}
