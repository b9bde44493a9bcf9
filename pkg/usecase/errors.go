package usecase

import (
	"errors"

	"github.com/m-mizutani/goerr/v2"
)

// Sentinel errors for moderation transitions
var (
	ErrInvalidSubject         = errors.New("invalid subject")
	ErrInvalidDuration        = errors.New("invalid duration")
	ErrAlreadyActive          = errors.New("action is already active")
	ErrNotActive              = errors.New("action is not active")
	ErrConfigurationMissing   = errors.New("configuration missing")
	ErrExternalMutationFailed = errors.New("external mutation failed")
	ErrPersistenceFailed      = errors.New("persistence failed")
	ErrPermissionDenied       = errors.New("permission denied")
)

// Context keys for error values
const (
	GuildIDKey   = "guild_id"
	SubjectIDKey = "subject_id"
	KindKey      = "kind"
	ActorIDKey   = "actor_id"
)

// fail wraps sentinel so errors.Is matches both it and cause
func fail(sentinel, cause error, msg string, opts ...goerr.Option) error {
	if cause == nil {
		return goerr.Wrap(sentinel, msg, opts...)
	}
	return goerr.Wrap(errors.Join(sentinel, cause), msg, opts...)
}
