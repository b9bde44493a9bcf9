package types

import "github.com/m-mizutani/goerr/v2"

// ActionKind is the kind of restriction a timed moderation action applies
type ActionKind string

const (
	ActionKindMute ActionKind = "MUTE"
)

// AllActionKinds returns all valid action kinds
func AllActionKinds() []ActionKind {
	return []ActionKind{
		ActionKindMute,
	}
}

// IsValid checks if the action kind is valid
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionKindMute:
		return true
	default:
		return false
	}
}

func (k ActionKind) String() string {
	return string(k)
}

// ParseActionKind parses a string into an ActionKind
func ParseActionKind(s string) (ActionKind, error) {
	kind := ActionKind(s)
	if !kind.IsValid() {
		return "", goerr.New("invalid action kind", goerr.V("kind", s))
	}
	return kind, nil
}
