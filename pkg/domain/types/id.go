package types

import (
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// GuildID identifies a community: a Slack workspace/channel scope or a Telegram group chat
type GuildID string

// Validate checks if the GuildID is valid
func (id GuildID) Validate() error {
	if id == "" {
		return goerr.New("guild ID cannot be empty")
	}
	return nil
}

func (id GuildID) String() string {
	return string(id)
}

// SubjectID identifies the member a moderation action targets
type SubjectID string

// Validate checks if the SubjectID is valid
func (id SubjectID) Validate() error {
	if id == "" {
		return goerr.New("subject ID cannot be empty")
	}
	return nil
}

func (id SubjectID) String() string {
	return string(id)
}

// ActorID identifies who triggered a transition. The engine itself acts as ActorSystem.
type ActorID string

const ActorSystem ActorID = "system"

func (id ActorID) String() string {
	return string(id)
}

// CaseRef references a modlog case. Empty means the case could not be written.
type CaseRef string

// NewCaseRef generates a time ordered case reference
func NewCaseRef() CaseRef {
	return CaseRef(uuid.Must(uuid.NewV7()).String())
}

func (r CaseRef) String() string {
	return string(r)
}
