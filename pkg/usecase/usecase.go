package usecase

import (
	"time"

	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

const DefaultExternalTimeout = 10 * time.Second

type UseCases struct {
	repo   interfaces.Repository
	guilds *model.GuildRegistry
	audit  interfaces.AuditLog

	restrictors     map[types.ActionKind]interfaces.Restrictor
	resolvers       map[types.Platform]interfaces.SubjectResolver
	now             func() time.Time
	externalTimeout time.Duration

	Moderation *ModerationUseCase
	Command    *CommandUseCase
}

type Option func(*UseCases)

// WithRestrictor registers the platform mutation used for kind
func WithRestrictor(kind types.ActionKind, r interfaces.Restrictor) Option {
	return func(uc *UseCases) {
		uc.restrictors[kind] = r
	}
}

// WithSubjectResolver registers the membership check for guilds on platform
func WithSubjectResolver(platform types.Platform, r interfaces.SubjectResolver) Option {
	return func(uc *UseCases) {
		uc.resolvers[platform] = r
	}
}

func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

// WithExternalTimeout bounds every restrictor, resolver and audit log call
func WithExternalTimeout(d time.Duration) Option {
	return func(uc *UseCases) {
		if d > 0 {
			uc.externalTimeout = d
		}
	}
}

func New(repo interfaces.Repository, guilds *model.GuildRegistry, audit interfaces.AuditLog, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:            repo,
		guilds:          guilds,
		audit:           audit,
		restrictors:     make(map[types.ActionKind]interfaces.Restrictor),
		resolvers:       make(map[types.Platform]interfaces.SubjectResolver),
		now:             time.Now,
		externalTimeout: DefaultExternalTimeout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Moderation = newModerationUseCase(uc)
	uc.Command = NewCommandUseCase(uc.Moderation, guilds)

	return uc
}
