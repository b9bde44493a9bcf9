// Package modlog implements the moderation audit log: cases are persisted in
// the repository, mirrored to the guild's modlog channel and, when enabled,
// sent to the affected member.
package modlog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

type Service struct {
	repo       interfaces.ModlogRepository
	guilds     *model.GuildRegistry
	messengers map[types.Platform]interfaces.Messenger
	now        func() time.Time
}

var _ interfaces.AuditLog = &Service{}

type Option func(*Service)

// WithMessenger registers the messenger used for guilds on platform
func WithMessenger(platform types.Platform, m interfaces.Messenger) Option {
	return func(s *Service) {
		s.messengers[platform] = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(repo interfaces.ModlogRepository, guilds *model.GuildRegistry, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		guilds:     guilds,
		messengers: make(map[types.Platform]interfaces.Messenger),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record persists a new case and mirrors it to the modlog channel. The
// channel post is best effort; only a failed write is returned.
func (s *Service) Record(ctx context.Context, entry *model.ModlogEntry) (types.CaseRef, error) {
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	c := &model.ModlogCase{
		CaseRef:   types.NewCaseRef(),
		GuildID:   entry.GuildID,
		SubjectID: entry.SubjectID,
		ActorID:   entry.ActorID,
		Type:      entry.Type,
		Reason:    model.ReasonOrDefault(entry.Reason),
		Details:   details(entry, createdAt),
		CreatedAt: createdAt.UTC(),
	}

	if err := s.repo.Put(ctx, c); err != nil {
		return "", goerr.Wrap(err, "failed to record modlog case",
			goerr.V("guild_id", entry.GuildID),
			goerr.V("subject_id", entry.SubjectID),
			goerr.V("type", entry.Type))
	}

	logger := logging.From(ctx).With(
		slog.String("case_ref", string(c.CaseRef)),
		slog.String("guild_id", string(c.GuildID)),
	)

	guild := s.guilds.Get(entry.GuildID)
	if guild == nil || !guild.HasModlog() {
		logger.Warn("modlog channel not configured, case stored only")
		return c.CaseRef, nil
	}

	if m, ok := s.messengers[guild.Platform]; ok {
		if err := m.PostModlog(ctx, guild.ModlogChannel, c); err != nil {
			logger.Warn("failed to post modlog case", slog.Any("error", err))
		}
	}

	return c.CaseRef, nil
}

// Notify sends the case to the affected member if the guild enables it
func (s *Service) Notify(ctx context.Context, guildID types.GuildID, subjectID types.SubjectID, caseType types.ModlogType, ref types.CaseRef) error {
	guild := s.guilds.Get(guildID)
	if guild == nil || !guild.NotifySubjects {
		return nil
	}

	m, ok := s.messengers[guild.Platform]
	if !ok {
		return nil
	}

	c, err := s.caseFor(ctx, guildID, subjectID, caseType, ref)
	if err != nil {
		return err
	}

	if err := m.NotifySubject(ctx, guild, c); err != nil {
		return goerr.Wrap(err, "failed to notify subject",
			goerr.V("guild_id", guildID), goerr.V("subject_id", subjectID), goerr.V("case_ref", ref))
	}
	return nil
}

// caseFor loads the case, or synthesizes a minimal one when the audit write
// failed and no reference exists
func (s *Service) caseFor(ctx context.Context, guildID types.GuildID, subjectID types.SubjectID, caseType types.ModlogType, ref types.CaseRef) (*model.ModlogCase, error) {
	if ref == "" {
		return &model.ModlogCase{
			GuildID:   guildID,
			SubjectID: subjectID,
			Type:      caseType,
			Reason:    model.DefaultReason,
			CreatedAt: s.now().UTC(),
		}, nil
	}

	c, err := s.repo.Get(ctx, ref)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load modlog case for notification", goerr.V("case_ref", ref))
	}
	return c, nil
}

// CloseOpen closes every open case of the subject with one of caseTypes
func (s *Service) CloseOpen(ctx context.Context, guildID types.GuildID, subjectID types.SubjectID, caseTypes []types.ModlogType, closedBy types.CaseRef) (int, error) {
	open, err := s.repo.ListOpen(ctx, guildID, subjectID, caseTypes)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list open modlog cases",
			goerr.V("guild_id", guildID), goerr.V("subject_id", subjectID))
	}

	now := s.now().UTC()
	closed := 0
	for _, c := range open {
		c.Close(closedBy, now)
		if err := s.repo.Put(ctx, c); err != nil {
			return closed, goerr.Wrap(err, "failed to close modlog case", goerr.V("case_ref", c.CaseRef))
		}
		closed++
	}
	return closed, nil
}

func details(entry *model.ModlogEntry, createdAt time.Time) string {
	switch entry.Type {
	case types.ModlogTypeTempMute:
		if entry.Duration == nil {
			return ""
		}
		return fmt.Sprintf("Duration: %s (until %s)",
			model.HumanizeDuration(*entry.Duration),
			createdAt.Add(*entry.Duration).UTC().Format(time.RFC3339))
	case types.ModlogTypeAutoUnmute:
		return "Lifted automatically after expiry"
	default:
		return ""
	}
}
