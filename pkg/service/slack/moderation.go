package slack

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/slack-go/slack"
)

// Moderation adapts Service to the moderation engine's Messenger and
// SubjectResolver ports
type Moderation struct {
	svc Service
}

var (
	_ interfaces.Messenger       = &Moderation{}
	_ interfaces.SubjectResolver = &Moderation{}
)

func NewModeration(svc Service) *Moderation {
	return &Moderation{svc: svc}
}

func (m *Moderation) PostModlog(ctx context.Context, channel string, c *model.ModlogCase) error {
	if _, err := m.svc.PostMessage(ctx, channel, ModlogBlocks(c), modlogFallback(c)); err != nil {
		return goerr.Wrap(err, "failed to post modlog case", goerr.V("case_ref", c.CaseRef))
	}
	return nil
}

func (m *Moderation) NotifySubject(ctx context.Context, guild *model.GuildSettings, c *model.ModlogCase) error {
	text := subjectNotice(guild, c)
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
	}
	if err := m.svc.SendDirectMessage(ctx, string(c.SubjectID), blocks, text); err != nil {
		return goerr.Wrap(err, "failed to notify subject", goerr.V("case_ref", c.CaseRef))
	}
	return nil
}

func (m *Moderation) ResolveSubject(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID) (bool, error) {
	user, err := m.svc.GetUserInfo(ctx, string(subject))
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !user.Deleted, nil
}

// ModlogBlocks renders a modlog case as Block Kit
func ModlogBlocks(c *model.ModlogCase) []slack.Block {
	header := slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, c.Type.Label(), false, false))

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Member*\n<@%s>", c.SubjectID), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Moderator*\n%s", actorMention(c.ActorID)), false, false),
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Reason*\n%s", c.Reason), false, false),
	}
	if c.Details != "" {
		fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("*Details*\n%s", c.Details), false, false))
	}

	footer := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("Case `%s` • <!date^%d^{date_short_pretty} {time}|%s>",
			c.CaseRef, c.CreatedAt.Unix(), c.CreatedAt.UTC().Format("2006-01-02 15:04 MST")), false, false),
	)

	return []slack.Block{
		header,
		slack.NewSectionBlock(nil, fields, nil),
		footer,
	}
}

func modlogFallback(c *model.ModlogCase) string {
	return fmt.Sprintf("%s: <@%s> (%s)", c.Type.Label(), c.SubjectID, c.Reason)
}

func actorMention(actor types.ActorID) string {
	if actor == types.ActorSystem || actor == "" {
		return "_automatic_"
	}
	return fmt.Sprintf("<@%s>", actor)
}

func subjectNotice(guild *model.GuildSettings, c *model.ModlogCase) string {
	name := guild.Name
	if name == "" {
		name = string(guild.ID)
	}

	switch c.Type {
	case types.ModlogTypeMute:
		return fmt.Sprintf("You have been muted in *%s*.\n*Reason:* %s", name, c.Reason)
	case types.ModlogTypeTempMute:
		return fmt.Sprintf("You have been muted in *%s*. %s\n*Reason:* %s", name, c.Details, c.Reason)
	case types.ModlogTypeAutoUnmute:
		return fmt.Sprintf("Your mute in *%s* has expired.", name)
	default:
		return fmt.Sprintf("You have been unmuted in *%s*.\n*Reason:* %s", name, c.Reason)
	}
}

var mentionPattern = regexp.MustCompile(`^<@([UW][A-Z0-9]+)(?:\|[^>]*)?>$`)
var rawUserIDPattern = regexp.MustCompile(`^[UW][A-Z0-9]{2,}$`)

// ParseUserMention extracts a user ID from "<@U123|name>", "<@U123>" or a raw "U123"
func ParseUserMention(s string) (types.SubjectID, bool) {
	if m := mentionPattern.FindStringSubmatch(s); m != nil {
		return types.SubjectID(m[1]), true
	}
	if rawUserIDPattern.MatchString(s) {
		return types.SubjectID(s), true
	}
	return "", false
}

// Mention renders a subject for a command reply
func Mention(subject types.SubjectID) string {
	return fmt.Sprintf("<@%s>", subject)
}
