package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

// Moderation adapts Client to the engine's Restrictor, Messenger and
// SubjectResolver ports. Guild IDs are chat IDs and subject IDs are user IDs.
type Moderation struct {
	client *Client
}

var (
	_ interfaces.Restrictor      = &Moderation{}
	_ interfaces.Messenger       = &Moderation{}
	_ interfaces.SubjectResolver = &Moderation{}
)

func NewModeration(client *Client) *Moderation {
	return &Moderation{client: client}
}

func ids(guild *model.GuildSettings, subject types.SubjectID) (int64, int64, error) {
	chatID, err := ParseID(string(guild.ID))
	if err != nil {
		return 0, 0, err
	}
	userID, err := ParseID(string(subject))
	if err != nil {
		return 0, 0, err
	}
	return chatID, userID, nil
}

// Apply mutes the member. An already muted member yields ErrAlreadyInState.
func (m *Moderation) Apply(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error {
	chatID, userID, err := ids(guild, subject)
	if err != nil {
		return err
	}

	member, err := m.client.GetMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if member.IsMuted() {
		return goerr.Wrap(interfaces.ErrAlreadyInState, "member is already muted",
			goerr.V("chat_id", chatID), goerr.V("user_id", userID))
	}

	return m.client.Restrict(ctx, chatID, userID, true, time.Time{})
}

// Remove unmutes the member. A member that is not muted yields ErrAlreadyInState.
func (m *Moderation) Remove(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error {
	chatID, userID, err := ids(guild, subject)
	if err != nil {
		return err
	}

	member, err := m.client.GetMember(ctx, chatID, userID)
	if errors.Is(err, ErrMemberNotFound) {
		return goerr.Wrap(interfaces.ErrAlreadyInState, "member is gone",
			goerr.V("chat_id", chatID), goerr.V("user_id", userID))
	}
	if err != nil {
		return err
	}
	if !m.client.DryRun() && !member.IsMuted() {
		return goerr.Wrap(interfaces.ErrAlreadyInState, "member is not muted",
			goerr.V("chat_id", chatID), goerr.V("user_id", userID))
	}

	return m.client.Restrict(ctx, chatID, userID, false, time.Time{})
}

func (m *Moderation) ResolveSubject(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID) (bool, error) {
	chatID, userID, err := ids(guild, subject)
	if err != nil {
		return false, nil
	}

	member, err := m.client.GetMember(ctx, chatID, userID)
	if errors.Is(err, ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.Status != "kicked", nil
}

func (m *Moderation) PostModlog(ctx context.Context, channel string, c *model.ModlogCase) error {
	chatID, err := ParseID(channel)
	if err != nil {
		return err
	}
	return m.client.SendText(ctx, chatID, ModlogText(c))
}

func (m *Moderation) NotifySubject(ctx context.Context, guild *model.GuildSettings, c *model.ModlogCase) error {
	userID, err := ParseID(string(c.SubjectID))
	if err != nil {
		return err
	}
	return m.client.SendText(ctx, userID, subjectNotice(guild, c))
}

// ModlogText renders a modlog case as Telegram HTML
func ModlogText(c *model.ModlogCase) string {
	actor := "automatic"
	if c.ActorID != types.ActorSystem && c.ActorID != "" {
		actor = Mention(types.SubjectID(c.ActorID))
	}

	text := fmt.Sprintf("<b>%s</b>\nMember: %s\nModerator: %s\nReason: %s",
		html.EscapeString(c.Type.Label()),
		Mention(c.SubjectID),
		actor,
		html.EscapeString(c.Reason),
	)
	if c.Details != "" {
		text += "\n" + html.EscapeString(c.Details)
	}
	text += fmt.Sprintf("\n<i>Case %s</i>", html.EscapeString(string(c.CaseRef)))
	return text
}

// Mention renders an inline user link
func Mention(subject types.SubjectID) string {
	return fmt.Sprintf(`<a href="tg://user?id=%s">%s</a>`, html.EscapeString(string(subject)), html.EscapeString(string(subject)))
}

func subjectNotice(guild *model.GuildSettings, c *model.ModlogCase) string {
	name := guild.Name
	if name == "" {
		name = string(guild.ID)
	}
	name = html.EscapeString(name)
	reason := html.EscapeString(c.Reason)

	switch c.Type {
	case types.ModlogTypeMute:
		return fmt.Sprintf("You have been muted in <b>%s</b>.\nReason: %s", name, reason)
	case types.ModlogTypeTempMute:
		return fmt.Sprintf("You have been muted in <b>%s</b>. %s\nReason: %s", name, html.EscapeString(c.Details), reason)
	case types.ModlogTypeAutoUnmute:
		return fmt.Sprintf("Your mute in <b>%s</b> has expired.", name)
	default:
		return fmt.Sprintf("You have been unmuted in <b>%s</b>.\nReason: %s", name, reason)
	}
}
