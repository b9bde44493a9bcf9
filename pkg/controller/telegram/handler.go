// Package telegram turns Bot API updates into moderation commands
package telegram

import (
	"context"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	tgsvc "github.com/secmon-lab/moderato/pkg/service/telegram"
	"github.com/secmon-lab/moderato/pkg/usecase"
	"github.com/secmon-lab/moderato/pkg/utils/async"
	"github.com/secmon-lab/moderato/pkg/utils/errutil"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

type CommandExecutor interface {
	Execute(ctx context.Context, cmd *usecase.Command) (*usecase.Reply, error)
}

// Replier sends HTML text to a chat
type Replier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type Handler struct {
	commands CommandExecutor
	replier  Replier
}

func New(commands CommandExecutor, replier Replier) *Handler {
	return &Handler{commands: commands, replier: replier}
}

// HandleUpdate processes one update. Commands run asynchronously so a slow
// platform call does not hold up the polling loop.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	cmd, chatID, ok := parseUpdate(update)
	if !ok {
		return
	}

	async.Dispatch(ctx, func(ctx context.Context) error {
		logging.From(ctx).Info("processing telegram command",
			"command", cmd.Name,
			"chat_id", chatID,
			"user_id", cmd.Actor,
		)

		reply, err := h.commands.Execute(ctx, cmd)
		if err != nil && !usecase.IsInformational(err) {
			_ = errutil.Handle(ctx, err, "telegram command failed")
		}
		return h.replier.SendText(ctx, chatID, reply.Text)
	})
}

// parseUpdate maps "/mute 12345 1d spam" or "/mute 1d spam" sent as a reply
// to a message. The group chat is the guild.
func parseUpdate(update tgbotapi.Update) (*usecase.Command, int64, bool) {
	msg := update.Message
	if msg == nil || msg.From == nil || !msg.IsCommand() {
		return nil, 0, false
	}
	if !msg.Chat.IsGroup() && !msg.Chat.IsSuperGroup() {
		return nil, 0, false
	}
	if !usecase.IsCommand(msg.Command()) {
		return nil, 0, false
	}

	cmd := &usecase.Command{
		Name:    msg.Command(),
		Guild:   types.GuildID(strconv.FormatInt(msg.Chat.ID, 10)),
		Actor:   types.ActorID(strconv.FormatInt(msg.From.ID, 10)),
		Mention: tgsvc.Mention,
	}

	args := strings.Fields(msg.CommandArguments())
	switch {
	case msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil:
		cmd.Subject = types.SubjectID(strconv.FormatInt(msg.ReplyToMessage.From.ID, 10))
		cmd.Args = args
	case len(args) > 0:
		if _, err := tgsvc.ParseID(args[0]); err == nil {
			cmd.Subject = types.SubjectID(args[0])
			cmd.Args = args[1:]
		}
	}

	return cmd, msg.Chat.ID, true
}
