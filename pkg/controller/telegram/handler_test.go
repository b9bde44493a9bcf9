package telegram_test

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/moderato/pkg/controller/telegram"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/usecase"
)

func commandUpdate(text string, chatType string) tgbotapi.Update {
	end := len(text)
	for i, c := range text {
		if c == ' ' {
			end = i
			break
		}
	}
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: 7},
			Chat:      &tgbotapi.Chat{ID: -1001, Type: chatType},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}},
		},
	}
}

func TestParseUpdate(t *testing.T) {
	t.Run("subject by id", func(t *testing.T) {
		cmd, chatID, ok := telegram.ParseUpdate(commandUpdate("/mute 42 1d spam", "supergroup"))
		gt.Bool(t, ok).True()
		gt.Value(t, chatID).Equal(int64(-1001))
		gt.Value(t, cmd.Name).Equal("mute")
		gt.Value(t, cmd.Guild).Equal(types.GuildID("-1001"))
		gt.Value(t, cmd.Actor).Equal(types.ActorID("7"))
		gt.Value(t, cmd.Subject).Equal(types.SubjectID("42"))
		gt.Value(t, cmd.Args).Equal([]string{"1d", "spam"})
	})

	t.Run("subject by reply", func(t *testing.T) {
		update := commandUpdate("/unmute@moderato_bot appealed", "group")
		update.Message.ReplyToMessage = &tgbotapi.Message{From: &tgbotapi.User{ID: 99}}

		cmd, _, ok := telegram.ParseUpdate(update)
		gt.Bool(t, ok).True()
		gt.Value(t, cmd.Name).Equal("unmute")
		gt.Value(t, cmd.Subject).Equal(types.SubjectID("99"))
		gt.Value(t, cmd.Args).Equal([]string{"appealed"})
	})

	t.Run("no subject", func(t *testing.T) {
		cmd, _, ok := telegram.ParseUpdate(commandUpdate("/mute someone", "group"))
		gt.Bool(t, ok).True()
		gt.Value(t, cmd.Subject).Equal(types.SubjectID(""))
	})

	t.Run("ignored", func(t *testing.T) {
		_, _, ok := telegram.ParseUpdate(commandUpdate("/mute 42", "private"))
		gt.Bool(t, ok).False()

		_, _, ok = telegram.ParseUpdate(commandUpdate("/start", "group"))
		gt.Bool(t, ok).False()

		_, _, ok = telegram.ParseUpdate(tgbotapi.Update{})
		gt.Bool(t, ok).False()
	})
}

type commandMock struct{}

func (commandMock) Execute(ctx context.Context, cmd *usecase.Command) (*usecase.Reply, error) {
	return &usecase.Reply{Text: cmd.Mention(cmd.Subject) + " has been unmuted!", Public: true}, nil
}

type replierMock struct {
	sent chan string
}

func (r *replierMock) SendText(ctx context.Context, chatID int64, text string) error {
	r.sent <- text
	return nil
}

func TestHandleUpdate(t *testing.T) {
	replier := &replierMock{sent: make(chan string, 1)}
	h := telegram.New(commandMock{}, replier)

	h.HandleUpdate(context.Background(), commandUpdate("/unmute 42", "supergroup"))

	select {
	case text := <-replier.sent:
		gt.Value(t, text).Equal(`<a href="tg://user?id=42">42</a> has been unmuted!`)
	case <-time.After(2 * time.Second):
		t.Fatal("no reply sent")
	}
}
