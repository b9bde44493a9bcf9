package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

// ErrMemberNotFound is returned when Telegram does not know the user in the chat
var ErrMemberNotFound = goerr.New("telegram chat member not found")

// UpdateHandler processes one bot update
type UpdateHandler func(ctx context.Context, update tgbotapi.Update)

// Member is the moderation relevant part of a chat membership
type Member struct {
	UserID          int64
	Status          string
	CanSendMessages bool
}

// IsMuted reports whether the member is restricted from sending messages
func (m *Member) IsMuted() bool {
	return m.Status == "restricted" && !m.CanSendMessages
}

// Client wraps the Bot API. Without a token it runs in dry mode: mutations
// are logged and succeed, membership lookups report an unrestricted member.
type Client struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
	dryRun      bool
}

type Option func(*clientConfig)

type clientConfig struct {
	endpoint    string
	pollTimeout int
}

// WithEndpoint overrides the Bot API endpoint format, e.g. for a test server
func WithEndpoint(endpoint string) Option {
	return func(c *clientConfig) {
		c.endpoint = endpoint
	}
}

func WithPollTimeout(seconds int) Option {
	return func(c *clientConfig) {
		c.pollTimeout = seconds
	}
}

func New(token string, opts ...Option) (*Client, error) {
	cfg := clientConfig{
		endpoint:    tgbotapi.APIEndpoint,
		pollTimeout: 30,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if strings.TrimSpace(token) == "" {
		return &Client{pollTimeout: cfg.pollTimeout, dryRun: true}, nil
	}

	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, cfg.endpoint)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create telegram bot client")
	}

	return &Client{api: api, pollTimeout: cfg.pollTimeout}, nil
}

func (c *Client) DryRun() bool {
	return c.dryRun
}

// Start long-polls updates and calls handler for each until ctx is done
func (c *Client) Start(ctx context.Context, handler UpdateHandler) error {
	logger := logging.From(ctx)
	if c.dryRun {
		logger.Warn("telegram token is empty, running in dry mode")
		<-ctx.Done()
		return nil
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = c.pollTimeout
	updates := c.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			c.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			handler(ctx, update)
		}
	}
}

// SendText sends an HTML formatted message
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	if c.dryRun {
		logging.From(ctx).Info("dry run: send message", slog.Int64("chat_id", chatID), slog.String("text", text))
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := c.api.Send(msg); err != nil {
		return goerr.Wrap(err, "failed to send telegram message", goerr.V("chat_id", chatID))
	}
	return nil
}

// GetMember returns the membership of userID in chatID
func (c *Client) GetMember(ctx context.Context, chatID, userID int64) (*Member, error) {
	if c.dryRun {
		return &Member{UserID: userID, Status: "member", CanSendMessages: true}, nil
	}

	m, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(ErrMemberNotFound, "failed to get chat member",
				goerr.V("chat_id", chatID), goerr.V("user_id", userID))
		}
		return nil, goerr.Wrap(err, "failed to get chat member", goerr.V("chat_id", chatID), goerr.V("user_id", userID))
	}

	return &Member{
		UserID:          userID,
		Status:          m.Status,
		CanSendMessages: m.CanSendMessages,
	}, nil
}

// Restrict mutes or unmutes the user. A zero until keeps the restriction
// until it is lifted explicitly.
func (c *Client) Restrict(ctx context.Context, chatID, userID int64, mute bool, until time.Time) error {
	if c.dryRun {
		logging.From(ctx).Info("dry run: restrict chat member",
			slog.Int64("chat_id", chatID), slog.Int64("user_id", userID), slog.Bool("mute", mute))
		return nil
	}

	cfg := tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		Permissions:      permissions(!mute),
	}
	if !until.IsZero() {
		cfg.UntilDate = until.Unix()
	}

	if _, err := c.api.Request(cfg); err != nil {
		return goerr.Wrap(err, "failed to restrict chat member",
			goerr.V("chat_id", chatID), goerr.V("user_id", userID), goerr.V("mute", mute))
	}
	return nil
}

func isNotFound(err error) bool {
	var code int
	var msg string

	var ptrErr *tgbotapi.Error
	var valErr tgbotapi.Error
	switch {
	case errors.As(err, &ptrErr):
		code, msg = ptrErr.Code, ptrErr.Message
	case errors.As(err, &valErr):
		code, msg = valErr.Code, valErr.Message
	default:
		return false
	}
	return code == 400 && strings.Contains(strings.ToLower(msg), "not found")
}

func permissions(allowed bool) *tgbotapi.ChatPermissions {
	return &tgbotapi.ChatPermissions{
		CanSendMessages:       allowed,
		CanSendMediaMessages:  allowed,
		CanSendPolls:          allowed,
		CanSendOtherMessages:  allowed,
		CanAddWebPagePreviews: allowed,
		CanInviteUsers:        allowed,
	}
}

// ParseID converts a guild or subject ID to a Telegram chat/user ID
func ParseID(id string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil {
		return 0, goerr.Wrap(err, "invalid telegram id", goerr.V("id", id))
	}
	return v, nil
}
