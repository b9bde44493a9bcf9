package slack

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

const (
	// DefaultCacheTTL is the default TTL for the user info cache
	DefaultCacheTTL = 45 * time.Second
)

// ErrUserNotFound is returned when Slack does not know the user ID
var ErrUserNotFound = goerr.New("slack user not found")

type cacheEntry struct {
	user      *User
	expiresAt time.Time
}

// client implements Service interface
type client struct {
	api      *slack.Client
	apiURL   string
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// Option is a functional option for client configuration
type Option func(*client)

// WithCacheTTL sets the TTL for the user info cache
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *client) {
		c.cacheTTL = ttl
	}
}

// WithAPIURL points the client at another API endpoint, e.g. a test server
func WithAPIURL(url string) Option {
	return func(c *client) {
		c.apiURL = url
	}
}

// New creates a new Slack service with the provided bot token
func New(token string, opts ...Option) (Service, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}

	c := &client{
		cacheTTL: DefaultCacheTTL,
		cache:    make(map[string]cacheEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	var apiOpts []slack.Option
	if c.apiURL != "" {
		apiOpts = append(apiOpts, slack.OptionAPIURL(c.apiURL))
	}
	c.api = slack.New(token, apiOpts...)

	return c, nil
}

func (c *client) GetUserInfo(ctx context.Context, userID string) (*User, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.cache[userID]
	c.mu.RUnlock()
	if ok && entry.expiresAt.After(now) {
		copied := *entry.user
		return &copied, nil
	}

	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		var se slack.SlackErrorResponse
		if errors.As(err, &se) && se.Err == "user_not_found" {
			return nil, goerr.Wrap(ErrUserNotFound, "failed to get user info", goerr.V("user_id", userID))
		}
		return nil, goerr.Wrap(err, "failed to get user info", goerr.V("user_id", userID))
	}

	u := &User{
		ID:       user.ID,
		Name:     user.Name,
		RealName: user.RealName,
		Deleted:  user.Deleted,
		IsBot:    user.IsBot,
	}

	c.mu.Lock()
	c.cache[userID] = cacheEntry{user: u, expiresAt: now.Add(c.cacheTTL)}
	c.mu.Unlock()

	copied := *u
	return &copied, nil
}

func (c *client) PostMessage(ctx context.Context, channelID string, blocks []slack.Block, text string) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to post message", goerr.V("channel_id", channelID))
	}
	return ts, nil
}

func (c *client) SendDirectMessage(ctx context.Context, userID string, blocks []slack.Block, text string) error {
	ch, _, _, err := c.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to open direct message", goerr.V("user_id", userID))
	}

	if _, err := c.PostMessage(ctx, ch.ID, blocks, text); err != nil {
		return goerr.Wrap(err, "failed to send direct message", goerr.V("user_id", userID))
	}
	return nil
}

func (c *client) Respond(ctx context.Context, responseURL string, text string, inChannel bool) error {
	return Respond(ctx, responseURL, text, inChannel)
}

// Respond answers a slash command through its response_url. It needs no bot
// token, so commands can be answered without a configured client.
func Respond(ctx context.Context, responseURL string, text string, inChannel bool) error {
	msg := &slack.WebhookMessage{
		Text:         text,
		ResponseType: "ephemeral",
	}
	if inChannel {
		msg.ResponseType = "in_channel"
	}

	if err := slack.PostWebhookContext(ctx, responseURL, msg); err != nil {
		return goerr.Wrap(err, "failed to respond to slash command")
	}
	return nil
}
