package slack

import (
	"context"

	"github.com/slack-go/slack"
)

// Service is the subset of the Slack API the moderation bot uses
type Service interface {
	// GetUserInfo retrieves user information for the given user ID (cached)
	GetUserInfo(ctx context.Context, userID string) (*User, error)

	// PostMessage posts a Block Kit message to a channel and returns the message timestamp.
	// The text parameter is used as a fallback for notifications.
	PostMessage(ctx context.Context, channelID string, blocks []slack.Block, text string) (string, error)

	// SendDirectMessage opens (or reuses) a DM with the user and posts to it
	SendDirectMessage(ctx context.Context, userID string, blocks []slack.Block, text string) error

	// Respond answers a slash command through its response_url
	Respond(ctx context.Context, responseURL string, text string, inChannel bool) error
}

// User represents a Slack user
type User struct {
	ID       string
	Name     string
	RealName string
	Deleted  bool
	IsBot    bool
}

// DisplayName returns the real name if set, otherwise the handle
func (u *User) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}
