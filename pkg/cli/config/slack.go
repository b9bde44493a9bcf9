package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	slacksvc "github.com/secmon-lab/moderato/pkg/service/slack"
	"github.com/urfave/cli/v3"
)

type Slack struct {
	botToken      string
	signingSecret string
	apiURL        string
	userCacheTTL  time.Duration
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token (modlog posts, DMs, member lookup)",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("MODERATO_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack Signing Secret (for slash command verification)",
			Category:    "Slack",
			Destination: &x.signingSecret,
			Sources:     cli.EnvVars("MODERATO_SLACK_SIGNING_SECRET"),
		},
		&cli.StringFlag{
			Name:        "slack-api-url",
			Usage:       "Override the Slack API base URL",
			Category:    "Slack",
			Destination: &x.apiURL,
			Sources:     cli.EnvVars("MODERATO_SLACK_API_URL"),
		},
		&cli.DurationFlag{
			Name:        "slack-user-cache-ttl",
			Usage:       "TTL of cached Slack user lookups",
			Category:    "Slack",
			Value:       slacksvc.DefaultCacheTTL,
			Destination: &x.userCacheTTL,
			Sources:     cli.EnvVars("MODERATO_SLACK_USER_CACHE_TTL"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.Int("signing-secret.len", len(x.signingSecret)),
		slog.String("api-url", x.apiURL),
	)
}

// IsConfigured reports whether a bot token is set
func (x *Slack) IsConfigured() bool {
	return x.botToken != ""
}

// IsCommandConfigured reports whether slash commands can be verified
func (x *Slack) IsCommandConfigured() bool {
	return x.signingSecret != ""
}

// SigningSecret returns the Slack signing secret
func (x *Slack) SigningSecret() string {
	return x.signingSecret
}

// Configure creates the Slack API client. It returns nil without a bot token.
func (x *Slack) Configure() (slacksvc.Service, error) {
	if !x.IsConfigured() {
		return nil, nil
	}

	opts := []slacksvc.Option{slacksvc.WithCacheTTL(x.userCacheTTL)}
	if x.apiURL != "" {
		opts = append(opts, slacksvc.WithAPIURL(x.apiURL))
	}

	svc, err := slacksvc.New(x.botToken, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create slack client")
	}
	return svc, nil
}
