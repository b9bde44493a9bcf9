package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/service/telegram"
	"github.com/urfave/cli/v3"
)

type Telegram struct {
	token       string
	endpoint    string
	pollTimeout int
}

func (x *Telegram) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "telegram-token",
			Usage:       "Telegram bot token. Telegram guilds run in dry mode without it",
			Category:    "Telegram",
			Destination: &x.token,
			Sources:     cli.EnvVars("MODERATO_TELEGRAM_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "telegram-endpoint",
			Usage:       "Bot API endpoint format",
			Category:    "Telegram",
			Destination: &x.endpoint,
			Sources:     cli.EnvVars("MODERATO_TELEGRAM_ENDPOINT"),
		},
		&cli.IntFlag{
			Name:        "telegram-poll-timeout",
			Usage:       "Long polling timeout in seconds",
			Category:    "Telegram",
			Value:       30,
			Destination: &x.pollTimeout,
			Sources:     cli.EnvVars("MODERATO_TELEGRAM_POLL_TIMEOUT"),
		},
	}
}

func (x Telegram) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("token.len", len(x.token)),
		slog.String("endpoint", x.endpoint),
		slog.Int("poll-timeout", x.pollTimeout),
	)
}

// IsConfigured reports whether a bot token is set
func (x *Telegram) IsConfigured() bool {
	return x.token != ""
}

// Configure creates the Telegram client, in dry mode when no token is set
func (x *Telegram) Configure() (*telegram.Client, error) {
	opts := []telegram.Option{telegram.WithPollTimeout(x.pollTimeout)}
	if x.endpoint != "" {
		opts = append(opts, telegram.WithEndpoint(x.endpoint))
	}

	client, err := telegram.New(x.token, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create telegram client")
	}
	return client, nil
}
