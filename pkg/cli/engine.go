package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/cli/config"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/service/modlog"
	"github.com/secmon-lab/moderato/pkg/service/restrict"
	slacksvc "github.com/secmon-lab/moderato/pkg/service/slack"
	"github.com/secmon-lab/moderato/pkg/service/telegram"
	"github.com/secmon-lab/moderato/pkg/service/worker"
	"github.com/secmon-lab/moderato/pkg/usecase"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// engineConfig is the flag set shared by commands that run state transitions
type engineConfig struct {
	repo     config.Repository
	guild    config.Guild
	slack    config.Slack
	telegram config.Telegram
	engine   config.Engine
}

func (x *engineConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, x.repo.Flags()...)
	flags = append(flags, x.guild.Flags()...)
	flags = append(flags, x.slack.Flags()...)
	flags = append(flags, x.telegram.Flags()...)
	flags = append(flags, x.engine.Flags()...)
	return flags
}

// engine is the wired moderation core
type engine struct {
	repo     interfaces.Repository
	guilds   *model.GuildRegistry
	uc       *usecase.UseCases
	sweeper  *worker.ExpirySweeper
	slack    slacksvc.Service
	telegram *telegram.Client

	closer func()
}

func (e *engine) Close() {
	if e.closer != nil {
		e.closer()
	}
}

func hasPlatform(guilds *model.GuildRegistry, platform types.Platform) bool {
	for _, g := range guilds.List() {
		if g.Platform == platform {
			return true
		}
	}
	return false
}

// build connects the repository and chat platforms and wires the use cases.
// The caller must Close the returned engine.
func (x *engineConfig) build(ctx context.Context) (*engine, error) {
	logger := logging.Default()

	guilds, err := x.guild.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load guild settings")
	}

	repo, closeRepo, err := x.repo.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}

	e := &engine{repo: repo, guilds: guilds, closer: closeRepo}

	router := restrict.Router{}
	modlogOpts := []modlog.Option{}
	ucOpts := x.engine.UseCaseOptions()

	if hasPlatform(guilds, types.PlatformSlack) {
		// Slack has no native mute; members get the guild's mute role
		router[types.PlatformSlack] = restrict.NewRoleSet()
		logger.Warn("Slack mutes are kept in an in-process mute role table; members are not restricted on Slack and the table is lost on restart")

		svc, err := x.slack.Configure()
		if err != nil {
			e.Close()
			return nil, err
		}
		if svc != nil {
			e.slack = svc
			m := slacksvc.NewModeration(svc)
			modlogOpts = append(modlogOpts, modlog.WithMessenger(types.PlatformSlack, m))
			ucOpts = append(ucOpts, usecase.WithSubjectResolver(types.PlatformSlack, m))
			logger.Info("Slack moderation enabled")
		} else {
			logger.Warn("Slack bot token is not set, modlog entries for Slack guilds are stored only")
		}
	}

	if hasPlatform(guilds, types.PlatformTelegram) || x.telegram.IsConfigured() {
		client, err := x.telegram.Configure()
		if err != nil {
			e.Close()
			return nil, err
		}
		e.telegram = client
		m := telegram.NewModeration(client)
		router[types.PlatformTelegram] = m
		modlogOpts = append(modlogOpts, modlog.WithMessenger(types.PlatformTelegram, m))
		ucOpts = append(ucOpts, usecase.WithSubjectResolver(types.PlatformTelegram, m))
		logger.Info("Telegram moderation enabled", "dry_run", client.DryRun())
	}

	audit := modlog.New(repo.Modlog(), guilds, modlogOpts...)
	ucOpts = append(ucOpts, usecase.WithRestrictor(types.ActionKindMute, router))

	e.uc = usecase.New(repo, guilds, audit, ucOpts...)
	e.sweeper = worker.NewExpirySweeper(e.uc.Moderation, x.engine.SweeperOptions()...)

	logger.Info("Engine configured",
		"guilds", len(guilds.List()),
		"repository", x.repo,
		"engine", x.engine,
	)
	return e, nil
}
