package cli

import (
	"context"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/cli/config"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/service/archive"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"github.com/secmon-lab/moderato/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdArchive() *cli.Command {
	var repoCfg config.Repository
	var guildCfg config.Guild
	var bucket string
	var prefix string
	var guildID string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket to write the archive to",
			Required:    true,
			Sources:     cli.EnvVars("MODERATO_ARCHIVE_BUCKET"),
			Destination: &bucket,
		},
		&cli.StringFlag{
			Name:        "prefix",
			Usage:       "Object name prefix",
			Value:       "moderato",
			Sources:     cli.EnvVars("MODERATO_ARCHIVE_PREFIX"),
			Destination: &prefix,
		},
		&cli.StringFlag{
			Name:        "guild",
			Usage:       "Only archive this guild",
			Destination: &guildID,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, guildCfg.Flags()...)

	return &cli.Command{
		Name:  "archive",
		Usage: "Export modlog cases and active actions as JSON Lines to Cloud Storage",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			guilds, err := guildCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load guild settings")
			}

			repo, closer, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer closer()

			client, err := storage.NewClient(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to create storage client")
			}
			defer safe.Close(ctx, client)

			svc := archive.New(repo, archive.NewGCSSink(client, bucket), archive.WithPrefix(prefix))

			targets := []types.GuildID{types.GuildID(guildID)}
			if guildID == "" {
				targets = targets[:0]
				for _, g := range guilds.List() {
					targets = append(targets, g.ID)
				}
			}

			for _, id := range targets {
				result, err := svc.Export(ctx, id)
				if err != nil {
					return goerr.Wrap(err, "failed to archive guild", goerr.V("guild_id", id))
				}
				logging.Default().Info("Archived guild",
					"guild_id", id,
					"bucket", bucket,
					"objects", result.Objects,
				)
			}
			return nil
		},
	}
}
