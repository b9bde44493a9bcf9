package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/cli/config"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func cmdList() *cli.Command {
	var repoCfg config.Repository
	var guildCfg config.Guild
	var guildID string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "guild",
			Usage:       "Only list actions of this guild",
			Destination: &guildID,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, guildCfg.Flags()...)

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List active moderation actions",
		Flags:   flags,
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

			targets := []types.GuildID{types.GuildID(guildID)}
			if guildID == "" {
				targets = targets[:0]
				for _, g := range guilds.List() {
					targets = append(targets, g.ID)
				}
			}

			var records []*model.ActionRecord
			for _, id := range targets {
				found, err := repo.ActionRecord().ListByGuild(ctx, id)
				if err != nil {
					return goerr.Wrap(err, "failed to list actions", goerr.V("guild_id", id))
				}
				records = append(records, found...)
			}

			printActions(color.Output, records, time.Now())
			return nil
		},
	}
}

var (
	permanentColor = color.New(color.FgRed, color.Bold)
	overdueColor   = color.New(color.FgYellow)
	timedColor     = color.New(color.FgGreen)
	headerColor    = color.New(color.Bold, color.Underline)
)

// printActions writes one line per record. Overdue records are waiting for
// the next sweep.
func printActions(w io.Writer, records []*model.ActionRecord, now time.Time) {
	if len(records) == 0 {
		_, _ = fmt.Fprintln(w, "No active actions")
		return
	}

	_, _ = headerColor.Fprintf(w, "%-12s %-14s %-6s %-28s %s\n", "GUILD", "SUBJECT", "KIND", "EXPIRES", "REASON")
	for _, rec := range records {
		var expires string
		var c *color.Color
		switch {
		case rec.IsPermanent():
			expires, c = "permanent", permanentColor
		case rec.IsDue(now):
			expires, c = "overdue since "+rec.ExpiresAt.Format(time.DateTime), overdueColor
		default:
			expires = "in " + model.HumanizeDuration(rec.ExpiresAt.Sub(now).Truncate(time.Second))
			c = timedColor
		}

		_, _ = fmt.Fprintf(w, "%-12s %-14s %-6s ", rec.GuildID, rec.SubjectID, rec.Kind)
		_, _ = c.Fprintf(w, "%-28s", expires)
		_, _ = fmt.Fprintf(w, " %s\n", rec.Reason)
	}
}
