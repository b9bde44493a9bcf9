package cli_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/moderato/pkg/cli"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

const guildTOML = `
[[guild]]
id = "T0123"
platform = "slack"
modlog_channel = "C0123"
mute_role = "muted"

[[guild]]
id = "-1001234"
platform = "telegram"
modlog_channel = "-1001234"
`

func TestRun_Sweep(t *testing.T) {
	prev := logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	dir := t.TempDir()
	guildPath := filepath.Join(dir, "moderato.toml")
	gt.NoError(t, os.WriteFile(guildPath, []byte(guildTOML), 0600)).Required()

	err := cli.Run(context.Background(), []string{
		"moderato",
		"--log-output", filepath.Join(dir, "moderato.log"),
		"sweep",
		"--repository-backend", "sqlite",
		"--sqlite-path", filepath.Join(dir, "moderato.db"),
		"--guild-config", guildPath,
	}, "test")
	gt.NoError(t, err)

	logs, err := os.ReadFile(filepath.Join(dir, "moderato.log"))
	gt.NoError(t, err).Required()
	gt.String(t, string(logs)).Contains("in-process mute role table")
}

func TestRun_MissingGuildConfig(t *testing.T) {
	prev := logging.Default()
	t.Cleanup(func() { logging.SetDefault(prev) })

	dir := t.TempDir()
	err := cli.Run(context.Background(), []string{
		"moderato",
		"--log-output", filepath.Join(dir, "moderato.log"),
		"sweep",
		"--repository-backend", "memory",
		"--guild-config", filepath.Join(dir, "missing.toml"),
	}, "test")
	gt.Value(t, err).NotNil()
}

func TestPrintActions(t *testing.T) {
	color.NoColor = true
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(90 * time.Minute)
	past := now.Add(-time.Minute)

	records := []*model.ActionRecord{
		{GuildID: "T0123", SubjectID: "U1", Kind: types.ActionKindMute, AppliedAt: now.Add(-time.Hour), Reason: "spam"},
		{GuildID: "T0123", SubjectID: "U2", Kind: types.ActionKindMute, AppliedAt: now.Add(-time.Hour), ExpiresAt: &soon, Reason: "flood"},
		{GuildID: "T0123", SubjectID: "U3", Kind: types.ActionKindMute, AppliedAt: now.Add(-time.Hour), ExpiresAt: &past, Reason: "late"},
	}

	var buf bytes.Buffer
	cli.PrintActions(&buf, records, now)
	out := buf.String()

	gt.String(t, out).Contains("GUILD")
	gt.String(t, out).Contains("permanent")
	gt.String(t, out).Contains("in 1 hour 30 minutes")
	gt.String(t, out).Contains("overdue since 2026-03-01 11:59:00")
	gt.String(t, out).Contains("flood")
}

func TestPrintActions_Empty(t *testing.T) {
	var buf bytes.Buffer
	cli.PrintActions(&buf, nil, time.Now())
	gt.Value(t, buf.String()).Equal("No active actions\n")
}
