package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// GuildFile is the TOML layout of the guild settings file
//
//	[[guild]]
//	id = "T0123"
//	platform = "slack"
//	modlog_channel = "C0123"
//	mute_role = "muted"
type GuildFile struct {
	Guilds []*model.GuildSettings `toml:"guild"`
}

// Validate checks every guild and rejects duplicated IDs
func (f *GuildFile) Validate() error {
	seen := make(map[types.GuildID]bool, len(f.Guilds))
	for i, g := range f.Guilds {
		if g == nil {
			return goerr.Wrap(ErrInvalidGuildConfig, "empty guild entry", goerr.V(GuildIndexKey, i))
		}
		if err := g.Validate(); err != nil {
			return goerr.Wrap(errors.Join(ErrInvalidGuildConfig, err), "invalid guild",
				goerr.V(GuildIndexKey, i), goerr.V(GuildIDKey, g.ID))
		}
		if seen[g.ID] {
			return goerr.Wrap(ErrDuplicateGuild, "guild ID appears twice",
				goerr.V(GuildIndexKey, i), goerr.V(GuildIDKey, g.ID))
		}
		seen[g.ID] = true

		if !g.HasModlog() {
			logging.Default().Warn("guild has no modlog channel, moderation commands will be refused", "guild_id", g.ID)
		}
	}
	return nil
}

// LoadGuildFile reads and validates the guild settings file
func LoadGuildFile(path string) (*GuildFile, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(ErrGuildConfigNotFound, "guild file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read guild file", goerr.V(ConfigPathKey, path))
	}

	var file GuildFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(errors.Join(ErrInvalidGuildConfig, err), "failed to parse TOML guild file", goerr.V(ConfigPathKey, path))
	}

	if err := file.Validate(); err != nil {
		return nil, goerr.Wrap(err, "guild file validation failed", goerr.V(ConfigPathKey, path))
	}

	return &file, nil
}

type Guild struct {
	path string
}

func (x *Guild) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "guild-config",
			Aliases:     []string{"g"},
			Usage:       "Path to the guild settings TOML file",
			Category:    "Guild",
			Value:       "./moderato.toml",
			Destination: &x.path,
			Sources:     cli.EnvVars("MODERATO_GUILD_CONFIG"),
		},
	}
}

// Configure loads the guild file into a registry
func (x *Guild) Configure() (*model.GuildRegistry, error) {
	file, err := LoadGuildFile(x.path)
	if err != nil {
		return nil, err
	}

	reg, err := model.NewGuildRegistry(file.Guilds...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build guild registry", goerr.V(ConfigPathKey, x.path))
	}
	return reg, nil
}
