package config

import "errors"

var (
	ErrGuildConfigNotFound = errors.New("guild configuration file not found")
	ErrInvalidGuildConfig  = errors.New("invalid guild configuration")
	ErrDuplicateGuild      = errors.New("duplicate guild ID")
	ErrInvalidBackend      = errors.New("invalid repository backend")
	ErrMissingOption       = errors.New("required option is missing")
	ErrInvalidLogOption    = errors.New("invalid logger option")
)

// Context keys for error values
const (
	ConfigPathKey = "config_path"
	GuildIDKey    = "guild_id"
	GuildIndexKey = "guild_index"
	BackendKey    = "backend"
	OptionKey     = "option"
)
