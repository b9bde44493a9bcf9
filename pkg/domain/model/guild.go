package model

import (
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

// GuildSettings is the per guild moderation configuration
type GuildSettings struct {
	ID             types.GuildID  `toml:"id" json:"id"`
	Name           string         `toml:"name" json:"name"`
	Platform       types.Platform `toml:"platform" json:"platform"`
	ModlogChannel  string         `toml:"modlog_channel" json:"modlog_channel"`
	MuteRole       string         `toml:"mute_role" json:"mute_role"`
	NotifySubjects bool           `toml:"notify_subjects" json:"notify_subjects"`
	Moderators     []string       `toml:"moderators" json:"moderators"`
}

// Validate checks fields that do not depend on the restrictor in use
func (g *GuildSettings) Validate() error {
	if err := g.ID.Validate(); err != nil {
		return err
	}
	if !g.Platform.IsValid() {
		return goerr.New("unsupported platform", goerr.V("guild_id", g.ID), goerr.V("platform", g.Platform))
	}
	return nil
}

// HasModlog reports whether a modlog channel is configured
func (g *GuildSettings) HasModlog() bool {
	return g.ModlogChannel != ""
}

// IsModerator reports whether actor may issue moderation commands. An empty
// moderator list allows everyone; platform side permissions still apply.
func (g *GuildSettings) IsModerator(actor types.ActorID) bool {
	if len(g.Moderators) == 0 {
		return true
	}
	for _, m := range g.Moderators {
		if m == string(actor) {
			return true
		}
	}
	return false
}

// GuildRegistry is a concurrency safe lookup of guild settings
type GuildRegistry struct {
	mu     sync.RWMutex
	guilds map[types.GuildID]*GuildSettings
}

func NewGuildRegistry(guilds ...*GuildSettings) (*GuildRegistry, error) {
	r := &GuildRegistry{guilds: make(map[types.GuildID]*GuildSettings)}
	for _, g := range guilds {
		if err := r.Put(g); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Put validates and stores settings, replacing existing ones for the same guild
func (r *GuildRegistry) Put(g *GuildSettings) error {
	if g == nil {
		return goerr.New("guild settings is nil")
	}
	if err := g.Validate(); err != nil {
		return err
	}

	copied := *g
	copied.Moderators = append([]string(nil), g.Moderators...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.guilds[g.ID] = &copied
	return nil
}

// Get returns the settings or nil when the guild is not configured
func (r *GuildRegistry) Get(id types.GuildID) *GuildSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.guilds[id]
	if !ok {
		return nil
	}
	copied := *g
	return &copied
}

// List returns all guilds ordered by ID
func (r *GuildRegistry) List() []*GuildSettings {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*GuildSettings, 0, len(r.guilds))
	for _, g := range r.guilds {
		copied := *g
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}
