// Package restrict holds platform independent Restrictor implementations
package restrict

import (
	"context"
	"log/slog"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

// ErrMuteRoleMissing is returned when the guild has no mute role configured
var ErrMuteRoleMissing = goerr.New("mute role is not configured")

type roleKey struct {
	guild   types.GuildID
	subject types.SubjectID
	role    string
}

// RoleSet restricts members by granting the guild's mute role in an in-process
// role table. It backs development mode and platforms without a native mute.
type RoleSet struct {
	mu    sync.Mutex
	roles map[roleKey]struct{}
}

var (
	_ interfaces.Restrictor        = &RoleSet{}
	_ interfaces.RestrictorChecker = &RoleSet{}
)

func NewRoleSet() *RoleSet {
	return &RoleSet{roles: make(map[roleKey]struct{})}
}

func (r *RoleSet) key(guild *model.GuildSettings, subject types.SubjectID) (roleKey, error) {
	if guild.MuteRole == "" {
		return roleKey{}, goerr.Wrap(ErrMuteRoleMissing, "cannot restrict", goerr.V("guild_id", guild.ID))
	}
	return roleKey{guild: guild.ID, subject: subject, role: guild.MuteRole}, nil
}

// Check reports ErrMuteRoleMissing when the guild has no mute role
func (r *RoleSet) Check(guild *model.GuildSettings) error {
	_, err := r.key(guild, "")
	return err
}

func (r *RoleSet) Apply(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error {
	k, err := r.key(guild, subject)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[k]; ok {
		return goerr.Wrap(interfaces.ErrAlreadyInState, "mute role already granted",
			goerr.V("guild_id", guild.ID), goerr.V("subject_id", subject))
	}
	r.roles[k] = struct{}{}

	logging.From(ctx).Debug("granted mute role",
		slog.String("guild_id", string(guild.ID)),
		slog.String("subject_id", string(subject)),
		slog.String("role", guild.MuteRole))
	return nil
}

func (r *RoleSet) Remove(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error {
	k, err := r.key(guild, subject)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roles[k]; !ok {
		return goerr.Wrap(interfaces.ErrAlreadyInState, "mute role not granted",
			goerr.V("guild_id", guild.ID), goerr.V("subject_id", subject))
	}
	delete(r.roles, k)

	logging.From(ctx).Debug("revoked mute role",
		slog.String("guild_id", string(guild.ID)),
		slog.String("subject_id", string(subject)),
		slog.String("role", guild.MuteRole))
	return nil
}

// Has reports whether the subject currently holds the guild's mute role
func (r *RoleSet) Has(guild *model.GuildSettings, subject types.SubjectID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.roles[roleKey{guild: guild.ID, subject: subject, role: guild.MuteRole}]
	return ok
}
