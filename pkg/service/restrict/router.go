package restrict

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

// ErrPlatformNotSupported is returned when no restrictor is routed for the guild's platform
var ErrPlatformNotSupported = goerr.New("no restrictor for platform")

// Router picks a Restrictor by the guild's platform
type Router map[types.Platform]interfaces.Restrictor

var (
	_ interfaces.Restrictor        = Router{}
	_ interfaces.RestrictorChecker = Router{}
)

func (r Router) pick(guild *model.GuildSettings) (interfaces.Restrictor, error) {
	target, ok := r[guild.Platform]
	if !ok {
		return nil, goerr.Wrap(ErrPlatformNotSupported, "cannot route restriction",
			goerr.V("guild_id", guild.ID), goerr.V("platform", guild.Platform))
	}
	return target, nil
}

// Check fails when the platform has no route, and otherwise delegates to the
// routed restrictor if it can check itself.
func (r Router) Check(guild *model.GuildSettings) error {
	target, err := r.pick(guild)
	if err != nil {
		return err
	}
	if checker, ok := target.(interfaces.RestrictorChecker); ok {
		return checker.Check(guild)
	}
	return nil
}

func (r Router) Apply(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error {
	target, err := r.pick(guild)
	if err != nil {
		return err
	}
	return target.Apply(ctx, guild, subject, reason)
}

func (r Router) Remove(ctx context.Context, guild *model.GuildSettings, subject types.SubjectID, reason string) error {
	target, err := r.pick(guild)
	if err != nil {
		return err
	}
	return target.Remove(ctx, guild, subject, reason)
}
