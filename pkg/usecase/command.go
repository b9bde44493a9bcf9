package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

const (
	CommandMute   = "mute"
	CommandRemute = "remute"
	CommandUnmute = "unmute"
)

var commandUsage = map[string]string{
	CommandMute:   "mute @member [duration] [reason]",
	CommandRemute: "remute @member [duration] [reason]",
	CommandUnmute: "unmute @member [reason]",
}

// Command is a parsed moderation command. Transports resolve the subject
// token themselves and pass the remaining words in Args.
type Command struct {
	Name    string
	Guild   types.GuildID
	Actor   types.ActorID
	Subject types.SubjectID
	Args    []string

	// Mention renders the subject for replies. Defaults to the raw ID.
	Mention func(types.SubjectID) string
}

// Reply is the text sent back to the issuer. Public replies are visible to the channel.
type Reply struct {
	Text   string
	Public bool
}

type CommandUseCase struct {
	moderation *ModerationUseCase
	guilds     *model.GuildRegistry
}

func NewCommandUseCase(moderation *ModerationUseCase, guilds *model.GuildRegistry) *CommandUseCase {
	return &CommandUseCase{moderation: moderation, guilds: guilds}
}

// IsCommand reports whether name is a moderation command
func IsCommand(name string) bool {
	_, ok := commandUsage[strings.ToLower(name)]
	return ok
}

// Usage returns the syntax line of the command
func Usage(name string) string {
	return "Usage: " + commandUsage[strings.ToLower(name)]
}

// Execute runs the command and always returns a reply. The error is set when
// the transition failed, so callers can log it; informational outcomes such as
// ErrAlreadyActive are returned too.
func (uc *CommandUseCase) Execute(ctx context.Context, cmd *Command) (*Reply, error) {
	name := strings.ToLower(cmd.Name)
	if !IsCommand(name) {
		return &Reply{Text: "Unknown command: " + cmd.Name}, goerr.New("unknown command", goerr.V("command", cmd.Name))
	}

	mention := cmd.Mention
	if mention == nil {
		mention = func(s types.SubjectID) string { return string(s) }
	}

	if cmd.Subject == "" {
		return &Reply{Text: Usage(name)}, goerr.Wrap(ErrInvalidSubject, "no subject given", goerr.V("command", name))
	}

	if guild := uc.guilds.Get(cmd.Guild); guild != nil && !guild.IsModerator(cmd.Actor) {
		return &Reply{Text: "You are not allowed to use this command."},
			goerr.Wrap(ErrPermissionDenied, "actor is not a moderator", goerr.V(GuildIDKey, cmd.Guild), goerr.V(ActorIDKey, cmd.Actor))
	}

	subject := mention(cmd.Subject)

	switch name {
	case CommandMute, CommandRemute:
		dur, ok, rest := model.SplitDuration(cmd.Args)
		in := ApplyInput{
			Guild:   cmd.Guild,
			Subject: cmd.Subject,
			Kind:    types.ActionKindMute,
			Actor:   cmd.Actor,
			Reason:  strings.Join(rest, " "),
			Reapply: name == CommandRemute,
		}
		if ok {
			in.Duration = &dur
		}

		if _, err := uc.moderation.Apply(ctx, in); err != nil {
			return &Reply{Text: failureText(err, subject, "muted")}, err
		}
		if in.Duration == nil {
			return &Reply{Text: fmt.Sprintf("%s has been muted permanently!", subject), Public: true}, nil
		}
		return &Reply{Text: fmt.Sprintf("%s has been muted for %s!", subject, model.HumanizeDuration(*in.Duration)), Public: true}, nil

	default:
		in := LiftInput{
			Guild:   cmd.Guild,
			Subject: cmd.Subject,
			Kind:    types.ActionKindMute,
			Actor:   cmd.Actor,
			Reason:  strings.Join(cmd.Args, " "),
		}
		if _, err := uc.moderation.ManualLift(ctx, in); err != nil {
			return &Reply{Text: failureText(err, subject, "unmuted")}, err
		}
		return &Reply{Text: fmt.Sprintf("%s has been unmuted!", subject), Public: true}, nil
	}
}

// IsInformational reports whether err is an expected outcome rather than a failure
func IsInformational(err error) bool {
	return errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrNotActive) ||
		errors.Is(err, ErrInvalidSubject) ||
		errors.Is(err, ErrPermissionDenied)
}

func failureText(err error, subject, done string) string {
	switch {
	case errors.Is(err, ErrAlreadyActive):
		return fmt.Sprintf("%s is already muted. Use remute to change the duration.", subject)
	case errors.Is(err, ErrNotActive):
		return fmt.Sprintf("%s is not muted.", subject)
	case errors.Is(err, ErrInvalidSubject):
		return "I could not find that member."
	case errors.Is(err, ErrInvalidDuration):
		return "The duration must be positive."
	case errors.Is(err, ErrConfigurationMissing):
		return "Moderation is not set up here. Ask an administrator to configure a modlog channel and a mute role."
	case errors.Is(err, ErrExternalMutationFailed):
		return fmt.Sprintf("I could not change the permissions of %s. Please try again.", subject)
	case errors.Is(err, ErrPersistenceFailed):
		return fmt.Sprintf("%s has been %s, but saving the action failed. It will be retried automatically.", subject, done)
	default:
		return "Something went wrong. Please try again later."
	}
}
