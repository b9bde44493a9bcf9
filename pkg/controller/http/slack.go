package http

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	slacksvc "github.com/secmon-lab/moderato/pkg/service/slack"
	"github.com/secmon-lab/moderato/pkg/usecase"
	"github.com/secmon-lab/moderato/pkg/utils/async"
	"github.com/secmon-lab/moderato/pkg/utils/errutil"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"github.com/slack-go/slack"
)

// SlackSignatureMiddleware creates a middleware that verifies Slack request signatures
func SlackSignatureMiddleware(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read request body"), http.StatusBadRequest)
				return
			}
			defer func() {
				if err := r.Body.Close(); err != nil {
					logging.From(ctx).Error("failed to close request body", "error", err)
				}
			}()

			// Rejects missing headers and timestamps older than five minutes
			sv, err := slack.NewSecretsVerifier(r.Header, signingSecret)
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "slack signature verification failed"), http.StatusUnauthorized)
				return
			}
			if _, err := sv.Write(body); err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to hash request body"), http.StatusInternalServerError)
				return
			}
			if err := sv.Ensure(); err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "slack signature verification failed"), http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewBuffer(body))
			next.ServeHTTP(w, r)
		})
	}
}

// parseSlashCommand maps "/mute <@U123|name> 1d spam" to a Command. The
// Slack workspace is the guild.
func parseSlashCommand(sc *slack.SlashCommand) *usecase.Command {
	cmd := &usecase.Command{
		Name:    strings.TrimPrefix(sc.Command, "/"),
		Guild:   types.GuildID(sc.TeamID),
		Actor:   types.ActorID(sc.UserID),
		Mention: slacksvc.Mention,
	}

	fields := strings.Fields(sc.Text)
	if len(fields) == 0 {
		return cmd
	}
	if subject, ok := slacksvc.ParseUserMention(fields[0]); ok {
		cmd.Subject = subject
		cmd.Args = fields[1:]
	}
	return cmd
}

// slashCommandHandler acknowledges at once to satisfy Slack's 3-second
// timeout and sends the reply to response_url when the command finishes
func slashCommandHandler(commands CommandExecutor, respond Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sc, err := slack.SlashCommandParse(r)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to parse slash command"), http.StatusBadRequest)
			return
		}

		cmd := parseSlashCommand(&sc)
		if !usecase.IsCommand(cmd.Name) {
			errutil.HandleHTTP(ctx, w, goerr.New("unsupported slash command", goerr.V("command", sc.Command)), http.StatusBadRequest)
			return
		}

		w.WriteHeader(http.StatusOK)

		async.Dispatch(ctx, func(ctx context.Context) error {
			logging.From(ctx).Info("processing slash command",
				"command", cmd.Name,
				"team_id", sc.TeamID,
				"user_id", sc.UserID,
			)

			reply, err := commands.Execute(ctx, cmd)
			if err != nil && !usecase.IsInformational(err) {
				_ = errutil.Handle(ctx, err, "slash command failed")
			}

			if respond == nil || sc.ResponseURL == "" {
				return nil
			}
			if err := respond(ctx, sc.ResponseURL, reply.Text, reply.Public); err != nil {
				return goerr.Wrap(err, "failed to send slash command reply", goerr.V("command", cmd.Name))
			}
			return nil
		})
	}
}
