package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/usecase"
	"github.com/secmon-lab/moderato/pkg/utils/errutil"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"github.com/secmon-lab/moderato/pkg/utils/safe"
)

// ActionLister serves the admin listing
type ActionLister interface {
	ListActive(ctx context.Context, guildID types.GuildID) ([]*model.ActionRecord, error)
}

// CommandExecutor runs a parsed moderation command
type CommandExecutor interface {
	Execute(ctx context.Context, cmd *usecase.Command) (*usecase.Reply, error)
}

// Responder posts a reply to a Slack response_url
type Responder func(ctx context.Context, responseURL, text string, inChannel bool) error

type Server struct {
	router             *chi.Mux
	actions            ActionLister
	adminToken         string
	commands           CommandExecutor
	slackSigningSecret string
	respond            Responder
}

type Options func(*Server)

// WithAdminAPI enables /api. Requests must carry "Authorization: Bearer <token>".
func WithAdminAPI(actions ActionLister, token string) Options {
	return func(s *Server) {
		s.actions = actions
		s.adminToken = token
	}
}

// WithSlackCommand enables /hooks/slack/command
func WithSlackCommand(commands CommandExecutor, signingSecret string, respond Responder) Options {
	return func(s *Server) {
		s.commands = commands
		s.slackSigningSecret = signingSecret
		s.respond = respond
	}
}

func New(opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{router: r}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthHandler)

	if s.actions != nil {
		r.Route("/api", func(r chi.Router) {
			r.Use(adminAuthMiddleware(s.adminToken))
			r.Get("/guilds/{guildID}/actions", actionsHandler(s.actions))
		})
	}

	// No auth required, uses signature verification
	if s.commands != nil {
		r.Route("/hooks/slack", func(r chi.Router) {
			r.Use(SlackSignatureMiddleware(s.slackSigningSecret))
			r.Post("/command", slashCommandHandler(s.commands, s.respond))
		})
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	safe.Write(r.Context(), w, []byte("ok"))
}

type actionResponse struct {
	GuildID   string     `json:"guild_id"`
	SubjectID string     `json:"subject_id"`
	Kind      string     `json:"kind"`
	CaseRef   string     `json:"case_ref,omitempty"`
	ActorID   string     `json:"actor_id"`
	AppliedAt time.Time  `json:"applied_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
}

// actionsHandler returns a handler that serves the active actions of a guild as JSON
func actionsHandler(actions ActionLister) http.HandlerFunc {
	type response struct {
		Actions []actionResponse `json:"actions"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		guildID := types.GuildID(chi.URLParam(r, "guildID"))
		if err := guildID.Validate(); err != nil {
			errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
			return
		}

		records, err := actions.ListActive(ctx, guildID)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to list actions"), http.StatusInternalServerError)
			return
		}

		resp := response{Actions: make([]actionResponse, len(records))}
		for i, rec := range records {
			resp.Actions[i] = actionResponse{
				GuildID:   string(rec.GuildID),
				SubjectID: string(rec.SubjectID),
				Kind:      string(rec.Kind),
				CaseRef:   string(rec.CaseRef),
				ActorID:   string(rec.ActorID),
				AppliedAt: rec.AppliedAt,
				ExpiresAt: rec.ExpiresAt,
				Reason:    rec.Reason,
			}
		}

		data, err := json.Marshal(resp)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to marshal actions response"), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		safe.Write(ctx, w, data)
	}
}
