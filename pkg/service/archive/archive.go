// Package archive exports modlog cases and active actions as JSON Lines
// objects, by default to Cloud Storage.
package archive

import (
	"context"
	"encoding/json"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
	"github.com/secmon-lab/moderato/pkg/utils/safe"
)

// Sink creates writable objects by name
type Sink interface {
	NewWriter(ctx context.Context, name string) (io.WriteCloser, error)
}

// GCSSink writes objects to a Cloud Storage bucket
type GCSSink struct {
	bucket *storage.BucketHandle
}

func NewGCSSink(client *storage.Client, bucket string) *GCSSink {
	return &GCSSink{bucket: client.Bucket(bucket)}
}

func (s *GCSSink) NewWriter(ctx context.Context, name string) (io.WriteCloser, error) {
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = "application/x-ndjson"
	return w, nil
}

type Service struct {
	repo   interfaces.Repository
	sink   Sink
	prefix string
	now    func() time.Time
}

type Option func(*Service)

func WithPrefix(prefix string) Option {
	return func(s *Service) {
		s.prefix = prefix
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(repo interfaces.Repository, sink Sink, opts ...Option) *Service {
	s := &Service{
		repo: repo,
		sink: sink,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result lists the objects written by Export
type Result struct {
	Objects []string
	Cases   int
	Actions int
}

type caseLine struct {
	CaseRef   string     `json:"case_ref"`
	GuildID   string     `json:"guild_id"`
	SubjectID string     `json:"subject_id"`
	ActorID   string     `json:"actor_id"`
	Type      string     `json:"type"`
	Reason    string     `json:"reason"`
	Details   string     `json:"details,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedBy  string     `json:"closed_by,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

type actionLine struct {
	GuildID   string     `json:"guild_id"`
	SubjectID string     `json:"subject_id"`
	Kind      string     `json:"kind"`
	CaseRef   string     `json:"case_ref,omitempty"`
	ActorID   string     `json:"actor_id"`
	AppliedAt time.Time  `json:"applied_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Reason    string     `json:"reason"`
}

// Export writes <prefix>/<guild>/<timestamp>/modlog.jsonl and actions.jsonl
func (s *Service) Export(ctx context.Context, guildID types.GuildID) (*Result, error) {
	cases, err := s.repo.Modlog().ListByGuild(ctx, guildID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list modlog cases", goerr.V("guild_id", guildID))
	}
	actions, err := s.repo.ActionRecord().ListByGuild(ctx, guildID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list action records", goerr.V("guild_id", guildID))
	}

	dir := path.Join(s.prefix, string(guildID), s.now().UTC().Format("20060102T150405Z"))
	result := &Result{Cases: len(cases), Actions: len(actions)}

	caseLines := make([]any, 0, len(cases))
	for _, c := range cases {
		caseLines = append(caseLines, toCaseLine(c))
	}
	name := path.Join(dir, "modlog.jsonl")
	if err := s.write(ctx, name, caseLines); err != nil {
		return nil, err
	}
	result.Objects = append(result.Objects, name)

	actionLines := make([]any, 0, len(actions))
	for _, a := range actions {
		actionLines = append(actionLines, toActionLine(a))
	}
	name = path.Join(dir, "actions.jsonl")
	if err := s.write(ctx, name, actionLines); err != nil {
		return nil, err
	}
	result.Objects = append(result.Objects, name)

	logging.From(ctx).Info("archive exported",
		"guild_id", guildID,
		"cases", result.Cases,
		"actions", result.Actions,
		"dir", dir)

	return result, nil
}

func (s *Service) write(ctx context.Context, name string, lines []any) error {
	w, err := s.sink.NewWriter(ctx, name)
	if err != nil {
		return goerr.Wrap(err, "failed to open archive object", goerr.V("name", name))
	}

	enc := json.NewEncoder(w)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			safe.Close(ctx, w)
			return goerr.Wrap(err, "failed to write archive line", goerr.V("name", name))
		}
	}

	// Cloud Storage commits the object on Close
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize archive object", goerr.V("name", name))
	}
	return nil
}

func toCaseLine(c *model.ModlogCase) caseLine {
	return caseLine{
		CaseRef:   string(c.CaseRef),
		GuildID:   string(c.GuildID),
		SubjectID: string(c.SubjectID),
		ActorID:   string(c.ActorID),
		Type:      string(c.Type),
		Reason:    c.Reason,
		Details:   c.Details,
		CreatedAt: c.CreatedAt,
		ClosedBy:  string(c.ClosedBy),
		ClosedAt:  c.ClosedAt,
	}
}

func toActionLine(r *model.ActionRecord) actionLine {
	return actionLine{
		GuildID:   string(r.GuildID),
		SubjectID: string(r.SubjectID),
		Kind:      string(r.Kind),
		CaseRef:   string(r.CaseRef),
		ActorID:   string(r.ActorID),
		AppliedAt: r.AppliedAt,
		ExpiresAt: r.ExpiresAt,
		Reason:    r.Reason,
	}
}
