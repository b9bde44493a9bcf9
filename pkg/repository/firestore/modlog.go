package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type modlogRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.ModlogRepository = &modlogRepository{}

type modlogCaseDoc struct {
	CaseRef   string     `firestore:"case_ref"`
	GuildID   string     `firestore:"guild_id"`
	SubjectID string     `firestore:"subject_id"`
	ActorID   string     `firestore:"actor_id"`
	Type      string     `firestore:"type"`
	Reason    string     `firestore:"reason"`
	Details   string     `firestore:"details"`
	CreatedAt time.Time  `firestore:"created_at"`
	ClosedBy  string     `firestore:"closed_by"`
	ClosedAt  *time.Time `firestore:"closed_at"`
	// Open mirrors ClosedAt == nil so ListOpen can use an equality filter
	Open bool `firestore:"open"`
}

func (r *modlogRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(collectionName(r.collectionPrefix, modlogCasesCollection))
}

func toModlogCaseDoc(c *model.ModlogCase) *modlogCaseDoc {
	return &modlogCaseDoc{
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
		Open:      c.IsOpen(),
	}
}

func fromModlogCaseDoc(doc *modlogCaseDoc) *model.ModlogCase {
	c := &model.ModlogCase{
		CaseRef:   types.CaseRef(doc.CaseRef),
		GuildID:   types.GuildID(doc.GuildID),
		SubjectID: types.SubjectID(doc.SubjectID),
		ActorID:   types.ActorID(doc.ActorID),
		Type:      types.ModlogType(doc.Type),
		Reason:    doc.Reason,
		Details:   doc.Details,
		CreatedAt: doc.CreatedAt.UTC(),
		ClosedBy:  types.CaseRef(doc.ClosedBy),
	}
	if doc.ClosedAt != nil {
		t := doc.ClosedAt.UTC()
		c.ClosedAt = &t
	}
	return c
}

func (r *modlogRepository) Put(ctx context.Context, c *model.ModlogCase) error {
	if c.CaseRef == "" {
		return goerr.New("case ref is required")
	}

	if _, err := r.collection().Doc(string(c.CaseRef)).Set(ctx, toModlogCaseDoc(c)); err != nil {
		return goerr.Wrap(err, "failed to put modlog case", goerr.V("case_ref", c.CaseRef))
	}
	return nil
}

func (r *modlogRepository) Get(ctx context.Context, ref types.CaseRef) (*model.ModlogCase, error) {
	snap, err := r.collection().Doc(string(ref)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "modlog case not found", goerr.V("case_ref", ref))
		}
		return nil, goerr.Wrap(err, "failed to get modlog case", goerr.V("case_ref", ref))
	}

	var doc modlogCaseDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode modlog case", goerr.V("docID", snap.Ref.ID))
	}
	return fromModlogCaseDoc(&doc), nil
}

func (r *modlogRepository) ListOpen(ctx context.Context, guildID types.GuildID, subjectID types.SubjectID, caseTypes []types.ModlogType) ([]*model.ModlogCase, error) {
	if len(caseTypes) == 0 {
		return nil, nil
	}

	typeNames := make([]string, len(caseTypes))
	for i, t := range caseTypes {
		typeNames[i] = string(t)
	}

	query := r.collection().
		Where("guild_id", "==", string(guildID)).
		Where("subject_id", "==", string(subjectID)).
		Where("open", "==", true).
		Where("type", "in", typeNames).
		OrderBy("created_at", firestore.Asc)
	return r.list(ctx, query)
}

func (r *modlogRepository) ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ModlogCase, error) {
	query := r.collection().
		Where("guild_id", "==", string(guildID)).
		OrderBy("created_at", firestore.Asc)
	return r.list(ctx, query)
}

func (r *modlogRepository) list(ctx context.Context, query firestore.Query) ([]*model.ModlogCase, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var result []*model.ModlogCase
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate modlog cases")
		}

		var doc modlogCaseDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode modlog case", goerr.V("docID", snap.Ref.ID))
		}
		result = append(result, fromModlogCaseDoc(&doc))
	}
	return result, nil
}
