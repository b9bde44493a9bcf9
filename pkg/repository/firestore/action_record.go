package firestore

import (
	"context"
	"net/url"
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

type actionRecordRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.ActionRecordRepository = &actionRecordRepository{}

// actionRecordDoc is the Firestore persistence model
type actionRecordDoc struct {
	GuildID   string     `firestore:"guild_id"`
	SubjectID string     `firestore:"subject_id"`
	Kind      string     `firestore:"action_kind"`
	CaseRef   string     `firestore:"case_ref"`
	ActorID   string     `firestore:"actor_id"`
	AppliedAt time.Time  `firestore:"applied_at"`
	ExpiresAt *time.Time `firestore:"expires_at"`
	Reason    string     `firestore:"reason"`
}

func (r *actionRecordRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(collectionName(r.collectionPrefix, actionRecordsCollection))
}

// docID derives the document ID from the key, so the key is unique by construction
func docID(key model.ActionKey) string {
	return url.PathEscape(string(key.GuildID)) + ":" +
		url.PathEscape(string(key.SubjectID)) + ":" +
		url.PathEscape(string(key.Kind))
}

func toActionRecordDoc(rec *model.ActionRecord) *actionRecordDoc {
	return &actionRecordDoc{
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

func fromActionRecordDoc(doc *actionRecordDoc) *model.ActionRecord {
	rec := &model.ActionRecord{
		GuildID:   types.GuildID(doc.GuildID),
		SubjectID: types.SubjectID(doc.SubjectID),
		Kind:      types.ActionKind(doc.Kind),
		CaseRef:   types.CaseRef(doc.CaseRef),
		ActorID:   types.ActorID(doc.ActorID),
		AppliedAt: doc.AppliedAt.UTC(),
		Reason:    doc.Reason,
	}
	if doc.ExpiresAt != nil {
		t := doc.ExpiresAt.UTC()
		rec.ExpiresAt = &t
	}
	return rec
}

func (r *actionRecordRepository) Upsert(ctx context.Context, rec *model.ActionRecord) error {
	if err := rec.Validate(); err != nil {
		return goerr.Wrap(err, "invalid action record")
	}

	if _, err := r.collection().Doc(docID(rec.Key())).Set(ctx, toActionRecordDoc(rec)); err != nil {
		return goerr.Wrap(err, "failed to upsert action record", goerr.V("key", rec.Key().String()))
	}
	return nil
}

func (r *actionRecordRepository) Delete(ctx context.Context, key model.ActionKey) error {
	// Firestore Delete succeeds for missing documents
	if _, err := r.collection().Doc(docID(key)).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete action record", goerr.V("key", key.String()))
	}
	return nil
}

func (r *actionRecordRepository) Get(ctx context.Context, key model.ActionKey) (*model.ActionRecord, error) {
	snap, err := r.collection().Doc(docID(key)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrNotFound, "action record not found", goerr.V("key", key.String()))
		}
		return nil, goerr.Wrap(err, "failed to get action record", goerr.V("key", key.String()))
	}

	var doc actionRecordDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode action record", goerr.V("docID", snap.Ref.ID))
	}
	return fromActionRecordDoc(&doc), nil
}

func (r *actionRecordRepository) ListDueBefore(ctx context.Context, t time.Time) ([]*model.ActionRecord, error) {
	// Range filters on a timestamp skip documents whose expires_at is null
	query := r.collection().
		Where("expires_at", "<=", t).
		OrderBy("expires_at", firestore.Asc)
	return r.list(ctx, query)
}

func (r *actionRecordRepository) ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ActionRecord, error) {
	query := r.collection().
		Where("guild_id", "==", string(guildID)).
		OrderBy("applied_at", firestore.Asc)
	return r.list(ctx, query)
}

func (r *actionRecordRepository) list(ctx context.Context, query firestore.Query) ([]*model.ActionRecord, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	var result []*model.ActionRecord
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate action records")
		}

		var doc actionRecordDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode action record", goerr.V("docID", snap.Ref.ID))
		}
		result = append(result, fromActionRecordDoc(&doc))
	}
	return result, nil
}
