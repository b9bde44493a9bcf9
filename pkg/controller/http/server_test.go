package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	httpctrl "github.com/secmon-lab/moderato/pkg/controller/http"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

type listerMock struct {
	records map[types.GuildID][]*model.ActionRecord
	err     error
}

func (m *listerMock) ListActive(ctx context.Context, guildID types.GuildID) ([]*model.ActionRecord, error) {
	return m.records[guildID], m.err
}

func TestHealthz(t *testing.T) {
	srv := httpctrl.New()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	gt.Value(t, rec.Code).Equal(http.StatusOK)
	gt.Value(t, rec.Body.String()).Equal("ok")
}

func TestActionsAPI(t *testing.T) {
	applied := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := applied.Add(time.Hour)
	lister := &listerMock{records: map[types.GuildID][]*model.ActionRecord{
		"G1": {
			{GuildID: "G1", SubjectID: "U1", Kind: types.ActionKindMute, ActorID: "MOD", AppliedAt: applied, ExpiresAt: &expires, Reason: "spam"},
			{GuildID: "G1", SubjectID: "U2", Kind: types.ActionKindMute, ActorID: "MOD", AppliedAt: applied, Reason: "raid"},
		},
	}}
	srv := httpctrl.New(httpctrl.WithAdminAPI(lister, "secret"))

	get := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/guilds/G1/actions", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec
	}

	t.Run("requires token", func(t *testing.T) {
		gt.Value(t, get("").Code).Equal(http.StatusUnauthorized)
		gt.Value(t, get("wrong").Code).Equal(http.StatusUnauthorized)
	})

	t.Run("lists active actions", func(t *testing.T) {
		rec := get("secret")
		gt.Value(t, rec.Code).Equal(http.StatusOK)
		gt.Value(t, rec.Header().Get("Content-Type")).Equal("application/json")

		var body struct {
			Actions []struct {
				SubjectID string     `json:"subject_id"`
				ExpiresAt *time.Time `json:"expires_at"`
			} `json:"actions"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body)).Required()
		gt.Array(t, body.Actions).Length(2).Required()
		gt.Value(t, body.Actions[0].SubjectID).Equal("U1")
		gt.Value(t, body.Actions[0].ExpiresAt.Equal(expires)).Equal(true)
		gt.Value(t, body.Actions[1].ExpiresAt).Nil()
	})

	t.Run("store failure", func(t *testing.T) {
		lister.err = errors.New("store down")
		defer func() { lister.err = nil }()
		gt.Value(t, get("secret").Code).Equal(http.StatusInternalServerError)
	})
}

func TestActionsAPI_DisabledWithoutToken(t *testing.T) {
	srv := httpctrl.New(httpctrl.WithAdminAPI(&listerMock{}, ""))
	req := httptest.NewRequest(http.MethodGet, "/api/guilds/G1/actions", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	gt.Value(t, rec.Code).Equal(http.StatusForbidden)
}
