package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/domain/interfaces"
	"github.com/secmon-lab/moderato/pkg/domain/model"
	"github.com/secmon-lab/moderato/pkg/domain/types"
)

type modlogRepository struct {
	mu    sync.RWMutex
	cases map[types.CaseRef]*model.ModlogCase
}

func newModlogRepository() *modlogRepository {
	return &modlogRepository{
		cases: make(map[types.CaseRef]*model.ModlogCase),
	}
}

func copyCase(c *model.ModlogCase) *model.ModlogCase {
	copied := *c
	if c.ClosedAt != nil {
		at := *c.ClosedAt
		copied.ClosedAt = &at
	}
	return &copied
}

func (r *modlogRepository) Put(ctx context.Context, c *model.ModlogCase) error {
	if c.CaseRef == "" {
		return goerr.New("case ref is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cases[c.CaseRef] = copyCase(c)
	return nil
}

func (r *modlogRepository) Get(ctx context.Context, ref types.CaseRef) (*model.ModlogCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cases[ref]
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrNotFound, "modlog case not found", goerr.V("case_ref", ref))
	}
	return copyCase(c), nil
}

func (r *modlogRepository) ListOpen(ctx context.Context, guildID types.GuildID, subjectID types.SubjectID, caseTypes []types.ModlogType) ([]*model.ModlogCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.ModlogCase
	for _, c := range r.cases {
		if c.GuildID != guildID || c.SubjectID != subjectID || !c.IsOpen() {
			continue
		}
		if !slices.Contains(caseTypes, c.Type) {
			continue
		}
		result = append(result, copyCase(c))
	}

	sortCases(result)
	return result, nil
}

func (r *modlogRepository) ListByGuild(ctx context.Context, guildID types.GuildID) ([]*model.ModlogCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.ModlogCase
	for _, c := range r.cases {
		if c.GuildID == guildID {
			result = append(result, copyCase(c))
		}
	}

	sortCases(result)
	return result, nil
}

func sortCases(cases []*model.ModlogCase) {
	sort.SliceStable(cases, func(i, j int) bool {
		if cases[i].CreatedAt.Equal(cases[j].CreatedAt) {
			return cases[i].CaseRef < cases[j].CaseRef
		}
		return cases[i].CreatedAt.Before(cases[j].CreatedAt)
	})
}
