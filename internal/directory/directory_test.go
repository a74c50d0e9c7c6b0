package directory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/repository"
	"github.com/trustguide/directory/internal/repository/memory"
)

func seed(t *testing.T, store *memory.Store) {
	t.Helper()
	j, ok := model.ParseJurisdiction("lac")
	require.True(t, ok)
	require.NoError(t, store.ReplaceAll(context.Background(), []model.Facility{
		{
			ID: "lac::a", Name: "Alpha Diner", Jurisdiction: j, TrustScore: 95,
			Inspections: []model.Inspection{{InspectionID: "a-1", InspectedAt: time.Now()}},
		},
		{
			ID: "lac::b", Name: "Beta Bistro", Jurisdiction: j, TrustScore: 70,
			Inspections: []model.Inspection{{InspectionID: "b-1", InspectedAt: time.Now()}},
		},
	}))
}

func TestService_Search_JoinsVoteSummariesOntoPageOnly(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store)

	_, err := store.UpsertFacilityVote(ctx, "lac::a", "voter1", model.Like)
	require.NoError(t, err)

	svc := New(store)
	res, err := svc.Search(ctx, repository.SearchQuery{Jurisdiction: "all"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	var alpha model.FacilitySummary
	for _, r := range res.Rows {
		if r.ID == "lac::a" {
			alpha = r
		}
	}
	assert.Equal(t, uint64(1), alpha.Votes.Likes)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, defaultPageSize, res.PageSize)
}

func TestService_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	svc := New(store)

	_, err := svc.GetByID(ctx, "lac::missing")
	require.Error(t, err)
}

func TestService_Autocomplete_EmptyPrefixReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store)
	svc := New(store)

	out, err := svc.Autocomplete(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestService_TopPicks_OnlyFacilitiesWithLikes(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seed(t, store)
	_, err := store.UpsertFacilityVote(ctx, "lac::a", "voter1", model.Like)
	require.NoError(t, err)

	svc := New(store)
	picks, err := svc.TopPicks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, picks, 1)
	assert.Equal(t, "lac::a", picks[0].ID)
}
