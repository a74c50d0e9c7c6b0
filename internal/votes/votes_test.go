package votes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustguide/directory/internal/apperr"
	"github.com/trustguide/directory/internal/clock"
	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/ratelimit"
	"github.com/trustguide/directory/internal/repository/memory"
)

func seedFacility(t *testing.T, store *memory.Store, id string) {
	t.Helper()
	ctx := context.Background()
	j, ok := model.ParseJurisdiction("lac")
	require.True(t, ok)
	require.NoError(t, store.ReplaceAll(ctx, []model.Facility{{
		ID:           id,
		Name:         "F1",
		Jurisdiction: j,
		TrustScore:   90,
		Inspections:  []model.Inspection{{InspectionID: id + "-1", InspectedAt: time.Now()}},
	}}))
}

func TestService_RecordVote_FlipYieldsOppositeDelta(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seedFacility(t, store, "lac::f1")

	limiter := ratelimit.New(100, time.Minute, nil)
	svc := New(store, limiter)

	s1, err := svc.RecordVote(ctx, "lac::f1", "v1", model.Like)
	require.NoError(t, err)
	assert.Equal(t, model.FacilityVoteSummary{Likes: 1, Dislikes: 0}, s1)

	s2, err := svc.RecordVote(ctx, "lac::f1", "v1", model.Dislike)
	require.NoError(t, err)
	assert.Equal(t, model.FacilityVoteSummary{Likes: 0, Dislikes: 1}, s2)

	s3, err := svc.RecordVote(ctx, "lac::f1", "v2", model.Like)
	require.NoError(t, err)
	assert.Equal(t, model.FacilityVoteSummary{Likes: 1, Dislikes: 1}, s3)
	assert.Equal(t, int64(0), s3.Score())
}

func TestService_RecordVote_UnknownFacilityIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	limiter := ratelimit.New(100, time.Minute, nil)
	svc := New(store, limiter)

	_, err := svc.RecordVote(ctx, "lac::missing", "v1", model.Like)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestService_RecordVote_RateLimited(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil)
	seedFacility(t, store, "lac::f1")

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := ratelimit.New(1, time.Minute, clock.Fixed(now))
	svc := New(store, limiter)

	_, err := svc.RecordVote(ctx, "lac::f1", "v1", model.Like)
	require.NoError(t, err)

	_, err = svc.RecordVote(ctx, "lac::f1", "v1", model.Dislike)
	require.Error(t, err)
	assert.Equal(t, apperr.RateLimited, apperr.KindOf(err))
}
