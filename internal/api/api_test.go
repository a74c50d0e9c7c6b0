package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustguide/directory/internal/clock"
	"github.com/trustguide/directory/internal/directory"
	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/ratelimit"
	"github.com/trustguide/directory/internal/repository/memory"
	"github.com/trustguide/directory/internal/votes"
)

type stubRefresher struct {
	called chan struct{}
}

func (s *stubRefresher) Refresh(ctx context.Context) error {
	close(s.called)
	return nil
}

func newTestRouter(t *testing.T) (http.Handler, *memory.Store, *stubRefresher) {
	t.Helper()
	store := memory.New(nil)
	j, ok := model.ParseJurisdiction("lac")
	require.True(t, ok)
	require.NoError(t, store.ReplaceAll(context.Background(), []model.Facility{
		{
			ID: "lac::a", Name: "Alpha Diner", Jurisdiction: j, TrustScore: 95,
			Inspections: []model.Inspection{{InspectionID: "a-1", InspectedAt: time.Now()}},
		},
	}))

	dir := directory.New(store)
	v := votes.New(store, ratelimit.New(100, time.Minute, nil))
	refresher := &stubRefresher{called: make(chan struct{})}
	h := NewHandlers(dir, v, refresher, clock.Fixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	return NewRouter(h, "*"), store, refresher
}

func TestHealthHandler(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchHandler_ReturnsSeededFacility(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/facilities?jurisdiction=all", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["count"])
}

func TestSearchHandler_InvalidSortIsBadRequest(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/facilities?sort=bogus", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFacilityHandler_NotFoundMapsTo404(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/facilities/lac::missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVoteHandler_RecordsLikeAndReturnsSummary(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/facilities/lac::a/vote", strings.NewReader(`{"vote":"like"}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 70.41.3.18")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary model.FacilityVoteSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, uint64(1), summary.Likes)
}

func TestVoteHandler_InvalidVoteValueIsBadRequest(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/facilities/lac::a/vote", strings.NewReader(`{"vote":"meh"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemIngestionHandler_NoRefreshYetIsNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/ingestion", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerRefreshHandler_AcceptsAndQueues(t *testing.T) {
	router, _, refresher := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/system/refresh", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case <-refresher.called:
	case <-time.After(time.Second):
		t.Fatal("expected queued refresh to run")
	}
}

func TestVoterKey_PrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", " 198.51.100.7 , 10.0.0.1")
	assert.Equal(t, "198.51.100.7", VoterKey(req))
}

func TestVoterKey_FallsBackToUnknown(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "unknown", VoterKey(req))
}
