package memory

import (
	"context"
	"testing"
	"time"

	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/repository"
)

func mustJurisdiction(t *testing.T, code string) model.Jurisdiction {
	t.Helper()
	j, ok := model.ParseJurisdiction(code)
	if !ok {
		t.Fatalf("unknown jurisdiction %q", code)
	}
	return j
}

func facility(t *testing.T, id, name, jurisdiction string, trust int, lat, lon float64) model.Facility {
	return model.Facility{
		ID:           id,
		Name:         name,
		Jurisdiction: mustJurisdiction(t, jurisdiction),
		TrustScore:   trust,
		Latitude:     lat,
		Longitude:    lon,
		UpdatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Inspections: []model.Inspection{
			{InspectionID: id + "-1", InspectedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

func TestSearchFacilities_SliceCountsAndJurisdictionFilter(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	facilities := []model.Facility{
		facility(t, "lac::a", "A", "lac", 95, 34.05, -118.24),
		facility(t, "lac::b", "B", "lac", 85, 34.05, -118.24),
		facility(t, "oc::c", "C", "oc", 72, 33.7, -117.8),
		facility(t, "oc::d", "D", "oc", 60, 33.7, -117.8),
	}
	if err := s.ReplaceAll(ctx, facilities); err != nil {
		t.Fatal(err)
	}

	res, err := s.SearchFacilities(ctx, repository.SearchQuery{Jurisdiction: "all", Page: 1, PageSize: 50})
	if err != nil {
		t.Fatal(err)
	}
	if res.SliceCounts != (model.ScoreSliceCounts{All: 4, Elite: 1, Solid: 1, Watch: 2}) {
		t.Errorf("slice counts = %+v", res.SliceCounts)
	}
	if res.TotalCount != 4 {
		t.Errorf("total_count = %d, want 4", res.TotalCount)
	}

	watch, err := s.SearchFacilities(ctx, repository.SearchQuery{Jurisdiction: "all", ScoreSlice: "watch", Page: 1, PageSize: 50})
	if err != nil {
		t.Fatal(err)
	}
	if watch.TotalCount != 2 {
		t.Errorf("watch total_count = %d, want 2", watch.TotalCount)
	}
	if watch.SliceCounts != res.SliceCounts {
		t.Errorf("slice counts should be unchanged by score_slice filter, got %+v", watch.SliceCounts)
	}

	oc, err := s.SearchFacilities(ctx, repository.SearchQuery{Jurisdiction: "oc", Page: 1, PageSize: 50})
	if err != nil {
		t.Fatal(err)
	}
	if oc.SliceCounts != (model.ScoreSliceCounts{All: 2, Elite: 0, Solid: 0, Watch: 2}) {
		t.Errorf("oc slice counts = %+v", oc.SliceCounts)
	}
}

func TestSearchFacilities_TextModeIgnoresGeoRadius(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	m := facility(t, "lac::m", "Mastros", "lac", 90, 34.15, -118.13)
	other := facility(t, "lac::o", "Other Place", "lac", 90, 34.05, -118.24)
	if err := s.ReplaceAll(ctx, []model.Facility{m, other}); err != nil {
		t.Fatal(err)
	}

	lat, lon, radius := 34.05, -118.24, 5.0
	res, err := s.SearchFacilities(ctx, repository.SearchQuery{
		Text: "mastros", Latitude: &lat, Longitude: &lon, RadiusMiles: &radius,
		Page: 1, PageSize: 50,
	})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range res.Rows {
		if f.ID == "lac::m" {
			found = true
		}
	}
	if !found {
		t.Error("text-mode query should return a name match outside the browse radius")
	}
}

func TestUpsertFacilityVote_Flip(t *testing.T) {
	ctx := context.Background()
	s := New(nil)
	f := facility(t, "lac::f1", "F1", "lac", 90, 34.05, -118.24)
	if err := s.ReplaceAll(ctx, []model.Facility{f}); err != nil {
		t.Fatal(err)
	}

	sum, err := s.UpsertFacilityVote(ctx, "lac::f1", "v1", model.Like)
	if err != nil {
		t.Fatal(err)
	}
	if sum != (model.FacilityVoteSummary{Likes: 1}) {
		t.Fatalf("after like: %+v", sum)
	}

	sum, err = s.UpsertFacilityVote(ctx, "lac::f1", "v1", model.Dislike)
	if err != nil {
		t.Fatal(err)
	}
	if sum != (model.FacilityVoteSummary{Dislikes: 1}) {
		t.Fatalf("after flip: %+v", sum)
	}

	sum, err = s.UpsertFacilityVote(ctx, "lac::f1", "v2", model.Like)
	if err != nil {
		t.Fatal(err)
	}
	if sum != (model.FacilityVoteSummary{Likes: 1, Dislikes: 1}) {
		t.Fatalf("after second voter: %+v", sum)
	}

	picks, summaries, err := s.TopPicks(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(picks) != 1 || picks[0].ID != "lac::f1" {
		t.Fatalf("top picks = %+v", picks)
	}
	if summaries["lac::f1"].Likes != 1 {
		t.Fatalf("top pick summary = %+v", summaries["lac::f1"])
	}
}

func TestUpsertFacilityVote_UnknownFacility(t *testing.T) {
	s := New(nil)
	_, err := s.UpsertFacilityVote(context.Background(), "does-not-exist", "v1", model.Like)
	if err == nil {
		t.Fatal("expected error for unknown facility")
	}
}
