// Package repository defines the sole persistence contract the rest of the
// system depends on: the active facility snapshot, the per-voter vote
// ledger, and the last ingestion status. Two implementations conform to
// this contract: internal/repository/memory and internal/repository/postgres.
package repository

import (
	"context"

	"github.com/trustguide/directory/internal/model"
)

// SearchQuery is the normalized form of §4.6's search input. Zero values
// mean "absent" for every optional field.
type SearchQuery struct {
	Text          string
	Latitude      *float64
	Longitude     *float64
	RadiusMiles   *float64
	Jurisdiction  string
	Sort          string // "", "recent_desc", "name_asc"
	ScoreSlice    string // "", "elite", "solid", "watch"
	RecentOnly    bool
	Page          int
	PageSize      int
}

// SearchResult is the tuple search_facilities returns: the page rows, the
// total candidate count computed after the score-slice filter, and the
// facet counts computed before it.
type SearchResult struct {
	Rows        []model.Facility
	TotalCount  int64
	SliceCounts model.ScoreSliceCounts
}

// FacilityRepository is the persistence contract. Every operation is safe
// for concurrent invocation.
type FacilityRepository interface {
	ReplaceAll(ctx context.Context, facilities []model.Facility) error
	List(ctx context.Context) ([]model.Facility, error)
	GetByID(ctx context.Context, id string) (model.Facility, bool, error)

	SetSystemIngestionStatus(ctx context.Context, status model.SystemIngestionStatus) error
	GetSystemIngestionStatus(ctx context.Context) (model.SystemIngestionStatus, bool, error)

	UpsertFacilityVote(ctx context.Context, facilityID, voterKey string, vote model.VoteValue) (model.FacilityVoteSummary, error)
	GetFacilityVoteSummaries(ctx context.Context, ids []string) (map[string]model.FacilityVoteSummary, error)

	SearchFacilities(ctx context.Context, q SearchQuery) (SearchResult, error)
	Autocomplete(ctx context.Context, prefix string, limit int) ([]model.AutocompleteSuggestion, error)
	TopPicks(ctx context.Context, limit int) ([]model.Facility, map[string]model.FacilityVoteSummary, error)
}
