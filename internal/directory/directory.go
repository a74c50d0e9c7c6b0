// Package directory implements the Directory Service: the query-side
// façade that delegates search, get-by-id, autocomplete, and top-picks to
// the repository and joins in vote summaries for the returned page.
// Grounded on spec.md §4.6-4.8 and the prototype's DirectoryService.
package directory

import (
	"context"
	"strings"

	"github.com/trustguide/directory/internal/apperr"
	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/repository"
	"github.com/trustguide/directory/internal/skerr"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	defaultACLimit  = 10
	maxACLimit      = 20
	defaultTopLimit = 10
	maxTopLimit     = 50
)

// Service is the query façade handlers call into.
type Service struct {
	repo repository.FacilityRepository
}

func New(repo repository.FacilityRepository) *Service {
	return &Service{repo: repo}
}

// SearchResult is what the HTTP layer needs to build the
// §6 /api/v1/facilities response shape.
type SearchResult struct {
	Rows        []model.FacilitySummary
	TotalCount  int64
	Page        int
	PageSize    int
	SliceCounts model.ScoreSliceCounts
}

// NormalizeSearchQuery clamps page/page_size to their documented bounds,
// per spec.md §4.6 ("page (>=1, default 1), page_size (1..=200, default
// 50; limit is an alias)").
func NormalizeSearchQuery(q repository.SearchQuery) repository.SearchQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = defaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	return q
}

// Search runs the §4.6 pipeline and joins vote summaries onto the
// returned page only (bounded by page_size), never over the full
// candidate set.
func (s *Service) Search(ctx context.Context, q repository.SearchQuery) (SearchResult, error) {
	q = NormalizeSearchQuery(q)

	res, err := s.repo.SearchFacilities(ctx, q)
	if err != nil {
		return SearchResult{}, apperr.Wrap(apperr.RepositoryFailure, err, "searching facilities")
	}

	votes, err := s.voteSummariesFor(ctx, res.Rows)
	if err != nil {
		return SearchResult{}, err
	}

	rows := make([]model.FacilitySummary, 0, len(res.Rows))
	for _, f := range res.Rows {
		rows = append(rows, model.ToSummary(f, votes[f.ID]))
	}

	return SearchResult{
		Rows:        rows,
		TotalCount:  res.TotalCount,
		Page:        q.Page,
		PageSize:    q.PageSize,
		SliceCounts: res.SliceCounts,
	}, nil
}

// GetByID returns the full detail for one facility, including its vote
// summary. Returns apperr.NotFound if the id is unknown.
func (s *Service) GetByID(ctx context.Context, id string) (model.FacilityDetail, error) {
	f, ok, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return model.FacilityDetail{}, apperr.Wrap(apperr.RepositoryFailure, err, "getting facility")
	}
	if !ok {
		return model.FacilityDetail{}, apperr.New(apperr.NotFound, "facility not found")
	}

	votes, err := s.voteSummariesFor(ctx, []model.Facility{f})
	if err != nil {
		return model.FacilityDetail{}, err
	}
	return model.ToDetail(f, votes[f.ID]), nil
}

// Autocomplete clamps limit to spec.md §4.7's 1..=20 range. An empty
// prefix returns an empty slice, never an error, per §6's contract for the
// HTTP endpoint.
func (s *Service) Autocomplete(ctx context.Context, prefix string, limit int) ([]model.AutocompleteSuggestion, error) {
	if strings.TrimSpace(prefix) == "" {
		return nil, nil
	}
	limit = clampLimit(limit, defaultACLimit, maxACLimit)
	suggestions, err := s.repo.Autocomplete(ctx, prefix, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.RepositoryFailure, err, "autocomplete")
	}
	return suggestions, nil
}

// TopPicks returns up to min(limit, 50) facilities with at least one like,
// each paired with its vote summary, per spec.md §4.8.
func (s *Service) TopPicks(ctx context.Context, limit int) ([]model.FacilitySummary, error) {
	limit = clampLimit(limit, defaultTopLimit, maxTopLimit)
	facilities, summaries, err := s.repo.TopPicks(ctx, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.RepositoryFailure, err, "top picks")
	}
	out := make([]model.FacilitySummary, 0, len(facilities))
	for _, f := range facilities {
		out = append(out, model.ToSummary(f, summaries[f.ID]))
	}
	return out, nil
}

// SystemIngestionStatus returns the most recent ingestion status, or
// apperr.NotFound if no refresh has ever completed.
func (s *Service) SystemIngestionStatus(ctx context.Context) (model.SystemIngestionStatus, error) {
	status, ok, err := s.repo.GetSystemIngestionStatus(ctx)
	if err != nil {
		return model.SystemIngestionStatus{}, apperr.Wrap(apperr.RepositoryFailure, err, "getting system ingestion status")
	}
	if !ok {
		return model.SystemIngestionStatus{}, apperr.New(apperr.NotFound, "no ingestion has completed yet")
	}
	return status, nil
}

func (s *Service) voteSummariesFor(ctx context.Context, facilities []model.Facility) (map[string]model.FacilityVoteSummary, error) {
	ids := make([]string, 0, len(facilities))
	for _, f := range facilities {
		ids = append(ids, f.ID)
	}
	votes, err := s.repo.GetFacilityVoteSummaries(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.RepositoryFailure, skerr.Wrap(err), "getting vote summaries")
	}
	return votes, nil
}

func clampLimit(limit, def, max int) int {
	if limit < 1 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
