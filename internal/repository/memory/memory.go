// Package memory implements repository.FacilityRepository entirely
// in-process, grounded on the prototype's in_memory_facility_repository.rs.
// It exists for tests and for bootstrap when DATABASE_URL is unset.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ttlcache "github.com/patrickmn/go-cache"

	"github.com/trustguide/directory/internal/apperr"
	"github.com/trustguide/directory/internal/clock"
	"github.com/trustguide/directory/internal/geo"
	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/repository"
	"github.com/trustguide/directory/internal/textmatch"
)

const recentWindow = 90 * 24 * time.Hour

// autocompleteCacheFreshness/Cleanup mirror the teacher's storeCache
// tuning: short enough to absorb a burst of keystrokes against the same
// prefix without serving stale suggestions once the backing snapshot is
// replaced by the next refresh.
const (
	autocompleteCacheFreshness = 60 * time.Second
	autocompleteCacheCleanup   = 5 * time.Minute
)

type voteKey struct {
	facilityID string
	voterKey   string
}

// Store is an in-memory FacilityRepository. The zero value is not usable;
// construct with New.
type Store struct {
	mu         sync.RWMutex
	facilities map[string]model.Facility
	status     *model.SystemIngestionStatus

	votesMu    sync.Mutex
	votes      map[voteKey]model.VoteValue
	summaries  map[string]model.FacilityVoteSummary

	clock             clock.Clock
	autocompleteCache *ttlcache.Cache
}

func New(c clock.Clock) *Store {
	if c == nil {
		c = clock.Real
	}
	return &Store{
		facilities:        make(map[string]model.Facility),
		votes:             make(map[voteKey]model.VoteValue),
		summaries:         make(map[string]model.FacilityVoteSummary),
		clock:             c,
		autocompleteCache: ttlcache.New(autocompleteCacheFreshness, autocompleteCacheCleanup),
	}
}

var _ repository.FacilityRepository = (*Store)(nil)

func (s *Store) ReplaceAll(_ context.Context, facilities []model.Facility) error {
	next := make(map[string]model.Facility, len(facilities))
	for _, f := range facilities {
		next[f.ID] = f
	}
	s.mu.Lock()
	s.facilities = next
	s.mu.Unlock()
	s.autocompleteCache.Flush()
	return nil
}

func (s *Store) List(_ context.Context) ([]model.Facility, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		out = append(out, f)
	}
	return out, nil
}

func (s *Store) GetByID(_ context.Context, id string) (model.Facility, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.facilities[id]
	return f, ok, nil
}

func (s *Store) SetSystemIngestionStatus(_ context.Context, status model.SystemIngestionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := status
	s.status = &st
	return nil
}

func (s *Store) GetSystemIngestionStatus(_ context.Context) (model.SystemIngestionStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status == nil {
		return model.SystemIngestionStatus{}, false, nil
	}
	return *s.status, true, nil
}

func (s *Store) UpsertFacilityVote(_ context.Context, facilityID, voterKey string, vote model.VoteValue) (model.FacilityVoteSummary, error) {
	s.mu.RLock()
	_, ok := s.facilities[facilityID]
	s.mu.RUnlock()
	if !ok {
		return model.FacilityVoteSummary{}, apperr.New(apperr.NotFound, "facility not found")
	}

	s.votesMu.Lock()
	defer s.votesMu.Unlock()

	key := voteKey{facilityID, voterKey}
	summary := s.summaries[facilityID]
	if prior, existed := s.votes[key]; existed {
		summary = applyVote(summary, prior, -1)
	}
	summary = applyVote(summary, vote, 1)
	s.votes[key] = vote
	s.summaries[facilityID] = summary
	return summary, nil
}

func applyVote(summary model.FacilityVoteSummary, vote model.VoteValue, sign int) model.FacilityVoteSummary {
	delta := uint64(1)
	if vote == model.Like {
		if sign > 0 {
			summary.Likes += delta
		} else if summary.Likes > 0 {
			summary.Likes -= delta
		}
	} else {
		if sign > 0 {
			summary.Dislikes += delta
		} else if summary.Dislikes > 0 {
			summary.Dislikes -= delta
		}
	}
	return summary
}

func (s *Store) GetFacilityVoteSummaries(_ context.Context, ids []string) (map[string]model.FacilityVoteSummary, error) {
	s.votesMu.Lock()
	defer s.votesMu.Unlock()
	out := make(map[string]model.FacilityVoteSummary, len(ids))
	for _, id := range ids {
		out[id] = s.summaries[id]
	}
	return out, nil
}

// candidate pairs a facility with the ranking signals computed for it
// during candidate selection, so ordering doesn't need to recompute them.
type candidate struct {
	facility       model.Facility
	textScore      float64
	geoBonus       float64
	distanceMiles  float64
	hasDistance    bool
}

func (s *Store) SearchFacilities(_ context.Context, q repository.SearchQuery) (repository.SearchResult, error) {
	s.mu.RLock()
	all := make([]model.Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		all = append(all, f)
	}
	s.mu.RUnlock()

	now := s.clock.Now()
	textMode := strings.TrimSpace(q.Text) != ""

	// Step 1: candidate selection.
	candidates := make([]candidate, 0, len(all))
	for _, f := range all {
		if textMode {
			matched, textScore := matchText(f, q.Text)
			if !matched {
				continue
			}
			c := candidate{facility: f, textScore: textScore}
			if q.Latitude != nil && q.Longitude != nil {
				c.distanceMiles = geo.HaversineMiles(*q.Latitude, *q.Longitude, f.Latitude, f.Longitude)
				c.hasDistance = true
				meters := c.distanceMiles * 1609.344
				bonus := 5 - meters/10000
				if bonus > 0 {
					c.geoBonus = bonus
				}
			}
			candidates = append(candidates, c)
			continue
		}

		// Browse mode.
		if q.Latitude != nil && q.Longitude != nil {
			radius := 0.1
			if q.RadiusMiles != nil && *q.RadiusMiles > radius {
				radius = *q.RadiusMiles
			}
			d := geo.HaversineMiles(*q.Latitude, *q.Longitude, f.Latitude, f.Longitude)
			if d > radius {
				continue
			}
		}
		candidates = append(candidates, candidate{facility: f})
	}

	// Step 2: jurisdiction filter.
	if q.Jurisdiction != "" && !strings.EqualFold(q.Jurisdiction, "all") {
		j, ok := model.ParseJurisdiction(q.Jurisdiction)
		filtered := candidates[:0]
		for _, c := range candidates {
			if ok && c.facility.Jurisdiction.Code() == j.Code() {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	// Step 3: recent-only filter.
	if q.RecentOnly {
		cutoff := now.Add(-recentWindow)
		filtered := candidates[:0]
		for _, c := range candidates {
			latest, ok := c.facility.LatestInspection()
			if ok && !latest.InspectedAt.Before(cutoff) {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	// Step 4: facet counts, pre-score-slice.
	var counts model.ScoreSliceCounts
	for _, c := range candidates {
		counts.All++
		switch model.ScoreSlice(c.facility.TrustScore) {
		case "elite":
			counts.Elite++
		case "solid":
			counts.Solid++
		default:
			counts.Watch++
		}
	}

	// Step 5: score-slice filter.
	if q.ScoreSlice != "" {
		filtered := make([]candidate, 0, len(candidates))
		for _, c := range candidates {
			if model.ScoreSlice(c.facility.TrustScore) == q.ScoreSlice {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	// Step 6: ordering.
	sortCandidates(candidates, q.Sort, textMode)

	// Step 7: pagination, total_count post-slice.
	totalCount := int64(len(candidates))
	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize
	rows := make([]model.Facility, 0, pageSize)
	for i := offset; i < len(candidates) && i < offset+pageSize; i++ {
		rows = append(rows, candidates[i].facility)
	}

	return repository.SearchResult{
		Rows:        rows,
		TotalCount:  totalCount,
		SliceCounts: counts,
	}, nil
}

func matchText(f model.Facility, q string) (bool, float64) {
	if textmatch.ContainsAnyToken(q, f.Name, f.Address, f.City, f.PostalCode) {
		return true, 1.0
	}
	sim := textmatch.Similarity(f.Name, q)
	if sim > 0.15 {
		return true, sim
	}
	return false, 0
}

func sortCandidates(candidates []candidate, sortMode string, textMode bool) {
	switch sortMode {
	case "recent_desc":
		sort.SliceStable(candidates, func(i, j int) bool {
			li, oki := candidates[i].facility.LatestInspection()
			lj, okj := candidates[j].facility.LatestInspection()
			if oki != okj {
				return oki // present sorts before absent (NULLS LAST)
			}
			if oki && okj && !li.InspectedAt.Equal(lj.InspectedAt) {
				return li.InspectedAt.After(lj.InspectedAt)
			}
			return candidates[i].facility.TrustScore > candidates[j].facility.TrustScore
		})
	case "name_asc":
		sort.SliceStable(candidates, func(i, j int) bool {
			return strings.ToLower(candidates[i].facility.Name) < strings.ToLower(candidates[j].facility.Name)
		})
	default:
		if textMode {
			sort.SliceStable(candidates, func(i, j int) bool {
				si := 10*candidates[i].textScore + 5*similarityTerm(candidates[i]) + candidates[i].geoBonus
				sj := 10*candidates[j].textScore + 5*similarityTerm(candidates[j]) + candidates[j].geoBonus
				if si != sj {
					return si > sj
				}
				return candidates[i].facility.TrustScore > candidates[j].facility.TrustScore
			})
		} else {
			sort.SliceStable(candidates, func(i, j int) bool {
				if candidates[i].facility.TrustScore != candidates[j].facility.TrustScore {
					return candidates[i].facility.TrustScore > candidates[j].facility.TrustScore
				}
				return candidates[i].facility.UpdatedAt.After(candidates[j].facility.UpdatedAt)
			})
		}
	}
}

// similarityTerm folds the name-similarity ranking signal into the same
// composite used at candidate-selection time for text mode.
func similarityTerm(c candidate) float64 {
	if c.textScore < 1 {
		return c.textScore
	}
	return 0
}

func (s *Store) Autocomplete(_ context.Context, prefix string, limit int) ([]model.AutocompleteSuggestion, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 20 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("%s::%d", strings.ToLower(prefix), limit)
	if cached, ok := s.autocompleteCache.Get(cacheKey); ok {
		return cached.([]model.AutocompleteSuggestion), nil
	}

	lowered := strings.ToLower(prefix)
	s.mu.RLock()
	all := make([]model.Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		all = append(all, f)
	}
	s.mu.RUnlock()

	type scored struct {
		f   model.Facility
		sim float64
	}
	var matches []scored
	for _, f := range all {
		if strings.Contains(strings.ToLower(f.Name), lowered) ||
			strings.Contains(strings.ToLower(f.City), lowered) ||
			strings.HasPrefix(f.PostalCode, prefix) {
			matches = append(matches, scored{f, textmatch.Similarity(f.Name, prefix)})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].sim != matches[j].sim {
			return matches[i].sim > matches[j].sim
		}
		return matches[i].f.TrustScore > matches[j].f.TrustScore
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]model.AutocompleteSuggestion, 0, len(matches))
	for _, m := range matches {
		out = append(out, model.AutocompleteSuggestion{
			ID:         m.f.ID,
			Name:       m.f.Name,
			City:       m.f.City,
			PostalCode: m.f.PostalCode,
			TrustScore: m.f.TrustScore,
		})
	}
	s.autocompleteCache.SetDefault(cacheKey, out)
	return out, nil
}

func (s *Store) TopPicks(_ context.Context, limit int) ([]model.Facility, map[string]model.FacilityVoteSummary, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	s.mu.RLock()
	all := make([]model.Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		all = append(all, f)
	}
	s.mu.RUnlock()

	s.votesMu.Lock()
	summaries := make(map[string]model.FacilityVoteSummary, len(s.summaries))
	for k, v := range s.summaries {
		summaries[k] = v
	}
	s.votesMu.Unlock()

	liked := all[:0]
	for _, f := range all {
		if summaries[f.ID].Likes > 0 {
			liked = append(liked, f)
		}
	}

	sort.SliceStable(liked, func(i, j int) bool {
		si, sj := summaries[liked[i].ID], summaries[liked[j].ID]
		if si.Likes != sj.Likes {
			return si.Likes > sj.Likes
		}
		if si.Score() != sj.Score() {
			return si.Score() > sj.Score()
		}
		if liked[i].TrustScore != liked[j].TrustScore {
			return liked[i].TrustScore > liked[j].TrustScore
		}
		return liked[i].UpdatedAt.After(liked[j].UpdatedAt)
	})

	if len(liked) > limit {
		liked = liked[:limit]
	}
	out := make(map[string]model.FacilityVoteSummary, len(liked))
	for _, f := range liked {
		out[f.ID] = summaries[f.ID]
	}
	return liked, out, nil
}
