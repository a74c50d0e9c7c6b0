// Package votes implements the Vote Service: recording or flipping a
// voter's vote on a facility, gated by the per-voter sliding-window rate
// limiter. Grounded on spec.md §4.9 and the prototype's VoteService.
package votes

import (
	"context"

	"github.com/trustguide/directory/internal/apperr"
	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/ratelimit"
	"github.com/trustguide/directory/internal/repository"
)

// Service records votes, consulting the rate limiter before every write.
type Service struct {
	repo    repository.FacilityRepository
	limiter *ratelimit.Limiter
}

func New(repo repository.FacilityRepository, limiter *ratelimit.Limiter) *Service {
	return &Service{repo: repo, limiter: limiter}
}

// RecordVote upserts voterKey's vote on facilityID. Callers must have
// already resolved voterKey (see spec.md §4.9's header-derivation
// contract, implemented in internal/api). Returns apperr.RateLimited if
// the per-(voterKey, facilityID) sliding window is exhausted, or
// apperr.NotFound if facilityID is unknown.
func (s *Service) RecordVote(ctx context.Context, facilityID, voterKey string, vote model.VoteValue) (model.FacilityVoteSummary, error) {
	key := voterKey + ":" + facilityID
	if !s.limiter.Allow(key) {
		return model.FacilityVoteSummary{}, apperr.New(apperr.RateLimited, "too many votes for this facility; try again later")
	}

	summary, err := s.repo.UpsertFacilityVote(ctx, facilityID, voterKey, vote)
	if err != nil {
		return model.FacilityVoteSummary{}, apperr.Wrap(apperr.KindOf(err), err, "recording vote")
	}
	return summary, nil
}
