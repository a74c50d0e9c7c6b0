// Package ingestion implements the Ingestion Coordinator: the refresh
// cycle that fetches every configured connector, dedupes and stitches
// their records, applies the safety gates, and atomically swaps the
// active facility snapshot. Grounded on spec.md §4.3 and the prototype's
// IngestionCoordinator::refresh.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/trustguide/directory/internal/apperr"
	"github.com/trustguide/directory/internal/clock"
	"github.com/trustguide/directory/internal/connectors"
	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/repository"
	"github.com/trustguide/directory/internal/skerr"
	"github.com/trustguide/directory/internal/sklog"
	"github.com/trustguide/directory/internal/trust"
)

const (
	maxFetchAttempts  = 3
	backoffPerAttempt = 2 * time.Second
)

// Coordinator orchestrates one refresh cycle at a time; concurrent callers
// of Refresh queue on mu rather than racing or failing.
type Coordinator struct {
	repo       repository.FacilityRepository
	connectors []connectors.Connector
	clock      clock.Clock

	mu sync.Mutex
}

// New builds a Coordinator over the given repository and the ordered list
// of connectors to fetch each cycle. A nil clock defaults to clock.Real.
func New(repo repository.FacilityRepository, conns []connectors.Connector, c clock.Clock) *Coordinator {
	if c == nil {
		c = clock.Real
	}
	return &Coordinator{repo: repo, connectors: conns, clock: c}
}

// stitchedRecord pairs one connector's winning SourceFacilityInput with
// the jurisdiction it was fetched under.
type stitchedRecord struct {
	jurisdiction model.Jurisdiction
	input        connectors.SourceFacilityInput
}

// connectorJurisdictions maps a connector's SourceName to the
// jurisdiction(s) it reports for. Most connectors own exactly one
// jurisdiction; la_county and lives_batch are 1:1 too since San
// Bernardino/Riverside are split into separate Connector values by their
// FromEnv constructors upstream -- this map exists purely so the
// coordinator can stamp a jurisdiction onto records without each connector
// needing to import the model package.
var connectorJurisdictions = map[string]model.Jurisdiction{
	"la_county":     model.LosAngelesCounty,
	"san_diego":     model.SanDiegoCounty,
	"long_beach":    model.LongBeach,
	"lives_batch":   model.SanBernardinoCounty,
	"riverside":     model.RiversideCounty,
	"orange_county": model.OrangeCounty,
	"pasadena":      model.Pasadena,
}

// JurisdictionFor exposes connectorJurisdictions for callers that need to
// report which jurisdiction a connector feeds before a refresh has run.
func JurisdictionFor(sourceName string) (model.Jurisdiction, bool) {
	j, ok := connectorJurisdictions[sourceName]
	return j, ok
}

// Refresh runs one refresh cycle to completion. It returns an error only
// when a safety gate fails, no connector succeeded, or a repository call
// fails; individual connector failures are recorded in the per-connector
// status and do not abort the cycle.
func (co *Coordinator) Refresh(ctx context.Context) error {
	co.mu.Lock()
	defer co.mu.Unlock()

	runID := uuid.NewString()
	start := co.clock.Now()
	sklog.Infof("ingestion[%s]: starting refresh cycle with %d connectors", runID, len(co.connectors))

	prevStatus, hadPrev, err := co.repo.GetSystemIngestionStatus(ctx)
	if err != nil {
		return apperr.Wrap(apperr.RepositoryFailure, err, "reading previous ingestion status")
	}

	statuses := make([]model.ConnectorIngestionStatus, len(co.connectors))
	records := make([][]stitchedRecord, len(co.connectors))

	group, gctx := errgroup.WithContext(ctx)
	for i, conn := range co.connectors {
		i, conn := i, conn
		group.Go(func() error {
			recs, status := co.fetchOneWithRetry(gctx, conn)
			statuses[i] = status
			records[i] = recs
			return nil
		})
	}
	// errgroup.Wait only ever returns an error from a Go func that itself
	// returns non-nil; fetchOneWithRetry never does, so every connector
	// failure surfaces only through its recorded status, never here.
	_ = group.Wait()

	stitched := stitch(records)

	successCount := 0
	for _, s := range statuses {
		if s.Error == "" {
			successCount++
		}
	}
	if successCount == 0 {
		return apperr.New(apperr.ConnectorFailure, "every connector failed; refresh aborted, previous snapshot retained")
	}
	if len(stitched) == 0 {
		return apperr.New(apperr.ConnectorFailure, "no records stitched from any connector; refresh aborted")
	}
	if hadPrev {
		floor := prevStatus.UniqueFacilities / 2
		if floor < 1 {
			floor = 1
		}
		if len(stitched) < floor {
			return apperr.New(apperr.ConnectorFailure, fmt.Sprintf(
				"stitched count %d is below safety floor %d (previous %d); refresh aborted",
				len(stitched), floor, prevStatus.UniqueFacilities))
		}
	}

	now := co.clock.Now()
	facilities := make([]model.Facility, 0, len(stitched))
	for _, rec := range stitched {
		facilities = append(facilities, buildFacility(rec, now))
	}

	if err := co.repo.ReplaceAll(ctx, facilities); err != nil {
		return apperr.Wrap(apperr.RepositoryFailure, err, "replacing facility snapshot")
	}

	status := model.SystemIngestionStatus{
		LastRefreshAt:    now,
		UniqueFacilities: len(facilities),
		Connectors:       statuses,
	}
	if err := co.repo.SetSystemIngestionStatus(ctx, status); err != nil {
		return apperr.Wrap(apperr.RepositoryFailure, err, "setting system ingestion status")
	}

	sklog.Infof("ingestion[%s]: refresh complete in %s, %s unique facilities across %d/%d connectors",
		runID, co.clock.Now().Sub(start), humanize.Comma(int64(len(facilities))), successCount, len(co.connectors))
	return nil
}

// fetchOneWithRetry calls conn up to maxFetchAttempts times with
// 2*attempt second spacing between attempts, per spec.md §4.3. It never
// returns an error; failures are folded into the returned status.
func (co *Coordinator) fetchOneWithRetry(ctx context.Context, conn connectors.Connector) ([]stitchedRecord, model.ConnectorIngestionStatus) {
	name := conn.SourceName()
	jurisdiction, known := connectorJurisdictions[name]

	var lastErr error
	var fetched []stitchedRecord
	attempt := 0
	operation := func() error {
		attempt++
		inputs, err := conn.FetchFacilities(ctx)
		if err != nil {
			lastErr = err
			return err
		}
		if len(inputs) == 0 {
			lastErr = skerr.Fmt("%s returned zero records", name)
			return lastErr
		}
		recs := make([]stitchedRecord, 0, len(inputs))
		for _, in := range inputs {
			recs = append(recs, stitchedRecord{jurisdiction: jurisdiction, input: in})
		}
		lastErr = nil
		fetched = recs
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(&constantBackoff{}, uint64(maxFetchAttempts-1)), ctx)
	err := backoff.Retry(operation, bo)

	if !known {
		sklog.Warningf("ingestion: connector %q has no known jurisdiction mapping; its records will be dropped", name)
	}

	if err != nil || lastErr != nil {
		msg := name + " failed after retries"
		if lastErr != nil {
			msg = lastErr.Error()
		}
		sklog.Errorf("ingestion: connector %q failed on attempt %d: %s", name, attempt, msg)
		return nil, model.ConnectorIngestionStatus{Source: name, FetchedRecords: 0, Error: msg}
	}

	sklog.Infof("ingestion: connector %q fetched %d records in %d attempt(s)", name, len(fetched), attempt)
	status := model.ConnectorIngestionStatus{Source: name, FetchedRecords: len(fetched)}
	if !known {
		return nil, status
	}
	return fetched, status
}

// constantBackoff spaces retries by 2*attempt seconds, matching spec.md
// §4.3's backoff schedule exactly (backoff/v4's built-in
// ExponentialBackOff doubles the interval every attempt rather than
// scaling linearly with the attempt number, so the schedule here is
// expressed directly instead).
type constantBackoff struct {
	attempt int
}

func (b *constantBackoff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * backoffPerAttempt
}

func (b *constantBackoff) Reset() { b.attempt = 0 }

// stitch dedupes every connector's records by the lowercased, trimmed
// "name|address|city|postal_code" key, keeping whichever record's
// InspectedAt is later on collision, per spec.md §4.3 step 3.
func stitch(perConnector [][]stitchedRecord) map[string]stitchedRecord {
	out := make(map[string]stitchedRecord)
	for _, recs := range perConnector {
		for _, rec := range recs {
			key := dedupeKey(rec.input)
			existing, ok := out[key]
			if !ok || rec.input.InspectedAt.After(existing.input.InspectedAt) {
				out[key] = rec
			}
		}
	}
	return out
}

func dedupeKey(in connectors.SourceFacilityInput) string {
	parts := []string{in.Name, in.Address, in.City, in.PostalCode}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, "|")
}

// buildFacility constructs the single Facility + synthetic Inspection a
// stitched record becomes, per spec.md §4.3 step 5.
func buildFacility(rec stitchedRecord, now time.Time) model.Facility {
	in := rec.input
	score := trust.Score(trust.Signals{
		RawScore:      in.RawScore,
		LetterGrade:   in.LetterGrade,
		PlacardStatus: in.PlacardStatus,
	})

	violations := make([]model.Violation, 0, len(in.Violations))
	for _, v := range in.Violations {
		violations = append(violations, model.Violation{
			Code:        v.Code,
			Description: v.Description,
			Points:      v.Points,
			Critical:    v.Critical,
		})
	}

	inspection := model.Inspection{
		InspectionID:  rec.jurisdiction.Code() + "-" + in.SourceID,
		InspectedAt:   in.InspectedAt,
		RawScore:      in.RawScore,
		LetterGrade:   in.LetterGrade,
		PlacardStatus: in.PlacardStatus,
		Violations:    violations,
	}

	return model.Facility{
		ID:           rec.jurisdiction.Code() + "::" + in.SourceID,
		SourceID:     in.SourceID,
		Name:         in.Name,
		Address:      in.Address,
		City:         in.City,
		State:        in.State,
		PostalCode:   in.PostalCode,
		Latitude:     in.Latitude,
		Longitude:    in.Longitude,
		Jurisdiction: rec.jurisdiction,
		TrustScore:   score,
		Inspections:  []model.Inspection{inspection},
		UpdatedAt:    now,
	}
}
