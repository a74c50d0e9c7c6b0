// Package postgres implements repository.FacilityRepository over
// PostgreSQL using pgx, with trigram similarity, weighted full-text search,
// and great-circle distance via the earthdistance extension. The schema
// and staged-CTE search query are ported from the prototype's
// postgres_facility_repository.rs, corrected to compute total_count after
// the score-slice filter rather than before it (see DESIGN.md).
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/trustguide/directory/internal/apperr"
	"github.com/trustguide/directory/internal/model"
	"github.com/trustguide/directory/internal/repository"
	"github.com/trustguide/directory/internal/skerr"
)

//go:embed schema.sql
var schemaSQL string

const insertBatchSize = 1000

// Store is a relational FacilityRepository backed by a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ repository.FacilityRepository = (*Store)(nil)

// InitSchema creates the extensions, tables, trigger, and indexes this
// repository needs. It is idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return skerr.Wrapf(err, "initializing facility schema")
}

func (s *Store) ReplaceAll(ctx context.Context, facilities []model.Facility) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.RepositoryFailure, err, "beginning replace_all transaction")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "TRUNCATE facilities"); err != nil {
		return apperr.Wrap(apperr.RepositoryFailure, err, "truncating facilities")
	}

	for start := 0; start < len(facilities); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(facilities) {
			end = len(facilities)
		}
		if err := insertBatch(ctx, tx, facilities[start:end]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.RepositoryFailure, err, "committing replace_all")
	}
	return nil
}

func insertBatch(ctx context.Context, tx pgx.Tx, batch []model.Facility) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO facilities
		(id, source_id, name, address, city, state, postal_code, latitude, longitude,
		 jurisdiction, trust_score, inspections, updated_at, latest_inspected_at) VALUES `)
	args := make([]interface{}, 0, len(batch)*14)
	for i, f := range batch {
		if i > 0 {
			sb.WriteString(",")
		}
		base := i * 14
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
			base+9, base+10, base+11, base+12, base+13, base+14)

		inspectionsJSON, err := json.Marshal(f.Inspections)
		if err != nil {
			return apperr.Wrap(apperr.RepositoryFailure, err, "marshaling inspections")
		}
		var latest interface{}
		if insp, ok := f.LatestInspection(); ok {
			latest = insp.InspectedAt
		}
		args = append(args,
			f.ID, f.SourceID, f.Name, f.Address, f.City, f.State, f.PostalCode,
			f.Latitude, f.Longitude, f.Jurisdiction.Code(), f.TrustScore,
			inspectionsJSON, f.UpdatedAt, latest,
		)
	}
	_, err := tx.Exec(ctx, sb.String(), args...)
	return apperr.Wrap(apperr.RepositoryFailure, err, "inserting facility batch")
}

var facilityColumnNames = []string{
	"id", "source_id", "name", "address", "city", "state", "postal_code",
	"latitude", "longitude", "jurisdiction", "trust_score", "inspections", "updated_at",
}

var facilityColumns = strings.Join(facilityColumnNames, ", ")

// prefixedFacilityColumns joins facilityColumnNames with prefix. on every
// column, used to disambiguate the page CTE's columns in the final SELECT.
func prefixedFacilityColumns(prefix string) string {
	out := make([]string, len(facilityColumnNames))
	for i, c := range facilityColumnNames {
		out[i] = prefix + "." + c
	}
	return strings.Join(out, ", ")
}

func scanFacility(row pgx.Row) (model.Facility, error) {
	var f model.Facility
	var jurisdictionCode string
	var inspectionsJSON []byte
	err := row.Scan(&f.ID, &f.SourceID, &f.Name, &f.Address, &f.City, &f.State, &f.PostalCode,
		&f.Latitude, &f.Longitude, &jurisdictionCode, &f.TrustScore, &inspectionsJSON, &f.UpdatedAt)
	if err != nil {
		return model.Facility{}, err
	}
	if j, ok := model.ParseJurisdiction(jurisdictionCode); ok {
		f.Jurisdiction = j
	}
	if err := json.Unmarshal(inspectionsJSON, &f.Inspections); err != nil {
		return model.Facility{}, err
	}
	return f, nil
}

func (s *Store) List(ctx context.Context) ([]model.Facility, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+facilityColumns+" FROM facilities")
	if err != nil {
		return nil, apperr.Wrap(apperr.RepositoryFailure, err, "listing facilities")
	}
	defer rows.Close()

	var out []model.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.RepositoryFailure, err, "scanning facility")
		}
		out = append(out, f)
	}
	return out, apperr.Wrap(apperr.RepositoryFailure, rows.Err(), "iterating facilities")
}

func (s *Store) GetByID(ctx context.Context, id string) (model.Facility, bool, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+facilityColumns+" FROM facilities WHERE id = $1", id)
	f, err := scanFacility(row)
	if err == pgx.ErrNoRows {
		return model.Facility{}, false, nil
	}
	if err != nil {
		return model.Facility{}, false, apperr.Wrap(apperr.RepositoryFailure, err, "getting facility")
	}
	return f, true, nil
}

func (s *Store) SetSystemIngestionStatus(ctx context.Context, status model.SystemIngestionStatus) error {
	connectorsJSON, err := json.Marshal(status.Connectors)
	if err != nil {
		return apperr.Wrap(apperr.RepositoryFailure, err, "marshaling connector statuses")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO system_ingestion_status (id, last_refresh_at, unique_facilities, connectors)
		VALUES ('1', $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			last_refresh_at = EXCLUDED.last_refresh_at,
			unique_facilities = EXCLUDED.unique_facilities,
			connectors = EXCLUDED.connectors`,
		status.LastRefreshAt, status.UniqueFacilities, connectorsJSON)
	return apperr.Wrap(apperr.RepositoryFailure, err, "setting system ingestion status")
}

func (s *Store) GetSystemIngestionStatus(ctx context.Context) (model.SystemIngestionStatus, bool, error) {
	var status model.SystemIngestionStatus
	var connectorsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT last_refresh_at, unique_facilities, connectors FROM system_ingestion_status WHERE id = '1'`,
	).Scan(&status.LastRefreshAt, &status.UniqueFacilities, &connectorsJSON)
	if err == pgx.ErrNoRows {
		return model.SystemIngestionStatus{}, false, nil
	}
	if err != nil {
		return model.SystemIngestionStatus{}, false, apperr.Wrap(apperr.RepositoryFailure, err, "getting system ingestion status")
	}
	if err := json.Unmarshal(connectorsJSON, &status.Connectors); err != nil {
		return model.SystemIngestionStatus{}, false, apperr.Wrap(apperr.RepositoryFailure, err, "unmarshaling connector statuses")
	}
	return status, true, nil
}

func (s *Store) UpsertFacilityVote(ctx context.Context, facilityID, voterKey string, vote model.VoteValue) (model.FacilityVoteSummary, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM facilities WHERE id = $1)", facilityID).Scan(&exists); err != nil {
		return model.FacilityVoteSummary{}, apperr.Wrap(apperr.RepositoryFailure, err, "checking facility existence")
	}
	if !exists {
		return model.FacilityVoteSummary{}, apperr.New(apperr.NotFound, "facility not found")
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO facility_votes (facility_id, voter_key, vote, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (facility_id, voter_key) DO UPDATE SET
			vote = EXCLUDED.vote, updated_at = EXCLUDED.updated_at`,
		facilityID, voterKey, int16(vote))
	if err != nil {
		return model.FacilityVoteSummary{}, apperr.Wrap(apperr.RepositoryFailure, err, "upserting facility vote")
	}

	summaries, err := s.GetFacilityVoteSummaries(ctx, []string{facilityID})
	if err != nil {
		return model.FacilityVoteSummary{}, err
	}
	return summaries[facilityID], nil
}

func (s *Store) GetFacilityVoteSummaries(ctx context.Context, ids []string) (map[string]model.FacilityVoteSummary, error) {
	out := make(map[string]model.FacilityVoteSummary, len(ids))
	for _, id := range ids {
		out[id] = model.FacilityVoteSummary{}
	}
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT facility_id,
		       SUM(CASE WHEN vote = 1 THEN 1 ELSE 0 END) AS likes,
		       SUM(CASE WHEN vote = -1 THEN 1 ELSE 0 END) AS dislikes
		FROM facility_votes
		WHERE facility_id = ANY($1)
		GROUP BY facility_id`, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.RepositoryFailure, err, "getting facility vote summaries")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var summary model.FacilityVoteSummary
		if err := rows.Scan(&id, &summary.Likes, &summary.Dislikes); err != nil {
			return nil, apperr.Wrap(apperr.RepositoryFailure, err, "scanning vote summary")
		}
		out[id] = summary
	}
	return out, apperr.Wrap(apperr.RepositoryFailure, rows.Err(), "iterating vote summaries")
}

// SearchFacilities expresses §4.6's pipeline as a single statement with
// staged CTEs: scored (candidate selection + ranking signals), counts
// (facet counts over scored), sliced (score-slice filter), sliced_total
// (count over sliced), page (order + limit + offset). The final SELECT
// CROSS JOINs counts with sliced_total and LEFT JOINs page, so the counts
// come back even for an empty page.
func (s *Store) SearchFacilities(ctx context.Context, q repository.SearchQuery) (repository.SearchResult, error) {
	textMode := strings.TrimSpace(q.Text) != ""
	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	var sb strings.Builder
	args := []interface{}{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	sb.WriteString("WITH scored AS (SELECT f.*, ")
	if textMode {
		q1 := arg(q.Text)
		sb.WriteString(fmt.Sprintf(
			"ts_rank(f.search_vector, plainto_tsquery('english', %s)) AS fts_rank, similarity(f.name, %s) AS name_sim, ",
			q1, q1))
		if q.Latitude != nil && q.Longitude != nil {
			lat, lon := arg(*q.Latitude), arg(*q.Longitude)
			sb.WriteString(fmt.Sprintf("earth_distance(ll_to_earth(%s, %s), ll_to_earth(f.latitude, f.longitude)) AS distance_meters ", lat, lon))
		} else {
			sb.WriteString("NULL::double precision AS distance_meters ")
		}
	} else {
		sb.WriteString("0::real AS fts_rank, 0::real AS name_sim, ")
		if q.Latitude != nil && q.Longitude != nil {
			lat, lon := arg(*q.Latitude), arg(*q.Longitude)
			sb.WriteString(fmt.Sprintf("earth_distance(ll_to_earth(%s, %s), ll_to_earth(f.latitude, f.longitude)) AS distance_meters ", lat, lon))
		} else {
			sb.WriteString("NULL::double precision AS distance_meters ")
		}
	}
	sb.WriteString("FROM facilities f WHERE TRUE")

	if textMode {
		q2 := arg(q.Text)
		sb.WriteString(fmt.Sprintf(
			" AND (f.search_vector @@ plainto_tsquery('english', %s) OR similarity(f.name, %s) > 0.15)", q2, q2))
	} else if q.Latitude != nil && q.Longitude != nil {
		radius := 0.1
		if q.RadiusMiles != nil && *q.RadiusMiles > radius {
			radius = *q.RadiusMiles
		}
		lat, lon, miles := arg(*q.Latitude), arg(*q.Longitude), arg(radius)
		sb.WriteString(fmt.Sprintf(
			" AND earth_distance(ll_to_earth(%s, %s), ll_to_earth(f.latitude, f.longitude)) <= %s * 1609.344", lat, lon, miles))
	}

	if q.Jurisdiction != "" && !strings.EqualFold(q.Jurisdiction, "all") {
		if j, ok := model.ParseJurisdiction(q.Jurisdiction); ok {
			code := arg(j.Code())
			sb.WriteString(fmt.Sprintf(" AND f.jurisdiction = %s", code))
		} else {
			sb.WriteString(" AND FALSE")
		}
	}

	if q.RecentOnly {
		sb.WriteString(" AND f.latest_inspected_at >= now() - interval '90 days'")
	}

	sb.WriteString(`), counts AS (
		SELECT
			count(*) AS all_count,
			count(*) FILTER (WHERE trust_score >= 90) AS elite_count,
			count(*) FILTER (WHERE trust_score >= 80 AND trust_score < 90) AS solid_count,
			count(*) FILTER (WHERE trust_score < 80) AS watch_count
		FROM scored
	), sliced AS (SELECT * FROM scored WHERE TRUE`)

	switch q.ScoreSlice {
	case "elite":
		sb.WriteString(" AND trust_score >= 90")
	case "solid":
		sb.WriteString(" AND trust_score >= 80 AND trust_score < 90")
	case "watch":
		sb.WriteString(" AND trust_score < 80")
	}

	sb.WriteString(`), sliced_total AS (
		SELECT count(*) AS total FROM sliced
	), page AS (SELECT * FROM sliced ORDER BY `)

	switch q.Sort {
	case "recent_desc":
		sb.WriteString("latest_inspected_at DESC NULLS LAST, trust_score DESC")
	case "name_asc":
		sb.WriteString("name ASC")
	default:
		if textMode {
			sb.WriteString("(10*fts_rank + 5*name_sim + GREATEST(0, 5 - coalesce(distance_meters,0)/10000.0)) DESC, trust_score DESC")
		} else {
			sb.WriteString("trust_score DESC, updated_at DESC")
		}
	}

	limitArg, offsetArg := arg(pageSize), arg((page-1)*pageSize)
	sb.WriteString(fmt.Sprintf(" LIMIT %s OFFSET %s)", limitArg, offsetArg))

	sb.WriteString(fmt.Sprintf(`
		SELECT counts.all_count, counts.elite_count, counts.solid_count, counts.watch_count,
		       sliced_total.total,
		       %s
		FROM counts CROSS JOIN sliced_total LEFT JOIN page ON TRUE`, prefixedFacilityColumns("page")))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return repository.SearchResult{}, apperr.Wrap(apperr.RepositoryFailure, err, "searching facilities")
	}
	defer rows.Close()

	var result repository.SearchResult
	for rows.Next() {
		var jurisdictionCode *string
		var inspectionsJSON []byte
		var f model.Facility
		var fID, fSourceID, fName, fAddress, fCity, fState, fPostal *string
		var fLat, fLon *float64
		var fTrust *int
		var fUpdatedAt pgtype.Timestamptz

		err := rows.Scan(&result.SliceCounts.All, &result.SliceCounts.Elite, &result.SliceCounts.Solid, &result.SliceCounts.Watch,
			&result.TotalCount,
			&fID, &fSourceID, &fName, &fAddress, &fCity, &fState, &fPostal, &fLat, &fLon,
			&jurisdictionCode, &fTrust, &inspectionsJSON, &fUpdatedAt)
		if err != nil {
			return repository.SearchResult{}, apperr.Wrap(apperr.RepositoryFailure, err, "scanning search row")
		}
		if fID == nil {
			continue // empty page, counts still populated
		}
		f.ID, f.SourceID, f.Name, f.Address, f.City, f.State, f.PostalCode =
			*fID, *fSourceID, *fName, *fAddress, *fCity, *fState, *fPostal
		f.Latitude, f.Longitude, f.TrustScore = *fLat, *fLon, *fTrust
		if jurisdictionCode != nil {
			if j, ok := model.ParseJurisdiction(*jurisdictionCode); ok {
				f.Jurisdiction = j
			}
		}
		if err := json.Unmarshal(inspectionsJSON, &f.Inspections); err != nil {
			return repository.SearchResult{}, apperr.Wrap(apperr.RepositoryFailure, err, "unmarshaling inspections")
		}
		if fUpdatedAt.Status == pgtype.Present {
			f.UpdatedAt = fUpdatedAt.Time
		}
		result.Rows = append(result.Rows, f)
	}
	return result, apperr.Wrap(apperr.RepositoryFailure, rows.Err(), "iterating search results")
}

func (s *Store) Autocomplete(ctx context.Context, prefix string, limit int) ([]model.AutocompleteSuggestion, error) {
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

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, city, postal_code, trust_score
		FROM facilities
		WHERE name ILIKE '%' || $1 || '%' OR city ILIKE '%' || $1 || '%'
		   OR postal_code LIKE $1 || '%' OR name % $1
		ORDER BY similarity(name, $1) DESC, trust_score DESC
		LIMIT $2`, prefix, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.RepositoryFailure, err, "autocomplete query")
	}
	defer rows.Close()

	var out []model.AutocompleteSuggestion
	for rows.Next() {
		var a model.AutocompleteSuggestion
		if err := rows.Scan(&a.ID, &a.Name, &a.City, &a.PostalCode, &a.TrustScore); err != nil {
			return nil, apperr.Wrap(apperr.RepositoryFailure, err, "scanning autocomplete row")
		}
		out = append(out, a)
	}
	return out, apperr.Wrap(apperr.RepositoryFailure, rows.Err(), "iterating autocomplete rows")
}

func (s *Store) TopPicks(ctx context.Context, limit int) ([]model.Facility, map[string]model.FacilityVoteSummary, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, "SELECT "+prefixedFacilityColumns("f")+`
		FROM facilities f
		JOIN (
			SELECT facility_id,
			       SUM(CASE WHEN vote = 1 THEN 1 ELSE 0 END) AS likes,
			       SUM(CASE WHEN vote = -1 THEN 1 ELSE 0 END) AS dislikes
			FROM facility_votes
			GROUP BY facility_id
			HAVING SUM(CASE WHEN vote = 1 THEN 1 ELSE 0 END) > 0
		) v ON v.facility_id = f.id
		ORDER BY v.likes DESC, (v.likes - v.dislikes) DESC, f.trust_score DESC, f.updated_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.RepositoryFailure, err, "top picks query")
	}
	defer rows.Close()

	var facilities []model.Facility
	var ids []string
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.RepositoryFailure, err, "scanning top pick")
		}
		facilities = append(facilities, f)
		ids = append(ids, f.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperr.Wrap(apperr.RepositoryFailure, err, "iterating top picks")
	}

	summaries, err := s.GetFacilityVoteSummaries(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return facilities, summaries, nil
}
