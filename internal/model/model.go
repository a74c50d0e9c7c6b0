// Package model holds the facility-directory data model: jurisdictions,
// inspections, facilities, votes, and the aggregate types the search and
// ingestion pipelines pass between each other.
package model

import (
	"strings"
	"time"
)

// Jurisdiction is one of the closed set of health departments this system
// covers.
type Jurisdiction struct {
	code  string
	label string
}

func (j Jurisdiction) Code() string  { return j.code }
func (j Jurisdiction) Label() string { return j.label }
func (j Jurisdiction) IsZero() bool  { return j.code == "" }

var (
	LosAngelesCounty  = Jurisdiction{"lac", "Los Angeles County"}
	SanDiegoCounty    = Jurisdiction{"sdc", "San Diego County"}
	LongBeach         = Jurisdiction{"lb", "Long Beach"}
	RiversideCounty   = Jurisdiction{"riv", "Riverside County"}
	SanBernardinoCounty = Jurisdiction{"sbc", "San Bernardino County"}
	OrangeCounty      = Jurisdiction{"oc", "Orange County"}
	Pasadena          = Jurisdiction{"pas", "Pasadena"}
)

// AllJurisdictions lists the closed enumeration in a stable order.
var AllJurisdictions = []Jurisdiction{
	LosAngelesCounty, SanDiegoCounty, LongBeach, RiversideCounty,
	SanBernardinoCounty, OrangeCounty, Pasadena,
}

// ParseJurisdiction accepts either a code or a label, case-insensitively.
func ParseJurisdiction(s string) (Jurisdiction, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	for _, j := range AllJurisdictions {
		if strings.ToLower(j.code) == s || strings.ToLower(j.label) == s {
			return j, true
		}
	}
	return Jurisdiction{}, false
}

// Violation is an immutable line item attached to an inspection.
type Violation struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Points      int16  `json:"points"`
	Critical    bool   `json:"critical"`
}

// Inspection is one inspection event, unique within its facility by
// InspectionID.
type Inspection struct {
	InspectionID   string      `json:"inspection_id"`
	InspectedAt    time.Time   `json:"inspected_at"`
	RawScore       *int        `json:"raw_score,omitempty"`
	LetterGrade    string      `json:"letter_grade,omitempty"`
	PlacardStatus  string      `json:"placard_status,omitempty"`
	Violations     []Violation `json:"violations"`
}

// Facility is one physical inspected location. ID is canonical:
// "<jurisdiction_code>::<source_id>".
type Facility struct {
	ID           string       `json:"id"`
	SourceID     string       `json:"source_id"`
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	City         string       `json:"city"`
	State        string       `json:"state"`
	PostalCode   string       `json:"postal_code"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	Jurisdiction Jurisdiction `json:"-"`
	TrustScore   int          `json:"trust_score"`
	Inspections  []Inspection `json:"inspections"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// JurisdictionCode and JurisdictionLabel are convenience accessors used by
// JSON-facing DTOs, which need the jurisdiction as plain strings.
func (f Facility) JurisdictionCode() string  { return f.Jurisdiction.Code() }
func (f Facility) JurisdictionLabel() string { return f.Jurisdiction.Label() }

// LatestInspection returns the inspection with the most recent InspectedAt,
// or the zero value and false if there are none.
func (f Facility) LatestInspection() (Inspection, bool) {
	var latest Inspection
	found := false
	for _, insp := range f.Inspections {
		if !found || insp.InspectedAt.After(latest.InspectedAt) {
			latest = insp
			found = true
		}
	}
	return latest, found
}

// VoteValue is a community vote on a facility, persisted as +-1.
type VoteValue int8

const (
	Dislike VoteValue = -1
	Like    VoteValue = 1
)

// ParseVoteValue accepts the wire strings "like"/"dislike".
func ParseVoteValue(s string) (VoteValue, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "like":
		return Like, true
	case "dislike":
		return Dislike, true
	default:
		return 0, false
	}
}

// FacilityVoteSummary is the aggregated vote tally for one facility.
type FacilityVoteSummary struct {
	Likes    uint64 `json:"likes"`
	Dislikes uint64 `json:"dislikes"`
}

func (s FacilityVoteSummary) Score() int64 { return int64(s.Likes) - int64(s.Dislikes) }

// ScoreSliceCounts is the facet-count breakdown computed pre-score-slice.
type ScoreSliceCounts struct {
	All   int64 `json:"all"`
	Elite int64 `json:"elite"`
	Solid int64 `json:"solid"`
	Watch int64 `json:"watch"`
}

// ScoreSlice classifies a trust score into its facet band.
func ScoreSlice(trustScore int) string {
	switch {
	case trustScore >= 90:
		return "elite"
	case trustScore >= 80:
		return "solid"
	default:
		return "watch"
	}
}

// ConnectorIngestionStatus is the per-connector outcome of one fetch during
// a refresh cycle.
type ConnectorIngestionStatus struct {
	Source         string `json:"source"`
	FetchedRecords int    `json:"fetched_records"`
	Error          string `json:"error,omitempty"`
}

// SystemIngestionStatus is the single most-recent-refresh status row.
type SystemIngestionStatus struct {
	LastRefreshAt   time.Time                  `json:"last_refresh_at"`
	UniqueFacilities int                       `json:"unique_facilities"`
	Connectors      []ConnectorIngestionStatus `json:"connectors"`
}

// AutocompleteSuggestion is one autocomplete result row.
type AutocompleteSuggestion struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	TrustScore int    `json:"trust_score"`
}

// FacilitySummary is the page-row shape returned by search and top-picks.
type FacilitySummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	PostalCode   string    `json:"postal_code"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Jurisdiction string    `json:"jurisdiction"`
	TrustScore   int       `json:"trust_score"`
	UpdatedAt    time.Time `json:"updated_at"`
	Votes        FacilityVoteSummary `json:"votes"`
}

// FacilityDetail is the full single-facility shape, including inspections.
type FacilityDetail struct {
	FacilitySummary
	Inspections []Inspection `json:"inspections"`
}

func ToSummary(f Facility, votes FacilityVoteSummary) FacilitySummary {
	return FacilitySummary{
		ID:           f.ID,
		Name:         f.Name,
		Address:      f.Address,
		City:         f.City,
		State:        f.State,
		PostalCode:   f.PostalCode,
		Latitude:     f.Latitude,
		Longitude:    f.Longitude,
		Jurisdiction: f.Jurisdiction.Code(),
		TrustScore:   f.TrustScore,
		UpdatedAt:    f.UpdatedAt,
		Votes:        votes,
	}
}

func ToDetail(f Facility, votes FacilityVoteSummary) FacilityDetail {
	return FacilityDetail{
		FacilitySummary: ToSummary(f, votes),
		Inspections:     f.Inspections,
	}
}
