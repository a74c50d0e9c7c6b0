// Package connectors defines the capability contract every upstream feed
// adapter implements, plus the shared normalization helpers (date parsing,
// synthetic id hashing) every concrete connector uses. Individual upstream
// wire shapes live in this package's subpackages (arcgis, lacounty,
// sandiego, longbeach, livesbatch, cpra) as implementation details, per
// spec.md's explicit framing of connectors as a capability set, not a
// shared base type.
package connectors

import (
	"context"
	"hash/fnv"
	"strconv"
	"strings"
	"time"
)

// SourceFacilityInput is the normalized shape every connector produces
// before the ingestion coordinator dedupes and stitches records together.
type SourceFacilityInput struct {
	SourceID      string
	Name          string
	Address       string
	City          string
	State         string
	PostalCode    string
	Latitude      float64
	Longitude     float64
	InspectedAt   time.Time
	RawScore      *int
	LetterGrade   string
	PlacardStatus string
	Violations    []Violation
}

// Violation mirrors model.Violation so this package has no dependency on
// the domain model -- connectors only produce raw input records.
type Violation struct {
	Code        string
	Description string
	Points      int16
	Critical    bool
}

// Connector is the capability contract: fetch a list of source records for
// one upstream feed. Implementations must be safe to call concurrently
// with themselves and with other connectors.
type Connector interface {
	SourceName() string
	FetchFacilities(ctx context.Context) ([]SourceFacilityInput, error)
}

// SyntheticSourceID derives a stable synthetic source_id via a
// deterministic hash of (name, address, city, rowIndex), for feeds that
// report no stable id of their own.
func SyntheticSourceID(name, address, city string, rowIndex int) string {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(name))))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(address))))
	h.Write([]byte{'|'})
	h.Write([]byte(strings.ToLower(strings.TrimSpace(city))))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.Itoa(rowIndex)))
	return strconv.FormatUint(h.Sum64(), 16)
}

// msEpochThreshold is the boundary §4.2 defines between epoch-seconds and
// epoch-milliseconds: any integer timestamp larger than this is assumed to
// be milliseconds.
const msEpochThreshold = 10_000_000_000

// ParseDate accepts RFC-3339, YYYY-MM-DD, MM/DD/YYYY, epoch-seconds, and
// epoch-milliseconds, returning the zero time and false if none match.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("01/02/2006", raw); err == nil {
		return t.UTC(), true
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > msEpochThreshold {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	return time.Time{}, false
}
