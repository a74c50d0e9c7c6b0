// Package livesbatch implements the "lives batch" connectors: San
// Bernardino County's ArcGIS FeatureServer (required, always configured)
// and Riverside County's (a separate connector instance, disabled unless
// its URL is set). They were originally one Connector that fetched both
// layers under a single SourceName, which mislabeled Riverside rows with
// San Bernardino's jurisdiction; split per-county so each FetchFacilities
// call maps to exactly one jurisdiction, matching every other connector in
// this package. Grounded on the prototype's lives_batch_connector.rs.
package livesbatch

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/trustguide/directory/internal/apperr"
	"github.com/trustguide/directory/internal/connectors"
	"github.com/trustguide/directory/internal/connectors/arcgis"
	"github.com/trustguide/directory/internal/skerr"
)

const (
	sourceNameSanBernardino = "lives_batch"
	sourceNameRiverside     = "riverside"
)

const (
	defaultSanBernardinoURL  = "https://gis.sbcounty.gov/server/rest/services/Public/EHS_Food_Facility_Inspections/FeatureServer/0"
	defaultPageSize          = 1000
	defaultSanBernardinoCity = "San Bernardino"
	defaultRiversideCity     = "Riverside"
)

// Connector fetches one county's ArcGIS FeatureServer layer.
type Connector struct {
	client      *arcgis.Client
	sourceName  string
	queryURL    string
	defaultCity string
}

// FromEnv builds the San Bernardino County connector. It always succeeds:
// SBC_ARCGIS_URL falls back to the county's public endpoint when unset.
func FromEnv() *Connector {
	client := clientFromEnv()
	return &Connector{
		client:      client,
		sourceName:  sourceNameSanBernardino,
		queryURL:    envOr("SBC_ARCGIS_URL", defaultSanBernardinoURL),
		defaultCity: defaultSanBernardinoCity,
	}
}

// FromEnvRiverside builds the Riverside County connector. Unlike San
// Bernardino, Riverside has no public default endpoint, so it returns
// apperr.ConfigFailure when RIVERSIDE_ARCGIS_URL is unset; the coordinator
// skips connectors that fail to construct.
func FromEnvRiverside() (*Connector, error) {
	url := os.Getenv("RIVERSIDE_ARCGIS_URL")
	if url == "" {
		return nil, apperr.New(apperr.ConfigFailure, "RIVERSIDE_ARCGIS_URL is not set")
	}
	return &Connector{
		client:      clientFromEnv(),
		sourceName:  sourceNameRiverside,
		queryURL:    url,
		defaultCity: defaultRiversideCity,
	}, nil
}

func clientFromEnv() *arcgis.Client {
	timeout := 30 * time.Second
	if v := os.Getenv("LIVES_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			timeout = time.Duration(secs) * time.Second
		}
	}
	pageSize := defaultPageSize
	if v := os.Getenv("LIVES_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pageSize = n
		}
	}
	return arcgis.NewClient(timeout, pageSize)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Connector) SourceName() string { return c.sourceName }

func (c *Connector) FetchFacilities(ctx context.Context) ([]connectors.SourceFacilityInput, error) {
	out, err := c.fetchLayer(ctx, c.queryURL, c.defaultCity, 0)
	if err != nil {
		return nil, skerr.Wrapf(err, "fetching %s facilities", c.sourceName)
	}
	return out, nil
}

func (c *Connector) fetchLayer(ctx context.Context, queryURL, defaultCity string, rowOffset int) ([]connectors.SourceFacilityInput, error) {
	rows, err := c.client.QueryAll(ctx, queryURL, "", "*")
	if err != nil {
		return nil, err
	}

	out := make([]connectors.SourceFacilityInput, 0, len(rows))
	for i, row := range rows {
		name := arcgis.AttrString(row, "FACILITY_NAME")
		if name == "" {
			name = "Unknown Facility"
		}
		address := arcgis.AttrString(row, "ADDRESS")
		city := arcgis.AttrString(row, "CITY")
		if city == "" {
			city = defaultCity
		}
		postal := arcgis.AttrString(row, "ZIP")

		lat, _ := arcgis.AttrFloat(row, "LATITUDE")
		lon, _ := arcgis.AttrFloat(row, "LONGITUDE")

		sourceID := arcgis.AttrString(row, "FACILITY_ID")
		if sourceID == "" {
			sourceID = connectors.SyntheticSourceID(name, address, city, rowOffset+i)
		}

		inspectedAt := time.Now().UTC()
		if raw := arcgis.AttrString(row, "INSPECTION_DATE"); raw != "" {
			if t, ok := connectors.ParseDate(raw); ok {
				inspectedAt = t
			}
		}

		var rawScore *int
		if s, ok := arcgis.AttrFloat(row, "SCORE"); ok {
			v := int(s)
			rawScore = &v
		}

		out = append(out, connectors.SourceFacilityInput{
			SourceID:    sourceID,
			Name:        name,
			Address:     address,
			City:        city,
			State:       "CA",
			PostalCode:  postal,
			Latitude:    lat,
			Longitude:   lon,
			InspectedAt: inspectedAt,
			RawScore:    rawScore,
			LetterGrade: arcgis.AttrString(row, "GRADE"),
		})
	}
	return out, nil
}
