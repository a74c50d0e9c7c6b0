// Package lacounty implements the Los Angeles County connector: a
// three-way join across ArcGIS FeatureServer layers (inspections,
// inventory, violations) keyed by a shared facility serial number,
// grounded on the prototype's la_county_connector.rs.
package lacounty

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/trustguide/directory/internal/connectors"
	"github.com/trustguide/directory/internal/connectors/arcgis"
	"github.com/trustguide/directory/internal/skerr"
)

const sourceName = "la_county"

const (
	defaultInventoryURL   = "https://public.gis.lacounty.gov/public/rest/services/LACounty_Cache/EHS_Food_Facility_Inventory/FeatureServer/0"
	defaultInspectionsURL = "https://public.gis.lacounty.gov/public/rest/services/LACounty_Cache/EHS_Food_Facility_Inspections/FeatureServer/0"
	defaultViolationsURL  = "https://public.gis.lacounty.gov/public/rest/services/LACounty_Cache/EHS_Food_Facility_Violations/FeatureServer/0"

	defaultLatitude  = 34.0522
	defaultLongitude = -118.2437
	criticalPoints   = 4
	queryChunkSize   = 50
)

// Connector fetches and joins the three LA County FeatureServer layers.
type Connector struct {
	client         *arcgis.Client
	inventoryURL   string
	inspectionsURL string
	violationsURL  string
}

// FromEnv builds a Connector from LAC_* environment overrides, falling
// back to LA County's public endpoints.
func FromEnv() *Connector {
	timeout := 30 * time.Second
	if v := os.Getenv("LAC_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			timeout = time.Duration(secs) * time.Second
		}
	}
	pageSize := arcgis.DefaultPageSize
	if v := os.Getenv("LAC_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pageSize = n
		}
	}
	return &Connector{
		client:         arcgis.NewClient(timeout, pageSize),
		inventoryURL:   envOr("LAC_INVENTORY_URL", defaultInventoryURL),
		inspectionsURL: envOr("LAC_INSPECTIONS_URL", defaultInspectionsURL),
		violationsURL:  envOr("LAC_VIOLATIONS_URL", defaultViolationsURL),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Connector) SourceName() string { return sourceName }

func (c *Connector) FetchFacilities(ctx context.Context) ([]connectors.SourceFacilityInput, error) {
	inspections, err := c.client.QueryAll(ctx, c.inspectionsURL, "", "*")
	if err != nil {
		return nil, skerr.Wrapf(err, "fetching LA county inspections")
	}
	inventory, err := c.client.QueryAll(ctx, c.inventoryURL, "", "*")
	if err != nil {
		return nil, skerr.Wrapf(err, "fetching LA county inventory")
	}
	violations, err := c.client.QueryAll(ctx, c.violationsURL, "", "*")
	if err != nil {
		return nil, skerr.Wrapf(err, "fetching LA county violations")
	}

	inventoryBySerial := make(map[string]map[string]interface{}, len(inventory))
	for _, row := range inventory {
		if serial := arcgis.AttrString(row, "SERIAL_NUMBER"); serial != "" {
			inventoryBySerial[serial] = row
		}
	}

	type violationRecord struct {
		description string
		points      int
	}
	violationsBySerial := make(map[string][]violationRecord, len(violations))
	for _, row := range violations {
		serial := arcgis.AttrString(row, "SERIAL_NUMBER")
		if serial == "" {
			serial = arcgis.AttrString(row, "FACILITY_ID")
		}
		points := 0
		if p, ok := arcgis.AttrFloat(row, "POINTS"); ok {
			points = int(p)
		}
		violationsBySerial[serial] = append(violationsBySerial[serial], violationRecord{
			description: arcgis.AttrString(row, "VIOLATION_DESCRIPTION"),
			points:      points,
		})
	}

	out := make([]connectors.SourceFacilityInput, 0, len(inspections))
	for i, row := range inspections {
		serial := argisID(row)
		facilityID := arcgis.AttrString(row, "FACILITY_ID")
		if facilityID == "" {
			facilityID = serial
		}

		inv := inventoryBySerial[serial]
		name := firstNonEmpty(arcgis.AttrString(row, "FACILITY_NAME"), arcgis.AttrString(inv, "FACILITY_NAME"), "Unknown Facility")
		address := firstNonEmpty(arcgis.AttrString(row, "FACILITY_ADDRESS"), arcgis.AttrString(inv, "FACILITY_ADDRESS"))
		city := firstNonEmpty(arcgis.AttrString(row, "FACILITY_CITY"), arcgis.AttrString(inv, "FACILITY_CITY"), "Los Angeles")
		postal := firstNonEmpty(arcgis.AttrString(row, "FACILITY_ZIP"), arcgis.AttrString(inv, "FACILITY_ZIP"))

		lat, latOK := arcgis.AttrFloat(inv, "LATITUDE")
		lon, lonOK := arcgis.AttrFloat(inv, "LONGITUDE")
		if !latOK {
			lat = defaultLatitude
		}
		if !lonOK {
			lon = defaultLongitude
		}

		sourceID := facilityID
		if sourceID == "" {
			sourceID = connectors.SyntheticSourceID(name, address, city, i)
		}

		inspectedAt := time.Now().UTC()
		if raw := arcgis.AttrString(row, "ACTIVITY_DATE"); raw != "" {
			if t, ok := connectors.ParseDate(raw); ok {
				inspectedAt = t
			}
		}

		var rawScore *int
		if score, ok := arcgis.AttrFloat(row, "SCORE"); ok {
			s := int(score)
			rawScore = &s
		}

		var violationList []connectors.Violation
		for _, v := range violationsBySerial[serial] {
			violationList = append(violationList, connectors.Violation{
				Description: v.description,
				Points:      int16(v.points),
				Critical:    v.points >= criticalPoints,
			})
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
			Violations:  violationList,
		})
	}
	return out, nil
}

func argisID(row map[string]interface{}) string {
	if s := arcgis.AttrString(row, "SERIAL_NUMBER"); s != "" {
		return s
	}
	return arcgis.AttrString(row, "FACILITY_ID")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// chunk splits ids into groups of queryChunkSize, matching the prototype's
// chunked IN (...) lookups -- kept here for any future lookup this
// connector adds that needs a targeted query instead of a full layer scan.
func chunk(ids []string) [][]string {
	var chunks [][]string
	for i := 0; i < len(ids); i += queryChunkSize {
		end := i + queryChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}
