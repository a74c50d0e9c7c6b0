// Package sandiego implements the San Diego County connector over the
// Socrata SODA API, grounded on the prototype's san_diego_connector.rs.
package sandiego

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/trustguide/directory/internal/connectors"
	"github.com/trustguide/directory/internal/skerr"
)

const sourceName = "san_diego"

const (
	defaultBaseURL   = "https://internal-sandiegocounty.data.socrata.com"
	defaultDatasetID = "c5ez-ufrd"
	defaultPageSize  = 5000
)

// Connector fetches San Diego County's inspection dataset via SODA
// pagination ($limit/$offset).
type Connector struct {
	http      *http.Client
	baseURL   string
	datasetID string
	pageSize  int
}

func FromEnv() *Connector {
	timeout := 30 * time.Second
	if v := os.Getenv("SD_TIMEOUT_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			timeout = time.Duration(secs) * time.Second
		}
	}
	pageSize := defaultPageSize
	if v := os.Getenv("SD_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pageSize = n
		}
	}
	return &Connector{
		http:      &http.Client{Timeout: timeout},
		baseURL:   envOr("SD_SOCRATA_BASE_URL", defaultBaseURL),
		datasetID: envOr("SD_SOCRATA_DATASET_ID", defaultDatasetID),
		pageSize:  pageSize,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *Connector) SourceName() string { return sourceName }

type sodaRow map[string]string

func (c *Connector) FetchFacilities(ctx context.Context) ([]connectors.SourceFacilityInput, error) {
	var out []connectors.SourceFacilityInput
	offset := 0
	rowIndex := 0
	for {
		vals := url.Values{}
		vals.Set("$limit", strconv.Itoa(c.pageSize))
		vals.Set("$offset", strconv.Itoa(offset))
		vals.Set("$order", ":id")

		endpoint := c.baseURL + "/resource/" + c.datasetID + ".json?" + vals.Encode()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, skerr.Wrapf(err, "building socrata request")
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, skerr.Wrapf(err, "querying socrata dataset")
		}
		if resp.StatusCode/100 != 2 {
			resp.Body.Close()
			return nil, skerr.Fmt("socrata query returned status %d", resp.StatusCode)
		}

		var rows []sodaRow
		err = json.NewDecoder(resp.Body).Decode(&rows)
		resp.Body.Close()
		if err != nil {
			return nil, skerr.Wrapf(err, "decoding socrata response")
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			out = append(out, normalize(row, rowIndex))
			rowIndex++
		}

		if len(rows) < c.pageSize {
			break
		}
		offset += len(rows)
	}
	return out, nil
}

func normalize(row sodaRow, rowIndex int) connectors.SourceFacilityInput {
	name := row["business_name"]
	if name == "" {
		name = row["name"]
	}
	address := row["address"]
	city := row["city"]
	if city == "" {
		city = "San Diego"
	}
	postal := row["zip"]

	lat, _ := strconv.ParseFloat(row["latitude"], 64)
	lon, _ := strconv.ParseFloat(row["longitude"], 64)

	sourceID := row["record_id"]
	if sourceID == "" {
		sourceID = connectors.SyntheticSourceID(name, address, city, rowIndex)
	}

	inspectedAt := time.Now().UTC()
	if raw := row["inspection_date"]; raw != "" {
		if t, ok := connectors.ParseDate(raw); ok {
			inspectedAt = t
		}
	}

	var rawScore *int
	if s, err := strconv.Atoi(row["score"]); err == nil {
		rawScore = &s
	}

	return connectors.SourceFacilityInput{
		SourceID:      sourceID,
		Name:          name,
		Address:       address,
		City:          city,
		State:         "CA",
		PostalCode:    postal,
		Latitude:      lat,
		Longitude:     lon,
		InspectedAt:   inspectedAt,
		RawScore:      rawScore,
		LetterGrade:   row["grade"],
		PlacardStatus: row["placard_status"],
	}
}
