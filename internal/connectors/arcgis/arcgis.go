// Package arcgis implements the paginated ArcGIS FeatureServer query
// client shared by the LA County and lives-batch connectors, grounded on
// the prototype's generic query_features<T>() helper.
package arcgis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/trustguide/directory/internal/skerr"
)

// DefaultPageSize is used by callers that don't override it via their own
// env var.
const DefaultPageSize = 1000

// Client queries one ArcGIS FeatureServer layer, following
// resultOffset/resultRecordCount pagination until exceededTransferLimit is
// false or a page returns no features.
type Client struct {
	HTTP     *http.Client
	PageSize int
}

func NewClient(timeout time.Duration, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Client{HTTP: &http.Client{Timeout: timeout}, PageSize: pageSize}
}

// Feature is one ArcGIS feature's flattened attribute bag; geometry is not
// modeled since every connector using this client reads lat/lon from
// attribute columns instead.
type Feature struct {
	Attributes map[string]interface{} `json:"attributes"`
}

type featureResponse struct {
	Features               []Feature `json:"features"`
	ExceededTransferLimit  bool      `json:"exceededTransferLimit"`
}

// QueryAll pages through queryURL's /query endpoint, accumulating every
// feature's attribute bag. whereClause defaults to "1=1" (all rows) when
// empty.
func (c *Client) QueryAll(ctx context.Context, queryURL, whereClause, outFields string) ([]map[string]interface{}, error) {
	if whereClause == "" {
		whereClause = "1=1"
	}
	if outFields == "" {
		outFields = "*"
	}

	var all []map[string]interface{}
	offset := 0
	for {
		vals := url.Values{}
		vals.Set("where", whereClause)
		vals.Set("outFields", outFields)
		vals.Set("f", "json")
		vals.Set("resultOffset", strconv.Itoa(offset))
		vals.Set("resultRecordCount", strconv.Itoa(c.PageSize))

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL+"?"+vals.Encode(), nil)
		if err != nil {
			return nil, skerr.Wrapf(err, "building arcgis query request")
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, skerr.Wrapf(err, "querying arcgis feature server")
		}
		if resp.StatusCode/100 != 2 {
			resp.Body.Close()
			return nil, skerr.Fmt("arcgis query returned status %d", resp.StatusCode)
		}

		var page featureResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, skerr.Wrapf(err, "decoding arcgis query response")
		}

		for _, f := range page.Features {
			all = append(all, f.Attributes)
		}

		if !page.ExceededTransferLimit || len(page.Features) == 0 {
			break
		}
		offset += len(page.Features)
	}
	return all, nil
}

// AttrString reads a string-valued attribute, tolerating numeric or missing
// values, since upstream feeds vary widely in the representation of the
// same logical field.
func AttrString(attrs map[string]interface{}, key string) string {
	v, ok := attrs[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// AttrFloat reads a float64-valued attribute, returning ok=false when
// absent or non-numeric.
func AttrFloat(attrs map[string]interface{}, key string) (float64, bool) {
	v, ok := attrs[key]
	if !ok || v == nil {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}
