package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/oca-cli/internal/resilience"
)

const geoclientURL = "https://api.nyc.gov/geo/geoclient/v2"

// GeoclientClient implements Geosupport over the NYC Geoclient v2 API.
type GeoclientClient struct {
	key  string
	opts options
}

// NewGeoclient creates a client authenticated with an API subscription key.
func NewGeoclient(key string, opts ...Option) *GeoclientClient {
	return &GeoclientClient{
		key: key,
		opts: newOptions(options{
			httpClient: &http.Client{Timeout: 30 * time.Second},
			limiter:    rate.NewLimiter(50, 50),
			baseURL:    geoclientURL,
		}, opts),
	}
}

// jsonText accepts a JSON string or number.
type jsonText string

func (t *jsonText) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = jsonText(s)
		return nil
	}
	if string(b) == "null" {
		*t = ""
		return nil
	}
	*t = jsonText(b)
	return nil
}

type geoclientResponse struct {
	Address struct {
		ReturnCode        jsonText `json:"geosupportReturnCode"`
		ReturnCode2       jsonText `json:"geosupportReturnCode2"`
		Message           jsonText `json:"message"`
		Message2          jsonText `json:"message2"`
		HouseNumber       jsonText `json:"houseNumber"`
		StreetName        jsonText `json:"firstStreetNameNormalized"`
		Borough           jsonText `json:"firstBoroughName"`
		Latitude          jsonText `json:"latitude"`
		Longitude         jsonText `json:"longitude"`
		BIN               jsonText `json:"buildingIdentificationNumber"`
		BBL               jsonText `json:"bbl"`
		CommunityDistrict jsonText `json:"communityDistrict"`
		CensusTract       jsonText `json:"censusTract2010"`
		CouncilDistrict   jsonText `json:"cityCouncilDistrict"`
	} `json:"address"`
}

// Address implements Geosupport. Non-200 responses are errors; throttling
// and server errors are marked transient.
func (c *GeoclientClient) Address(ctx context.Context, req AddressRequest) (*Result, error) {
	if err := c.opts.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: geoclient rate limit")
	}

	params := url.Values{
		"houseNumber": {req.HouseNumber},
		"street":      {req.Street},
	}
	if req.Borough != "" {
		params.Set("borough", req.Borough)
	}
	if req.ZipCode != "" {
		params.Set("zip", req.ZipCode)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.baseURL+"/address.json?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: geoclient build request")
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", c.key)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.opts.httpClient.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: geoclient request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("geocode: geoclient returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: geoclient read body")
	}

	var gr geoclientResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, eris.Wrap(err, "geocode: geoclient parse response")
	}

	a := gr.Address
	res := &Result{
		ReturnCode:        string(a.ReturnCode),
		ReturnCode2:       string(a.ReturnCode2),
		Message:           string(a.Message),
		Message2:          string(a.Message2),
		HouseNumber:       string(a.HouseNumber),
		StreetName:        string(a.StreetName),
		Borough:           string(a.Borough),
		Latitude:          string(a.Latitude),
		Longitude:         string(a.Longitude),
		BIN:               string(a.BIN),
		BBL:               string(a.BBL),
		CommunityDistrict: string(a.CommunityDistrict),
		CensusTract:       string(a.CensusTract),
		CouncilDistrict:   string(a.CouncilDistrict),
	}
	// Out-of-range addresses (GRC 42) come back without a usable point.
	if !validCoordinate(res.Latitude) || !validCoordinate(res.Longitude) {
		res.Latitude, res.Longitude = "", ""
	}
	return res, nil
}

func validCoordinate(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
