// Package geocode provides clients for the NYC Geoclient API (single
// addresses resolved by Geosupport) and the Census batch geocoder.
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// AddressRequest is the input to a Geosupport address lookup.
type AddressRequest struct {
	HouseNumber string
	Street      string
	Borough     string // optional when ZipCode is set
	ZipCode     string
}

// Result holds the Geosupport output for one address. Failed lookups still
// carry their return codes and messages.
type Result struct {
	ReturnCode  string
	ReturnCode2 string
	Message     string
	Message2    string

	HouseNumber string // display format
	StreetName  string // first street name normalized
	Borough     string

	Latitude  string
	Longitude string

	BIN               string
	BBL               string
	CommunityDistrict string
	CensusTract       string
	CouncilDistrict   string
}

// OK reports whether Geosupport accepted the address. Return code 01 is a
// success with warnings.
func (r *Result) OK() bool {
	return r != nil && (r.ReturnCode == "00" || r.ReturnCode == "01")
}

// Geosupport resolves one address. A lookup Geosupport rejects is returned
// as a Result with OK() false; only transport failures are errors.
type Geosupport interface {
	Address(ctx context.Context, req AddressRequest) (*Result, error)
}

// BatchMatch is one row of a batch geocoder response.
type BatchMatch struct {
	ID        string
	Match     bool
	MatchType string // "Exact" or "Non_Exact" when matched
	Lat       string
	Lon       string
}

// BatchGeocoder resolves every address in a CSV file of
// id,street,city,state,zip rows in one call.
type BatchGeocoder interface {
	AddressBatch(ctx context.Context, csvPath string) ([]BatchMatch, error)
}

// Option configures a client.
type Option func(*options)

type options struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	benchmark  string
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(o *options) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBaseURL overrides the service endpoint.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = u
		}
	}
}

// WithBenchmark selects the Census benchmark (address ranges vintage).
func WithBenchmark(b string) Option {
	return func(o *options) {
		if b != "" {
			o.benchmark = b
		}
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.httpClient = &http.Client{Timeout: d, Transport: o.httpClient.Transport}
		}
	}
}

func newOptions(def options, opts []Option) options {
	o := def
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
