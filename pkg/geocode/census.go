package geocode

import (
	"context"
	"encoding/csv"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	censusBatchURL  = "https://geocoding.geo.census.gov/geocoder/locations/addressbatch"
	censusBenchmark = "Public_AR_Current"

	// CensusMaxBatch is the provider's row limit per request.
	CensusMaxBatch = 10000
)

// CensusClient implements BatchGeocoder over the Census locations batch API.
type CensusClient struct {
	opts options
}

// NewCensusClient creates a batch client. Batches take minutes on the
// provider side, so the default timeout is generous.
func NewCensusClient(opts ...Option) *CensusClient {
	return &CensusClient{opts: newOptions(options{
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		limiter:    rate.NewLimiter(1, 4),
		baseURL:    censusBatchURL,
		benchmark:  censusBenchmark,
	}, opts)}
}

// AddressBatch uploads csvPath and returns one BatchMatch per response row.
func (c *CensusClient) AddressBatch(ctx context.Context, csvPath string) ([]BatchMatch, error) {
	if err := c.opts.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: census batch rate limit")
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch open input")
	}
	defer f.Close() //nolint:errcheck

	// Stream the multipart body so large chunks are not buffered twice.
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeBatchForm(writer, c.opts.benchmark, filepath.Base(csvPath), f))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.baseURL, pr)
	if err != nil {
		pr.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "geocode: census batch build request")
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: census batch request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: census batch returned status %d", resp.StatusCode)
	}
	return parseCensusBatchResponse(resp.Body)
}

func writeBatchForm(w *multipart.Writer, benchmark, name string, src io.Reader) error {
	if err := w.WriteField("benchmark", benchmark); err != nil {
		return eris.Wrap(err, "geocode: census batch write benchmark")
	}
	part, err := w.CreateFormFile("addressFile", name)
	if err != nil {
		return eris.Wrap(err, "geocode: census batch create form file")
	}
	if _, err := io.Copy(part, src); err != nil {
		return eris.Wrap(err, "geocode: census batch write csv")
	}
	return eris.Wrap(w.Close(), "geocode: census batch close writer")
}

// parseCensusBatchResponse parses the Census batch CSV response.
// Format: "id","input address","Match|No_Match|Tie","Exact|Non_Exact","matched address","lon,lat","tigerlineid","side"
func parseCensusBatchResponse(r io.Reader) ([]BatchMatch, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var out []BatchMatch
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "geocode: census batch parse response")
		}
		if len(fields) < 3 {
			continue
		}

		m := BatchMatch{ID: strings.TrimSpace(fields[0])}
		if strings.EqualFold(strings.TrimSpace(fields[2]), "Match") && len(fields) >= 6 {
			lon, lat, err := parseCensusCoords(fields[5])
			if err == nil {
				m.Match = true
				m.MatchType = strings.TrimSpace(fields[3])
				m.Lat = strconv.FormatFloat(lat, 'f', -1, 64)
				m.Lon = strconv.FormatFloat(lon, 'f', -1, 64)
			}
		}
		out = append(out, m)
	}
}

// parseCensusCoords parses "lon,lat" from Census batch response.
func parseCensusCoords(coords string) (lon, lat float64, err error) {
	parts := strings.SplitN(coords, ",", 2)
	if len(parts) != 2 {
		return 0, 0, eris.Errorf("geocode: invalid census coords %q", coords)
	}
	lon, err = strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lon")
	}
	lat, err = strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, eris.Wrap(err, "geocode: parse census lat")
	}
	return lon, lat, nil
}
