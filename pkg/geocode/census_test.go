package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBatchInput(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chunk.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestCensusBatch_MixedResults(t *testing.T) {
	var gotBenchmark, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotBenchmark = r.FormValue("benchmark")
		f, _, err := r.FormFile("addressFile")
		require.NoError(t, err)
		data, _ := io.ReadAll(f)
		gotFile = string(data)

		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, `"0","123 MAIN ST, , , 10001","Match","Exact","123 MAIN ST, NEW YORK, NY, 10001","-73.9857,40.7484","999","R"
"1","9 NOWHERE RD, , , 00000","No_Match"
"2","1 TIE PL, , , 10002","Tie"
`)
	}))
	defer srv.Close()

	c := NewCensusClient(WithHTTPClient(newRewriteClient(srv.URL, censusBatchURL)))
	c.opts.limiter = newTestLimiter()

	input := "0,123 MAIN ST,,,10001\n1,9 NOWHERE RD,,,00000\n2,1 TIE PL,,,10002\n"
	matches, err := c.AddressBatch(context.Background(), writeBatchInput(t, input))
	require.NoError(t, err)

	assert.Equal(t, censusBenchmark, gotBenchmark)
	assert.Equal(t, input, gotFile)

	require.Len(t, matches, 3)
	assert.Equal(t, BatchMatch{ID: "0", Match: true, MatchType: "Exact", Lat: "40.7484", Lon: "-73.9857"}, matches[0])
	assert.Equal(t, BatchMatch{ID: "1"}, matches[1])
	assert.Equal(t, BatchMatch{ID: "2"}, matches[2])
}

func TestCensusBatch_CustomBenchmarkAndURL(t *testing.T) {
	var gotBenchmark string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBenchmark = r.FormValue("benchmark")
		_, _ = io.WriteString(w, "")
	}))
	defer srv.Close()

	c := NewCensusClient(WithBaseURL(srv.URL), WithBenchmark("Public_AR_Census2020"), WithRateLimit(100))
	matches, err := c.AddressBatch(context.Background(), writeBatchInput(t, "0,1 A ST,,,10001\n"))
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, "Public_AR_Census2020", gotBenchmark)
}

func TestCensusBatch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCensusClient(WithBaseURL(srv.URL))
	c.opts.limiter = newTestLimiter()

	_, err := c.AddressBatch(context.Background(), writeBatchInput(t, "0,1 A ST,,,10001\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestCensusBatch_MissingInput(t *testing.T) {
	c := NewCensusClient()
	c.opts.limiter = newTestLimiter()
	_, err := c.AddressBatch(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open input")
}

func TestParseCensusBatchResponse_BadCoordinates(t *testing.T) {
	body := `"7","x","Match","Non_Exact","y","not,coords","1","L"` + "\n"
	matches, err := parseCensusBatchResponse(strings.NewReader(body))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.False(t, matches[0].Match)
	assert.Equal(t, "7", matches[0].ID)
}

func TestParseCensusCoords(t *testing.T) {
	lon, lat, err := parseCensusCoords("-73.5, 40.25")
	require.NoError(t, err)
	assert.InDelta(t, -73.5, lon, 1e-9)
	assert.InDelta(t, 40.25, lat, 1e-9)

	_, _, err = parseCensusCoords("40.25")
	require.Error(t, err)
}
