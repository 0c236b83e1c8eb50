package main

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oca-cli/internal/config"
	"github.com/sells-group/oca-cli/internal/geocoding"
	"github.com/sells-group/oca-cli/internal/resilience"
)

func readOutput(t *testing.T, path string) []map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	header := rows[0]
	assert.Equal(t, geocoding.GeomColumn, header[len(header)-1])

	out := make([]map[string]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		m := make(map[string]string, len(header))
		for i, h := range header {
			m[h] = r[i]
		}
		out = append(out, m)
	}
	return out
}

func TestBuildPipeline(t *testing.T) {
	gc := config.GeocodeConfig{AddressFields: []string{"street1"}}
	p := buildPipeline(gc, resilience.DefaultRetryConfig())
	assert.Nil(t, p.Primary)
	assert.Nil(t, p.Fallback)
	assert.Equal(t, []string{"street1"}, p.Fields)

	gc.Primary = config.PrimaryConfig{Key: "k", RateLimit: 5, Workers: 3}
	gc.Fallback = config.FallbackConfig{Enabled: true, ChunkSize: 100, Concurrency: 2}
	gc.WorkDir = "/tmp/work"
	p = buildPipeline(gc, resilience.DefaultRetryConfig())
	require.NotNil(t, p.Primary)
	require.NotNil(t, p.Fallback)
	assert.Equal(t, 3, p.Primary.Workers)
	assert.Equal(t, []string{"street1"}, p.Primary.Fields)
	assert.NotNil(t, p.Primary.Retry.OnRetry)
	assert.Equal(t, 100, p.Fallback.ChunkSize)
	assert.Equal(t, 2, p.Fallback.Concurrency)
	assert.Equal(t, "/tmp/work", p.Fallback.WorkDir)
}

func TestRunGeocode_InputFileToLocalOutput(t *testing.T) {
	env := useTestConfig(t)
	input := filepath.Join(env.root, "addresses.csv")
	require.NoError(t, os.WriteFile(input, []byte(
		"indexnumberid,street1,street2,city,state,postalcode\n"+
			"A1,123 MAIN ST,,Brooklyn,NY,11201\n"+
			"A2,PO BOX 7,,Queens,NY,11101\n"), 0o644))
	output := filepath.Join(env.root, "out.csv")

	stats, err := runGeocode(context.Background(), nil, nil, input, output)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Input)
	assert.Equal(t, 2, stats.Unresolved)

	rows := readOutput(t, output)
	require.Len(t, rows, 2)
	assert.Equal(t, "A1", rows[0]["indexnumberid"])
	assert.Empty(t, rows[0]["lat"])
	assert.Empty(t, rows[0][geocoding.GeomColumn])
}

func TestRunGeocode_FallbackResolvesFromStore(t *testing.T) {
	env := useTestConfig(t)
	st, objects := ingested(t, env)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, _, err := r.FormFile("addressFile")
		require.NoError(t, err)
		body, _ := io.ReadAll(f)

		// Match only the Main St row, echoing the chunk's id.
		var resp strings.Builder
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			id := strings.SplitN(line, ",", 2)[0]
			if strings.Contains(line, "MAIN ST") {
				resp.WriteString(`"` + id + `","123 MAIN ST","Match","Exact","123 MAIN ST, BROOKLYN, NY, 11201","-73.99,40.69","1","L"` + "\n")
			} else {
				resp.WriteString(`"` + id + `","x","No_Match"` + "\n")
			}
		}
		_, _ = io.WriteString(w, resp.String())
	}))
	defer srv.Close()

	cfg.Geocode.Fallback.Enabled = true
	cfg.Geocode.Fallback.URL = srv.URL

	stats, err := runGeocode(context.Background(), st, objects, "", "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 3, stats.Output)
	assert.Equal(t, 1, stats.Resolved)

	rows := readOutput(t, filepath.Join(env.objects, "private", "oca_addresses_geocoded.csv"))
	require.Len(t, rows, 3)
	byID := make(map[string]map[string]string)
	for _, r := range rows {
		byID[r["indexnumberid"]] = r
	}
	assert.Equal(t, geocoding.StatusMatch, byID["X1"]["status"])
	assert.Equal(t, "40.69", byID["X1"]["lat"])
	assert.Equal(t, "-73.99", byID["X1"]["lon"])
	assert.NotEmpty(t, byID["X1"][geocoding.GeomColumn])
	assert.Equal(t, geocoding.StatusNoMatch, byID["X2"]["status"])
	assert.Empty(t, byID["X2"][geocoding.GeomColumn])
}

func TestRunGeocode_FallbackOutageKeepsRows(t *testing.T) {
	env := useTestConfig(t)
	st, objects := ingested(t, env)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg.Geocode.Fallback.Enabled = true
	cfg.Geocode.Fallback.URL = srv.URL
	output := filepath.Join(env.root, "out.csv")

	stats, err := runGeocode(context.Background(), st, objects, "", output)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Failed)

	rows := readOutput(t, output)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, geocoding.StatusBatchFailed, r["status"])
	}
}

func TestRunGeocode_MissingInput(t *testing.T) {
	env := useTestConfig(t)
	_, err := runGeocode(context.Background(), nil, nil, filepath.Join(env.root, "nope.csv"), "")
	assert.Error(t, err)

	_, err = runGeocode(context.Background(), nil, nil, "", "")
	assert.Error(t, err)
}
