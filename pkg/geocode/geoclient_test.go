package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oca-cli/internal/resilience"
)

func TestGeoclient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/geo/geoclient/v2/address.json", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		q := r.URL.Query()
		assert.Equal(t, "120", q.Get("houseNumber"))
		assert.Equal(t, "BROADWAY", q.Get("street"))
		assert.Equal(t, "10271", q.Get("zip"))
		assert.Equal(t, "MANHATTAN", q.Get("borough"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"address": {
			"geosupportReturnCode": "00",
			"geosupportReturnCode2": "01",
			"message2": "SOME WARNING",
			"houseNumber": "120",
			"firstStreetNameNormalized": "BROADWAY",
			"firstBoroughName": "MANHATTAN",
			"latitude": 40.70849,
			"longitude": -74.01073,
			"buildingIdentificationNumber": "1001026",
			"bbl": "1000477501",
			"communityDistrict": "101",
			"censusTract2010": "7",
			"cityCouncilDistrict": "01"
		}}`)
	}))
	defer srv.Close()

	c := NewGeoclient("secret", WithHTTPClient(newRewriteClient(srv.URL+"/geo/geoclient/v2", geoclientURL)))
	c.opts.limiter = newTestLimiter()

	res, err := c.Address(context.Background(), AddressRequest{
		HouseNumber: "120", Street: "BROADWAY", Borough: "MANHATTAN", ZipCode: "10271",
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "40.70849", res.Latitude)
	assert.Equal(t, "-74.01073", res.Longitude)
	assert.Equal(t, "1000477501", res.BBL)
	assert.Equal(t, "BROADWAY", res.StreetName)
	assert.Equal(t, "SOME WARNING", res.Message2)
	assert.Equal(t, "01", res.CouncilDistrict)
}

func TestGeoclient_RejectedAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("borough"))
		_, _ = io.WriteString(w, `{"address": {
			"geosupportReturnCode": "42",
			"message": "ADDRESS NUMBER OUT OF RANGE",
			"latitude": null,
			"longitude": ""
		}}`)
	}))
	defer srv.Close()

	c := NewGeoclient("k", WithBaseURL(srv.URL))
	c.opts.limiter = newTestLimiter()

	res, err := c.Address(context.Background(), AddressRequest{HouseNumber: "99999", Street: "MAIN ST", ZipCode: "10001"})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, "42", res.ReturnCode)
	assert.Equal(t, "ADDRESS NUMBER OUT OF RANGE", res.Message)
	assert.Empty(t, res.Latitude)
	assert.Empty(t, res.Longitude)
}

func TestGeoclient_Throttled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewGeoclient("k", WithBaseURL(srv.URL))
	c.opts.limiter = newTestLimiter()

	_, err := c.Address(context.Background(), AddressRequest{HouseNumber: "1", Street: "A ST"})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestGeoclient_Forbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewGeoclient("bad", WithBaseURL(srv.URL))
	c.opts.limiter = newTestLimiter()

	_, err := c.Address(context.Background(), AddressRequest{HouseNumber: "1", Street: "A ST"})
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestGeoclient_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"address":`)
	}))
	defer srv.Close()

	c := NewGeoclient("k", WithBaseURL(srv.URL))
	c.opts.limiter = newTestLimiter()

	_, err := c.Address(context.Background(), AddressRequest{HouseNumber: "1", Street: "A ST"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse response")
}

func TestResult_OK(t *testing.T) {
	var nilResult *Result
	assert.False(t, nilResult.OK())
	assert.True(t, (&Result{ReturnCode: "01"}).OK())
	assert.False(t, (&Result{ReturnCode: "11"}).OK())
}
