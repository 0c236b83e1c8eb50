package geocoding

import (
	"context"
	"runtime"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/oca-cli/internal/addrparse"
	"github.com/sells-group/oca-cli/internal/resilience"
	"github.com/sells-group/oca-cli/pkg/geocode"
)

// DefaultAddressFields are joined to form the address handed to the parser.
var DefaultAddressFields = []string{"street1", "street2"}

// Primary resolves records one at a time through Geosupport.
type Primary struct {
	Geo    geocode.Geosupport
	Fields []string // record columns joined into the full address
	// Workers bounds concurrent lookups; GOMAXPROCS when zero.
	Workers int
	Retry   resilience.RetryConfig
}

// ParseAddress joins the non-blank fields of rec with ", " and fills the
// house number, street name and borough.
func ParseAddress(rec Record, fields []string) Record {
	if len(fields) == 0 {
		fields = DefaultAddressFields
	}
	var parts []string
	for _, f := range fields {
		if v := strings.TrimSpace(rec.Field(f)); v != "" {
			parts = append(parts, v)
		}
	}
	c := addrparse.Parse(strings.Join(parts, ", "))
	rec.HouseNumber = c.HouseNumber
	rec.StreetName = c.StreetName
	rec.Borough = addrparse.Borough(rec.City)
	return rec
}

// ParseAll applies ParseAddress to every record.
func ParseAll(records []Record, fields []string) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = ParseAddress(r, fields)
	}
	return out
}

// Resolve geocodes one record. It never fails: Geosupport rejections and
// transport errors both come back as StatusError with diagnostics.
func (p *Primary) Resolve(ctx context.Context, rec Record) Record {
	rec = ParseAddress(rec, p.Fields)

	retry := p.Retry
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 1
	}
	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*geocode.Result, error) {
		return p.Geo.Address(ctx, geocode.AddressRequest{
			HouseNumber: rec.HouseNumber,
			Street:      rec.StreetName,
			Borough:     rec.Borough,
			ZipCode:     rec.PostalCode,
		})
	})
	if err != nil {
		zap.L().Debug("geosupport call failed",
			zap.String("component", "geocoding.primary"),
			zap.String("indexnumberid", rec.CaseID),
			zap.Error(err),
		)
		rec.Status = StatusError
		rec.Msg = err.Error()
		return rec
	}
	if res == nil {
		rec.Status = StatusError
		rec.Msg = "geosupport returned no result"
		return rec
	}

	applyResult(&rec, res)
	if res.OK() {
		rec.Status = StatusSuccess
	} else {
		rec.Status = StatusError
	}
	return rec
}

func applyResult(rec *Record, res *geocode.Result) {
	rec.NormStreet = res.StreetName
	rec.NormHouse = res.HouseNumber
	rec.NormBoro = res.Borough
	rec.Lat = res.Latitude
	rec.Lon = res.Longitude
	rec.BIN = res.BIN
	rec.BBL = res.BBL
	rec.CD = res.CommunityDistrict
	rec.CT = res.CensusTract
	rec.CouncilDistrict = res.CouncilDistrict
	rec.GRC = res.ReturnCode
	rec.GRC2 = res.ReturnCode2
	rec.Msg = res.Message
	rec.Msg2 = res.Message2
	if rec.Lat == "" || rec.Lon == "" {
		rec.Lat, rec.Lon = "", ""
	}
}

// ResolveAll geocodes every record on a bounded worker pool. Output order
// matches input order.
func (p *Primary) ResolveAll(ctx context.Context, records []Record) []Record {
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	log := zap.L().With(zap.String("component", "geocoding.primary"))
	log.Info("primary geocoding", zap.Int("records", len(records)), zap.Int("workers", workers))

	out := make([]Record, len(records))
	g := new(errgroup.Group)
	g.SetLimit(workers)
	for i := range records {
		g.Go(func() error {
			out[i] = p.Resolve(ctx, records[i])
			return nil
		})
	}
	_ = g.Wait()

	resolved := 0
	for _, r := range out {
		if r.Outcome() == Resolved {
			resolved++
		}
	}
	log.Info("primary geocoding complete", zap.Int("resolved", resolved), zap.Int("unresolved", len(out)-resolved))
	return out
}
