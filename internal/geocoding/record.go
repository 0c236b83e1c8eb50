// Package geocoding resolves case addresses to coordinates. A primary
// per-record Geosupport pass runs first; addresses it cannot place go to a
// chunked Census batch pass; the results are merged by case id.
package geocoding

import (
	"context"
	"io"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oca-cli/internal/fetcher"
)

// Status values attached by the geocoding stages.
const (
	StatusSuccess     = "success"      // primary resolved the address
	StatusError       = "error"        // primary rejected or failed
	StatusMatch       = "match"        // fallback matched
	StatusNoMatch     = "no_match"     // fallback did not match
	StatusBatchFailed = "batch_failed" // fallback call for the chunk failed
)

// Outcome is the tagged result of the geocoding stages for one record.
type Outcome int

const (
	// Unresolved records have no coordinates yet.
	Unresolved Outcome = iota
	// Resolved records carry both lat and lon.
	Resolved
	// Failed records lost their fallback chunk to a provider error.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "unresolved"
	}
}

// Record is one case address plus the fields the geocoders attach.
// Lat and Lon are both set or both empty.
type Record struct {
	CaseID     string
	Street1    string
	Street2    string
	City       string
	State      string
	PostalCode string

	Status      string
	HouseNumber string
	StreetName  string
	Borough     string

	NormStreet string
	NormHouse  string
	NormBoro   string
	Lat        string
	Lon        string

	BIN             string
	BBL             string
	CD              string
	CT              string
	CouncilDistrict string

	GRC  string
	GRC2 string
	Msg  string
	Msg2 string
}

// Columns is the CSV layout of a Record, address columns first.
var Columns = []string{
	"indexnumberid", "street1", "street2", "city", "state", "postalcode",
	"status", "house_number", "street_name", "borough",
	"sname", "hnum", "boro", "lat", "lon",
	"bin", "bbl", "cd", "ct", "council",
	"grc", "grc2", "msg", "msg2",
}

func (r *Record) fieldPtr(name string) *string {
	switch name {
	case "indexnumberid":
		return &r.CaseID
	case "street1":
		return &r.Street1
	case "street2":
		return &r.Street2
	case "city":
		return &r.City
	case "state":
		return &r.State
	case "postalcode":
		return &r.PostalCode
	case "status":
		return &r.Status
	case "house_number":
		return &r.HouseNumber
	case "street_name":
		return &r.StreetName
	case "borough":
		return &r.Borough
	case "sname":
		return &r.NormStreet
	case "hnum":
		return &r.NormHouse
	case "boro":
		return &r.NormBoro
	case "lat":
		return &r.Lat
	case "lon":
		return &r.Lon
	case "bin":
		return &r.BIN
	case "bbl":
		return &r.BBL
	case "cd":
		return &r.CD
	case "ct":
		return &r.CT
	case "council":
		return &r.CouncilDistrict
	case "grc":
		return &r.GRC
	case "grc2":
		return &r.GRC2
	case "msg":
		return &r.Msg
	case "msg2":
		return &r.Msg2
	}
	return nil
}

// Field returns the value of a column named in Columns, or "" for unknown
// names.
func (r Record) Field(name string) string {
	if p := r.fieldPtr(name); p != nil {
		return *p
	}
	return ""
}

// Values returns the record in Columns order.
func (r Record) Values() []string {
	out := make([]string, len(Columns))
	for i, c := range Columns {
		out[i] = r.Field(c)
	}
	return out
}

// Outcome classifies the record.
func (r Record) Outcome() Outcome {
	switch {
	case r.Lat != "" && r.Lon != "":
		return Resolved
	case r.Status == StatusBatchFailed:
		return Failed
	default:
		return Unresolved
	}
}

// Coordinates parses Lat and Lon.
func (r Record) Coordinates() (lat, lon float64, ok bool) {
	if r.Outcome() != Resolved {
		return 0, 0, false
	}
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return 0, 0, false
	}
	lon, err = strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

// IsField reports whether name is a Record column.
func IsField(name string) bool {
	var r Record
	return r.fieldPtr(name) != nil
}

// ReadRecords loads records from a headed CSV. Unknown columns are ignored,
// so both the raw oca_addresses export and a previous geocoded output can be
// read back.
func ReadRecords(ctx context.Context, r io.Reader) ([]Record, error) {
	header, rows, err := fetcher.ReadCSVMaps(ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "geocoding: read records")
	}
	hasID := false
	for _, h := range header {
		if h == "indexnumberid" {
			hasID = true
		}
	}
	if header != nil && !hasID {
		return nil, eris.New("geocoding: input has no indexnumberid column")
	}

	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		var rec Record
		for k, v := range row {
			if p := rec.fieldPtr(k); p != nil {
				*p = v
			}
		}
		if (rec.Lat == "") != (rec.Lon == "") {
			rec.Lat, rec.Lon = "", ""
		}
		out = append(out, rec)
	}
	return out, nil
}
