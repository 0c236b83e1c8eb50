package geocoding

import (
	"encoding/csv"
	"encoding/hex"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// GeomColumn holds the point as hex EWKB (SRID 4326), empty when unresolved.
const GeomColumn = "geom"

// EncodePoint returns the hex EWKB of a lon/lat point with SRID 4326, the
// text form PostGIS accepts for geometry columns.
func EncodePoint(lat, lon float64) (string, error) {
	p := geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(4326)
	data, err := ewkb.Marshal(p, ewkb.NDR)
	if err != nil {
		return "", eris.Wrap(err, "geocoding: encode point")
	}
	return hex.EncodeToString(data), nil
}

// WriteCSV writes records with a header and a trailing geom column.
func WriteCSV(w io.Writer, records []Record) (int, error) {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, Columns...), GeomColumn)
	if err := cw.Write(header); err != nil {
		return 0, eris.Wrap(err, "geocoding: write header")
	}

	n := 0
	for _, r := range records {
		row := append(r.Values(), "")
		if lat, lon, ok := r.Coordinates(); ok {
			g, err := EncodePoint(lat, lon)
			if err != nil {
				return n, err
			}
			row[len(row)-1] = g
		}
		if err := cw.Write(row); err != nil {
			return n, eris.Wrap(err, "geocoding: write row")
		}
		n++
	}
	cw.Flush()
	return n, eris.Wrap(cw.Error(), "geocoding: flush output")
}
