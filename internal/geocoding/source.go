package geocoding

import (
	"context"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oca-cli/internal/oca"
)

// TableExporter is the slice of store.Store the loader needs.
type TableExporter interface {
	ExportTable(ctx context.Context, table oca.Table, w io.Writer) (int64, error)
}

// LoadRecords streams the address table out of the store into records.
func LoadRecords(ctx context.Context, st TableExporter) ([]Record, error) {
	pr, pw := io.Pipe()
	go func() {
		_, err := st.ExportTable(ctx, oca.AddressesTable, pw)
		pw.CloseWithError(err)
	}()

	records, err := ReadRecords(ctx, pr)
	pr.Close() //nolint:errcheck
	if err != nil {
		return nil, eris.Wrap(err, "geocoding: load addresses")
	}
	return records, nil
}
