package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/objstore"
	"github.com/sells-group/oca-cli/internal/oca"
	"github.com/sells-group/oca-cli/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every oca_* table as CSV to object storage",
	Long:  "Exports each table to <table>.csv. The street address table goes under the private prefix, the rest under the public prefix.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		objects, err := initObjects(ctx)
		if err != nil {
			return err
		}

		_, err = runExport(ctx, st, objects, objectLayout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

// exportKey places the address table under the private prefix.
func exportKey(layout objstore.Layout, t oca.Table) string {
	name := t.Name + ".csv"
	if t.Name == oca.AddressesTable.Name {
		return layout.PrivateKey(name)
	}
	return layout.PublicKey(name)
}

// runExport uploads one CSV per table and returns row counts keyed by object key.
func runExport(ctx context.Context, st store.Store, objects objstore.Store, layout objstore.Layout) (map[string]int64, error) {
	log := zap.L().With(zap.String("component", "export"))

	dir, cleanup, err := workDir("oca-export-*")
	if err != nil {
		return nil, eris.Wrap(err, "export")
	}
	defer cleanup()

	counts := make(map[string]int64)
	for _, t := range oca.ExportTables() {
		key := exportKey(layout, t)
		n, err := exportOne(ctx, st, objects, t, dir, key)
		if err != nil {
			return counts, err
		}
		counts[key] = n
		log.Info("table exported", zap.String("table", t.Name), zap.String("key", key), zap.Int64("rows", n))
	}
	return counts, nil
}

func exportOne(ctx context.Context, st store.Store, objects objstore.Store, t oca.Table, dir, key string) (int64, error) {
	f, err := os.CreateTemp(dir, t.Name+"-*.csv")
	if err != nil {
		return 0, eris.Wrapf(err, "export: create %s file", t.Name)
	}
	path := f.Name()

	n, err := st.ExportTable(ctx, t, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, eris.Wrapf(err, "export: write %s", t.Name)
	}
	if err := objects.PutFile(ctx, key, path); err != nil {
		return 0, eris.Wrapf(err, "export: upload %s", key)
	}
	return n, nil
}
