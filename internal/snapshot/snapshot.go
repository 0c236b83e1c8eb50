// Package snapshot saves and restores the case tables as one zip of CSVs in
// object storage. The engine restores it as its baseline and exports it as its
// checkpoint.
package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/fetcher"
	"github.com/sells-group/oca-cli/internal/oca"
	"github.com/sells-group/oca-cli/internal/objstore"
	"github.com/sells-group/oca-cli/internal/store"
)

// DefaultName is the snapshot object name under the private prefix.
const DefaultName = "oca_snapshot.zip"

// Snapshotter moves table snapshots between a Store and object storage.
type Snapshotter struct {
	Store   store.Store
	Objects objstore.Store
	Key     string // object key of the snapshot archive
	TempDir string // scratch space, os.TempDir() when empty
}

func entryName(t oca.Table) string {
	return t.Name + ".csv"
}

func (s *Snapshotter) workDir() (string, func(), error) {
	dir, err := os.MkdirTemp(s.TempDir, "oca-snapshot-*")
	if err != nil {
		return "", nil, eris.Wrap(err, "snapshot: create work dir")
	}
	return dir, func() { os.RemoveAll(dir) }, nil //nolint:errcheck
}

// Export writes every table to CSV, zips them and uploads the archive.
func (s *Snapshotter) Export(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "snapshot"), zap.String("key", s.Key))

	dir, cleanup, err := s.workDir()
	if err != nil {
		return err
	}
	defer cleanup()

	tables := oca.ExportTables()
	names := make([]string, 0, len(tables))
	files := make(map[string]string, len(tables))
	var total int64
	for _, t := range tables {
		path := filepath.Join(dir, entryName(t))
		n, err := exportTable(ctx, s.Store, t, path)
		if err != nil {
			return err
		}
		total += n
		names = append(names, entryName(t))
		files[entryName(t)] = path
	}

	archive := filepath.Join(dir, "snapshot.zip")
	if err := fetcher.WriteZIP(archive, names, files); err != nil {
		return eris.Wrap(err, "snapshot: write archive")
	}
	if err := s.Objects.PutFile(ctx, s.Key, archive); err != nil {
		return eris.Wrap(err, "snapshot: upload")
	}
	log.Info("snapshot exported", zap.Int("tables", len(tables)), zap.Int64("rows", total))
	return nil
}

func exportTable(ctx context.Context, st store.Store, t oca.Table, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrapf(err, "snapshot: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	n, err := st.ExportTable(ctx, t, f)
	if err != nil {
		return 0, eris.Wrapf(err, "snapshot: export %s", t.Name)
	}
	return n, eris.Wrapf(f.Close(), "snapshot: close %s", path)
}

// Restore replaces the case tables with the stored snapshot. It reports false
// without touching the store when no snapshot exists. The derived outcomes
// table is optional in the archive; every base table is required.
func (s *Snapshotter) Restore(ctx context.Context) (bool, error) {
	log := zap.L().With(zap.String("component", "snapshot"), zap.String("key", s.Key))

	dir, cleanup, err := s.workDir()
	if err != nil {
		return false, err
	}
	defer cleanup()

	archive := filepath.Join(dir, "snapshot.zip")
	if err := s.Objects.GetFile(ctx, s.Key, archive); err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			log.Info("no snapshot found")
			return false, nil
		}
		return false, eris.Wrap(err, "snapshot: download")
	}

	if err := s.Store.Reset(ctx); err != nil {
		return false, eris.Wrap(err, "snapshot: reset tables")
	}

	var total int64
	for _, t := range oca.ExportTables() {
		path, err := fetcher.ExtractZIPFile(archive, entryName(t), dir)
		if err != nil {
			if t.Name == oca.AppearanceOutcomesTable.Name {
				continue
			}
			return false, eris.Wrapf(err, "snapshot: missing %s", t.Name)
		}
		n, err := importTable(ctx, s.Store, t, path)
		if err != nil {
			return false, err
		}
		total += n
	}
	log.Info("snapshot restored", zap.Int64("rows", total))
	return true, nil
}

func importTable(ctx context.Context, st store.Store, t oca.Table, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "snapshot: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	n, err := st.ImportTable(ctx, t, f)
	return n, eris.Wrapf(err, "snapshot: import %s", t.Name)
}
