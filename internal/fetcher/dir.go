package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// DirSource reads extract archives from a local directory.
type DirSource struct {
	Dir string
}

var _ Source = DirSource{}

// List returns the regular files in the directory, sorted by name.
func (d DirSource) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "dir: list %s", d.Dir)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Download opens the named file.
func (d DirSource) Download(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.Dir, filepath.Base(name)))
	if err != nil {
		return nil, eris.Wrapf(err, "dir: open %s", name)
	}
	return f, nil
}

// DownloadToFile copies the named file to dest.
func (d DirSource) DownloadToFile(ctx context.Context, name string, dest string) (int64, error) {
	rc, err := d.Download(ctx, name)
	if err != nil {
		return 0, err
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrap(err, "dir: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, rc)
	return n, eris.Wrap(err, "dir: copy file")
}
