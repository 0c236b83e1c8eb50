package objstore

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// DirStore keeps objects as files under a local root directory.
type DirStore struct {
	root string
}

var _ Store = (*DirStore)(nil)

// NewDir creates the root directory if needed and returns a DirStore.
func NewDir(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, eris.Wrapf(err, "objstore: create dir %s", root)
	}
	return &DirStore{root: root}, nil
}

func (d *DirStore) path(key string) (string, error) {
	p := filepath.Join(d.root, filepath.FromSlash(key))
	if !strings.HasPrefix(p, filepath.Clean(d.root)+string(os.PathSeparator)) {
		return "", eris.Errorf("objstore: key %q escapes root", key)
	}
	return p, nil
}

// Put writes r to the file for key, replacing it atomically.
func (d *DirStore) Put(_ context.Context, key string, r io.Reader) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return eris.Wrapf(err, "objstore: mkdir for %s", key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return eris.Wrapf(err, "objstore: temp file for %s", key)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "objstore: write %s", key)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "objstore: close %s", key)
	}
	return eris.Wrapf(os.Rename(tmp.Name(), p), "objstore: rename %s", key)
}

// PutFile copies a local file to key.
func (d *DirStore) PutFile(ctx context.Context, key, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "objstore: open %s", src)
	}
	defer f.Close() //nolint:errcheck
	return d.Put(ctx, key, f)
}

// Get opens the file for key.
func (d *DirStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrapf(ErrNotFound, "objstore: get %s", key)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "objstore: get %s", key)
	}
	return f, nil
}

// GetFile copies key to a local path.
func (d *DirStore) GetFile(ctx context.Context, key, dest string) error {
	rc, err := d.Get(ctx, key)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck
	return writeFile(dest, rc)
}

// Exists reports whether the file for key exists.
func (d *DirStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := d.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, eris.Wrapf(err, "objstore: stat %s", key)
}

// List walks the root and returns slash-separated keys starting with prefix.
func (d *DirStore) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".put-") {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		if key := filepath.ToSlash(rel); strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "objstore: list %s", prefix)
	}
	sort.Strings(keys)
	return keys, nil
}

func writeFile(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "objstore: create %s", dest)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close() //nolint:errcheck
		return eris.Wrapf(err, "objstore: write %s", dest)
	}
	return eris.Wrapf(out.Close(), "objstore: close %s", dest)
}
