package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// zipEntryReader closes the entry and its archive together.
type zipEntryReader struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (r *zipEntryReader) Close() error {
	entryErr := r.ReadCloser.Close()
	archiveErr := r.archive.Close()
	if entryErr != nil {
		return eris.Wrap(entryErr, "zip: close entry")
	}
	return eris.Wrap(archiveErr, "zip: close archive")
}

// OpenZIPPayload opens the payload file inside an extract archive without
// unpacking it to disk. The entry whose base name equals name wins; when no
// entry matches and the archive holds exactly one file with the same
// extension, that file is used.
func OpenZIPPayload(zipPath, name string) (io.ReadCloser, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "zip: open archive")
	}

	f := findPayload(r.File, name)
	if f == nil {
		r.Close() //nolint:errcheck
		return nil, eris.Errorf("zip: payload %q not found in %s", name, filepath.Base(zipPath))
	}

	rc, err := f.Open()
	if err != nil {
		r.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	return &zipEntryReader{ReadCloser: rc, archive: r}, nil
}

func findPayload(files []*zip.File, name string) *zip.File {
	var candidates []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(f.Name)
		if base == name {
			return f
		}
		if strings.EqualFold(path.Ext(base), path.Ext(name)) {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 1 {
		return candidates[0]
	}
	return nil
}

// ExtractZIPFile extracts a single file from a ZIP archive by name.
// Returns the path to the extracted file.
func ExtractZIPFile(zipPath, fileName, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	for _, f := range r.File {
		if f.Name == fileName {
			return extractZIPEntry(f, destDir)
		}
	}
	return "", eris.Errorf("zip: file %q not found in archive", fileName)
}

// extractZIPEntry writes one regular file entry under destDir.
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("zip: illegal path %q (zip slip attempt)", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "zip: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "zip: open entry")
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: create file")
	}
	defer out.Close() //nolint:errcheck

	if _, err := io.Copy(out, rc); err != nil {
		return "", eris.Wrap(err, "zip: write file")
	}
	return destPath, nil
}

// WriteZIP writes files (name -> path on disk) into a new archive at zipPath,
// in the order given by names.
func WriteZIP(zipPath string, names []string, files map[string]string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return eris.Wrap(err, "zip: create archive")
	}
	defer out.Close() //nolint:errcheck

	w := zip.NewWriter(out)
	for _, name := range names {
		if err := addZIPEntry(w, name, files[name]); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return eris.Wrap(err, "zip: finish archive")
	}
	return eris.Wrap(out.Close(), "zip: close archive")
}

func addZIPEntry(w *zip.Writer, name, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "zip: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	fw, err := w.Create(name)
	if err != nil {
		return eris.Wrapf(err, "zip: create entry %s", name)
	}
	if _, err := io.Copy(fw, in); err != nil {
		return eris.Wrapf(err, "zip: write entry %s", name)
	}
	return nil
}
