// Package fetcher lists and downloads upstream extract archives and streams
// their XML and CSV payloads.
package fetcher

import (
	"context"
	"io"
)

// Source is a remote directory of extract archives.
type Source interface {
	// List returns the base names of every file in the remote directory.
	List(ctx context.Context) ([]string, error)

	// Download opens the named file. The caller must close the reader.
	Download(ctx context.Context, name string) (io.ReadCloser, error)

	// DownloadToFile copies the named file to path and returns bytes written.
	DownloadToFile(ctx context.Context, name string, path string) (int64, error)
}
