package reconcile

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/fetcher"
	"github.com/sells-group/oca-cli/internal/oca"
	"github.com/sells-group/oca-cli/internal/objstore"
	"github.com/sells-group/oca-cli/internal/resilience"
)

// DefaultPayload is the XML file name inside each extract archive.
const DefaultPayload = "LandlordTenantExtract.xml"

// ArchiveOpener downloads an extract archive, archives it to object storage
// and opens its XML payload. An archive already kept in object storage is
// read from there instead of the source.
type ArchiveOpener struct {
	Source  fetcher.Source
	Objects objstore.Store // optional; archives are kept under Layout's private prefix
	Layout  objstore.Layout
	TempDir string
	Payload string
	Retry   resilience.RetryConfig
}

// tempPayload removes the downloaded archive when the payload is closed.
type tempPayload struct {
	io.ReadCloser
	path string
}

func (p *tempPayload) Close() error {
	err := p.ReadCloser.Close()
	if rmErr := os.Remove(p.path); rmErr != nil && err == nil {
		err = eris.Wrap(rmErr, "reconcile: remove downloaded archive")
	}
	return err
}

// Open implements Opener.
func (o *ArchiveOpener) Open(ctx context.Context, e oca.Extract) (io.ReadCloser, error) {
	log := zap.L().With(zap.String("component", "reconcile.opener"), zap.String("extract", e.Name))

	if o.TempDir != "" {
		if err := os.MkdirAll(o.TempDir, 0o755); err != nil {
			return nil, eris.Wrap(err, "reconcile: create temp dir")
		}
	}
	f, err := os.CreateTemp(o.TempDir, "extract-*.zip")
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: create temp archive")
	}
	path := f.Name()
	f.Close() //nolint:errcheck

	cleanup := func() { os.Remove(path) } //nolint:errcheck

	key := o.Layout.PrivateKey(filepath.Base(e.Name))
	archived := false
	if o.Objects != nil {
		archived, err = o.Objects.Exists(ctx, key)
		if err != nil {
			cleanup()
			return nil, eris.Wrapf(err, "reconcile: check archive %s", key)
		}
	}

	if archived {
		if err := o.Objects.GetFile(ctx, key, path); err != nil {
			cleanup()
			return nil, eris.Wrapf(err, "reconcile: fetch archived %s", key)
		}
		log.Info("extract read from archive", zap.String("key", key))
	} else {
		if err := o.download(ctx, e, path); err != nil {
			cleanup()
			return nil, err
		}
		if o.Objects != nil {
			if err := o.Objects.PutFile(ctx, key, path); err != nil {
				cleanup()
				return nil, eris.Wrapf(err, "reconcile: archive %s", e.Name)
			}
			log.Debug("extract archived", zap.String("key", key))
		}
	}

	payload := o.Payload
	if payload == "" {
		payload = DefaultPayload
	}
	rc, err := fetcher.OpenZIPPayload(path, payload)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &tempPayload{ReadCloser: rc, path: path}, nil
}

func (o *ArchiveOpener) download(ctx context.Context, e oca.Extract, path string) error {
	retry := o.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("reconcile.opener", "download")
	}
	n, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (int64, error) {
		return o.Source.DownloadToFile(ctx, e.Name, path)
	})
	if err != nil {
		return eris.Wrapf(err, "reconcile: download %s", e.Name)
	}
	zap.L().Info("extract downloaded",
		zap.String("component", "reconcile.opener"),
		zap.String("extract", e.Name),
		zap.Int64("bytes", n),
	)
	return nil
}
