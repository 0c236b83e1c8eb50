package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oca-cli/internal/fetcher"
	"github.com/sells-group/oca-cli/internal/objstore"
	"github.com/sells-group/oca-cli/internal/resilience"
	"github.com/sells-group/oca-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "oca.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required (OCA_STORE_DATABASE_URL)")
		}
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore connects and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initObjects(ctx context.Context) (objstore.Store, error) {
	switch cfg.ObjStore.Driver {
	case "s3":
		s, err := objstore.NewS3(ctx, objstore.S3Config{
			Bucket:          cfg.ObjStore.Bucket,
			Region:          cfg.ObjStore.Region,
			Endpoint:        cfg.ObjStore.Endpoint,
			PathStyle:       cfg.ObjStore.PathStyle,
			AccessKeyID:     cfg.ObjStore.AccessKeyID,
			SecretAccessKey: cfg.ObjStore.SecretAccessKey,
		}, retryConfig())
		if err != nil {
			return nil, err
		}
		return s, nil
	case "dir":
		d, err := objstore.NewDir(cfg.ObjStore.Dir)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, eris.Errorf("unsupported objstore driver: %s", cfg.ObjStore.Driver)
	}
}

func initSource() (fetcher.Source, error) {
	if cfg.Source.URL == "" {
		return nil, eris.New("source.url is required (OCA_SOURCE_URL)")
	}
	if cfg.Source.IsFTP() {
		f, err := fetcher.NewFTPFetcher(cfg.Source.URL, fetcher.FTPOptions{
			Timeout: time.Duration(cfg.Source.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	if cfg.Source.IsSFTP() {
		f, err := fetcher.NewSFTPFetcher(cfg.Source.URL, fetcher.SFTPOptions{
			Timeout:        time.Duration(cfg.Source.TimeoutSecs) * time.Second,
			KnownHostsPath: cfg.Source.KnownHosts,
			KeyPath:        cfg.Source.KeyFile,
		})
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return fetcher.DirSource{Dir: cfg.Source.LocalDir()}, nil
}

func retryConfig() resilience.RetryConfig {
	return resilience.NewRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs)
}

func objectLayout() objstore.Layout {
	l := objstore.DefaultLayout
	if cfg.ObjStore.PrivatePrefix != "" {
		l.Private = cfg.ObjStore.PrivatePrefix
	}
	if cfg.ObjStore.PublicPrefix != "" {
		l.Public = cfg.ObjStore.PublicPrefix
	}
	return l
}

// workDir creates a scratch directory under ingest.temp_dir.
func workDir(pattern string) (string, func(), error) {
	if cfg.Ingest.TempDir != "" {
		if err := os.MkdirAll(cfg.Ingest.TempDir, 0o755); err != nil {
			return "", nil, eris.Wrap(err, "create temp dir")
		}
	}
	dir, err := os.MkdirTemp(cfg.Ingest.TempDir, pattern)
	if err != nil {
		return "", nil, eris.Wrap(err, "create work dir")
	}
	return dir, func() { os.RemoveAll(dir) }, nil //nolint:errcheck
}
