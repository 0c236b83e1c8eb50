package main

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/config"
	"github.com/sells-group/oca-cli/internal/extract"
	"github.com/sells-group/oca-cli/internal/fetcher"
	"github.com/sells-group/oca-cli/internal/objstore"
	"github.com/sells-group/oca-cli/internal/oca"
	"github.com/sells-group/oca-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	initialExtract = "LandlordTenant.Initial.FiledIn2020.20210104.zip"
	incrExtract    = "LandlordTenant.Incr.20210111.zip"
)

// testEnv is a local config with a SQLite store, a directory source and a
// directory object store, all under one temp dir.
type testEnv struct {
	root    string
	source  string
	objects string
}

func useTestConfig(t *testing.T) testEnv {
	t.Helper()
	root := t.TempDir()
	env := testEnv{
		root:    root,
		source:  filepath.Join(root, "source"),
		objects: filepath.Join(root, "objects"),
	}
	require.NoError(t, os.MkdirAll(env.source, 0o755))

	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(root, "oca.db")
	c.Log = config.LogConfig{Level: "info", Format: "json"}
	c.Source.URL = env.source
	c.Source.Pattern = oca.DefaultPattern
	c.Source.PayloadName = "LandlordTenantExtract.xml"
	c.ObjStore.Driver = "dir"
	c.ObjStore.Dir = env.objects
	c.ObjStore.PrivatePrefix = "private"
	c.ObjStore.PublicPrefix = "public"
	c.Ingest.TempDir = filepath.Join(root, "tmp")
	c.Ingest.SnapshotName = "oca_snapshot.zip"
	c.Ingest.Snapshot = true
	c.Geocode.AddressFields = []string{"street1", "street2"}
	c.Geocode.OutputName = "oca_addresses_geocoded.csv"
	c.Geocode.WorkDir = filepath.Join(root, "geocode")
	c.Geocode.Fallback.ChunkSize = 2500
	c.Geocode.Fallback.Concurrency = 2
	c.Retry.MaxAttempts = 1
	c.Server.Port = 8080

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return env
}

func caseXML(id, street, postal string) string {
	return fmt.Sprintf(`<Index><IndexNumberId>%s</IndexNumberId><Court>Kings</Court>`+
		`<PropertyAddresses><PropertyAddress><Street1>%s</Street1><City>Brooklyn</City>`+
		`<State>NY</State><PostalCode>%s</PostalCode></PropertyAddress></PropertyAddresses></Index>`,
		id, street, postal)
}

func extractDoc(cases ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><LandlordTenantExtract xmlns="` + extract.Namespace + `">` +
		strings.Join(cases, "") + `</LandlordTenantExtract>`
}

// writeExtract zips payload as the extract's XML file into dir.
func writeExtract(t *testing.T, dir, name, payload string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	w := zip.NewWriter(f)
	fw, err := w.Create("LandlordTenantExtract.xml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(payload))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

// ingested opens the configured store and objects and replays the two
// standard extracts.
func ingested(t *testing.T, env testEnv) (store.Store, objstore.Store) {
	t.Helper()
	ctx := context.Background()
	writeExtract(t, env.source, initialExtract, extractDoc(
		caseXML("X1", "123 MAIN ST", "11201"),
		caseXML("X2", "45 OCEAN AVE", "11225"),
	))
	writeExtract(t, env.source, incrExtract, extractDoc(
		caseXML("X3", "9 PARK PL", "11217"),
	))

	st, err := openStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	objects, err := initObjects(ctx)
	require.NoError(t, err)

	_, err = runIngest(ctx, st, objects, fetcher.DirSource{Dir: env.source})
	require.NoError(t, err)
	return st, objects
}
