package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/fetcher"
	"github.com/sells-group/oca-cli/internal/oca"
	"github.com/sells-group/oca-cli/internal/objstore"
	"github.com/sells-group/oca-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	ftx, err := st.BeginFile(ctx, false)
	require.NoError(t, err)

	index := make([]any, len(oca.IndexTable.Columns))
	index[0], index[1] = "X1", "Kings"
	_, err = ftx.Insert(ctx, oca.IndexTable, [][]any{index})
	require.NoError(t, err)
	_, err = ftx.Insert(ctx, oca.AddressesTable, [][]any{{"X1", "123 MAIN ST", nil, "Brooklyn", "NY", "11201"}})
	require.NoError(t, err)
	_, err = ftx.Insert(ctx, oca.AppearancesTable, [][]any{
		{"X1", "2020-03-01T09:30:00", nil, nil, nil, nil, `[{"appearanceoutcometype":"Adjourned","outcomebasedontype":null}]`},
	})
	require.NoError(t, err)
	require.NoError(t, ftx.Commit(ctx))
	require.NoError(t, st.RefreshDerived(ctx))
}

func TestExportRestore(t *testing.T) {
	ctx := context.Background()
	objects, err := objstore.NewDir(t.TempDir())
	require.NoError(t, err)

	src := newTestStore(t)
	seed(t, src)
	require.NoError(t, (&Snapshotter{Store: src, Objects: objects, Key: "private/" + DefaultName}).Export(ctx))

	ok, err := objects.Exists(ctx, "private/"+DefaultName)
	require.NoError(t, err)
	require.True(t, ok)

	dst := newTestStore(t)
	restored, err := (&Snapshotter{Store: dst, Objects: objects, Key: "private/" + DefaultName}).Restore(ctx)
	require.NoError(t, err)
	assert.True(t, restored)

	rows, err := dst.CaseRows(ctx, "X1")
	require.NoError(t, err)
	assert.Equal(t, "Kings", rows["oca_index"][0]["court"])
	assert.Equal(t, "123 MAIN ST", rows["oca_addresses"][0]["street1"])
	assert.Nil(t, rows["oca_addresses"][0]["street2"])
	require.Len(t, rows["oca_appearance_outcomes"], 1)
}

func TestRestore_ReplacesExistingRows(t *testing.T) {
	ctx := context.Background()
	objects, err := objstore.NewDir(t.TempDir())
	require.NoError(t, err)

	empty := newTestStore(t)
	snap := &Snapshotter{Store: empty, Objects: objects, Key: "private/" + DefaultName}
	require.NoError(t, snap.Export(ctx))

	dst := newTestStore(t)
	seed(t, dst)
	restored, err := (&Snapshotter{Store: dst, Objects: objects, Key: snap.Key}).Restore(ctx)
	require.NoError(t, err)
	assert.True(t, restored)

	n, err := dst.CountRows(ctx, "oca_index")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRestore_NoSnapshot(t *testing.T) {
	objects, err := objstore.NewDir(t.TempDir())
	require.NoError(t, err)

	st := newTestStore(t)
	seed(t, st)
	restored, err := (&Snapshotter{Store: st, Objects: objects, Key: "private/" + DefaultName}).Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, restored)

	n, err := st.CountRows(context.Background(), "oca_index")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRestore_MissingBaseTable(t *testing.T) {
	ctx := context.Background()
	objects, err := objstore.NewDir(t.TempDir())
	require.NoError(t, err)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "oca_index.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("indexnumberid\n"), 0o644))
	archive := filepath.Join(dir, "partial.zip")
	require.NoError(t, fetcher.WriteZIP(archive, []string{"oca_index.csv"}, map[string]string{"oca_index.csv": csvPath}))
	require.NoError(t, objects.PutFile(ctx, "private/"+DefaultName, archive))

	_, err = (&Snapshotter{Store: newTestStore(t), Objects: objects, Key: "private/" + DefaultName}).Restore(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "snapshot: missing oca_causes")
}
