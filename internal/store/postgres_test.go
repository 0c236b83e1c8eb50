package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/oca-cli/internal/oca"
)

// fakeCopier records COPY statements and serves canned data.
type fakeCopier struct {
	sql  []string
	out  string
	in   bytes.Buffer
	rows int64
	err  error
}

func (f *fakeCopier) CopyTo(_ context.Context, w io.Writer, sql string) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	_, _ = io.WriteString(w, f.out)
	return pgconn.NewCommandTag(fmt.Sprintf("COPY %d", f.rows)), nil
}

func (f *fakeCopier) CopyFrom(_ context.Context, r io.Reader, sql string) (pgconn.CommandTag, error) {
	f.sql = append(f.sql, sql)
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	_, _ = io.Copy(&f.in, r)
	return pgconn.NewCommandTag(fmt.Sprintf("COPY %d", f.rows)), nil
}

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface, *fakeCopier) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	cp := &fakeCopier{}
	return &PostgresStore{pool: mock, copy: cp}, mock, cp
}

func TestPostgresStore_Reset(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	mock.ExpectExec(`TRUNCATE "oca_index", .*"oca_warrants", "oca_appearance_outcomes"`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))

	require.NoError(t, s.Reset(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DirectFile(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`WITH d0 AS \(DELETE FROM "oca_causes" WHERE indexnumberid = \$1\).* DELETE FROM "oca_index" WHERE indexnumberid = \$1`).
		WithArgs("X1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO "oca_addresses" \(`).
		WithArgs("X1", "123 MAIN ST", nil, nil, nil, "10001").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	ftx, err := s.BeginFile(ctx, false)
	require.NoError(t, err)
	require.NoError(t, ftx.PurgeCase(ctx, "X1"))
	n, err := ftx.Insert(ctx, oca.AddressesTable, [][]any{{"X1", "123 MAIN ST", nil, nil, nil, "10001"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, ftx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StagedFileMerges(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS "oca_index_staging"`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	for _, tbl := range oca.Tables {
		mock.ExpectExec(`CREATE TABLE "` + tbl.Staging() + `" \(LIKE "` + tbl.Name + `" INCLUDING DEFAULTS\)`).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	mock.ExpectExec(`CREATE TABLE oca_purged_staging`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`WITH p AS \(INSERT INTO oca_purged_staging .* DELETE FROM "oca_index_staging"`).
		WithArgs("X1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(`INSERT INTO "oca_index_staging"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	for _, tbl := range oca.Tables {
		mock.ExpectExec(`DELETE FROM "` + tbl.Name + `" WHERE indexnumberid IN \(SELECT indexnumberid FROM oca_purged_staging\)`).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectExec(`INSERT INTO "` + tbl.Name + `" .* FROM "` + tbl.Staging() + `"`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnResult(pgxmock.NewResult("DROP", 0))
	mock.ExpectCommit()

	ftx, err := s.BeginFile(ctx, true)
	require.NoError(t, err)
	require.NoError(t, ftx.PurgeCase(ctx, "X1"))
	_, err = ftx.Insert(ctx, oca.IndexTable, [][]any{make([]any, len(oca.IndexTable.Columns))})
	require.NoError(t, err)
	require.NoError(t, ftx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFailureRollsBack(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "oca_index"`).WillReturnError(fmt.Errorf(`invalid input syntax for type date: "soon"`))
	mock.ExpectRollback()

	ftx, err := s.BeginFile(ctx, false)
	require.NoError(t, err)
	_, err = ftx.Insert(ctx, oca.IndexTable, [][]any{make([]any, len(oca.IndexTable.Columns))})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: insert into oca_index")
	require.NoError(t, ftx.Rollback(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_BeginStagedFailure(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DROP TABLE IF EXISTS`).WillReturnError(fmt.Errorf("permission denied"))
	mock.ExpectRollback()

	_, err := s.BeginFile(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drop leftover staging tables")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RefreshDerived(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM oca_appearance_outcomes`).WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`jsonb_to_recordset`).WillReturnResult(pgxmock.NewResult("INSERT", 4))
	mock.ExpectCommit()

	require.NoError(t, s.RefreshDerived(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountRows(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "oca_index"`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(12)))

	n, err := s.CountRows(context.Background(), "oca_index")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = s.CountRows(context.Background(), "pg_user")
	assert.Error(t, err)
}

func TestPostgresStore_CaseRows(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	court := "Kings"
	for _, tbl := range oca.ExportTables() {
		rows := pgxmock.NewRows(tbl.Columns)
		if tbl.Name == "oca_index" {
			vals := make([]any, len(tbl.Columns))
			id := "X1"
			vals[0] = &id
			vals[1] = &court
			for i := 2; i < len(vals); i++ {
				vals[i] = (*string)(nil)
			}
			rows.AddRow(vals...)
		}
		mock.ExpectQuery(`SELECT "indexnumberid"::text, .* FROM "` + tbl.Name + `" WHERE indexnumberid = \$1`).
			WithArgs("X1").
			WillReturnRows(rows)
	}

	got, err := s.CaseRows(context.Background(), "X1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got["oca_index"], 1)
	assert.Equal(t, "Kings", got["oca_index"][0]["court"])
	assert.Nil(t, got["oca_index"][0]["status"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExportTable(t *testing.T) {
	s, _, cp := newMockPostgresStore(t)
	cp.out = "indexnumberid,causeofactiontype,interestfromdate,amount\nX1,Rent,,100.00\n"
	cp.rows = 1

	var buf bytes.Buffer
	n, err := s.ExportTable(context.Background(), oca.CausesTable, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, cp.out, buf.String())
	require.Len(t, cp.sql, 1)
	assert.Equal(t,
		`COPY (SELECT "indexnumberid", "causeofactiontype", "interestfromdate", "amount" FROM "oca_causes") TO STDOUT WITH (FORMAT csv, HEADER true)`,
		cp.sql[0])
}

func TestPostgresStore_ImportTable(t *testing.T) {
	s, _, cp := newMockPostgresStore(t)
	cp.rows = 2

	n, err := s.ImportTable(context.Background(), oca.DecisionsTable, strings.NewReader("indexnumberid,sequence,resultof,highlight\nX1,1,,\nX2,1,,\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, cp.sql[0], `COPY "oca_decisions" ("indexnumberid", "sequence", "resultof", "highlight") FROM STDIN`)
	assert.Contains(t, cp.in.String(), "X2,1,,")
}

func TestPostgresStore_ExportTableError(t *testing.T) {
	s, _, cp := newMockPostgresStore(t)
	cp.err = fmt.Errorf("connection reset")

	_, err := s.ExportTable(context.Background(), oca.CausesTable, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: export oca_causes")
}

func TestPostgresStore_StartExtract(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)
	e, err := oca.ParseExtract("LandlordTenant.Incr.20210111.zip")
	require.NoError(t, err)

	mock.ExpectQuery(`INSERT INTO oca_extract_log`).
		WithArgs(e.Name, "incremental", e.Date).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.StartExtract(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteAndFailExtract(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE oca_extract_log\s+SET status = 'complete'`).
		WithArgs(int64(100), int64(1)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE oca_extract_log\s+SET status = 'failed'`).
		WithArgs("boom", int64(2)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.CompleteExtract(context.Background(), 1, 100))
	require.NoError(t, s.FailExtract(context.Background(), 2, "boom"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ProcessedExtracts(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT name FROM oca_extract_log WHERE status = 'complete'`).
		WillReturnRows(pgxmock.NewRows([]string{"name"}).AddRow("a.zip").AddRow("b.zip"))

	done, err := s.ProcessedExtracts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a.zip": true, "b.zip": true}, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListExtracts(t *testing.T) {
	s, mock, _ := newMockPostgresStore(t)

	now := time.Now().UTC()
	done := now.Add(time.Minute)
	msg := "insert failed"
	mock.ExpectQuery(`SELECT id, name, kind, extract_date, status, started_at, completed_at, rows_synced, error`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "kind", "extract_date", "status", "started_at", "completed_at", "rows_synced", "error"}).
			AddRow(int64(2), "b.zip", "incremental", now, StatusFailed, now, &done, int64(0), &msg))

	entries, err := s.ListExtracts(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.zip", entries[0].Name)
	assert.Equal(t, "insert failed", entries[0].Error)
	require.NotNil(t, entries[0].CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
