package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/oca-cli/internal/db"
	"github.com/sells-group/oca-cli/internal/oca"
)

// sqliteMaxParams is SQLite's default bound parameter limit.
const sqliteMaxParams = 32766

// importBatch is the number of CSV rows inserted per statement on import.
const importBatch = 500

// SQLiteStore implements Store using modernc.org/sqlite. Dates, arrays and
// JSON are kept in their text form.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: conn}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS oca_index (
	indexnumberid TEXT PRIMARY KEY, court TEXT, fileddate TEXT, propertytype TEXT,
	classification TEXT, specialtydesignationtypes TEXT, status TEXT, disposeddate TEXT,
	disposedreason TEXT, firstpaper TEXT, primaryclaimtotal TEXT, dateofjurydemand TEXT
);
CREATE TABLE IF NOT EXISTS oca_causes (
	indexnumberid TEXT NOT NULL, causeofactiontype TEXT, interestfromdate TEXT, amount TEXT
);
CREATE TABLE IF NOT EXISTS oca_addresses (
	indexnumberid TEXT NOT NULL, street1 TEXT, street2 TEXT, city TEXT, state TEXT, postalcode TEXT
);
CREATE TABLE IF NOT EXISTS oca_parties (
	indexnumberid TEXT NOT NULL, role TEXT, partytype TEXT, representationtype TEXT, undertenant TEXT
);
CREATE TABLE IF NOT EXISTS oca_events (
	indexnumberid TEXT NOT NULL, eventname TEXT, fileddate TEXT, feetype TEXT,
	filingpartiesroles TEXT, answertype TEXT
);
CREATE TABLE IF NOT EXISTS oca_appearances (
	indexnumberid TEXT NOT NULL, appearancedatetime TEXT, appearancepurpose TEXT,
	appearancereason TEXT, appearancepart TEXT, motionsequence TEXT,
	appearanceoutcomes TEXT NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS oca_motions (
	indexnumberid TEXT NOT NULL, sequence TEXT, motiontype TEXT, primaryrelief TEXT,
	fileddate TEXT, filingpartiesroles TEXT, motiondecision TEXT, motiondecisiondate TEXT
);
CREATE TABLE IF NOT EXISTS oca_decisions (
	indexnumberid TEXT NOT NULL, sequence TEXT, resultof TEXT, highlight TEXT
);
CREATE TABLE IF NOT EXISTS oca_judgments (
	indexnumberid TEXT NOT NULL, sequence TEXT, amendedfromjudgmentsequence TEXT,
	judgmenttype TEXT, fileddate TEXT, entereddatetime TEXT, withpossession TEXT,
	latestjudgmentstatus TEXT, latestjudgmentstatusdate TEXT, totaljudgmentamount TEXT,
	creditorsroles TEXT, debtorsroles TEXT
);
CREATE TABLE IF NOT EXISTS oca_warrants (
	indexnumberid TEXT NOT NULL, judgmentsequence TEXT, sequence TEXT, createdreason TEXT,
	ordereddate TEXT, issuancetype TEXT, issuancestayeddate TEXT, issuancestayeddays TEXT,
	issueddate TEXT, executiontype TEXT, executionstayeddate TEXT, executionstayeddays TEXT,
	marshalrequestdate TEXT, marshalrequestrevieweddate TEXT, enforcementagency TEXT,
	enforcementofficerdocketnumber TEXT, propertiesonwarrantcities TEXT,
	propertiesonwarrantstates TEXT, propertiesonwarrantpostalcodes TEXT, amendeddate TEXT,
	vacateddate TEXT, adultprotectiveservicesnumber TEXT, returneddate TEXT,
	returnedreason TEXT, executiondate TEXT
);
CREATE TABLE IF NOT EXISTS oca_appearance_outcomes (
	indexnumberid TEXT NOT NULL, appearancedatetime TEXT, appearanceoutcometype TEXT,
	outcomebasedontype TEXT
);
CREATE TABLE IF NOT EXISTS oca_extract_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	extract_date DATETIME NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME,
	rows_synced  INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_oca_causes_indexnumberid ON oca_causes(indexnumberid);
CREATE INDEX IF NOT EXISTS idx_oca_addresses_indexnumberid ON oca_addresses(indexnumberid);
CREATE INDEX IF NOT EXISTS idx_oca_parties_indexnumberid ON oca_parties(indexnumberid);
CREATE INDEX IF NOT EXISTS idx_oca_events_indexnumberid ON oca_events(indexnumberid);
CREATE INDEX IF NOT EXISTS idx_oca_appearances_indexnumberid ON oca_appearances(indexnumberid);
CREATE INDEX IF NOT EXISTS idx_oca_motions_indexnumberid ON oca_motions(indexnumberid);
CREATE INDEX IF NOT EXISTS idx_oca_decisions_indexnumberid ON oca_decisions(indexnumberid);
CREATE INDEX IF NOT EXISTS idx_oca_judgments_indexnumberid ON oca_judgments(indexnumberid);
CREATE INDEX IF NOT EXISTS idx_oca_warrants_indexnumberid ON oca_warrants(indexnumberid);
CREATE INDEX IF NOT EXISTS idx_oca_extract_log_name_status ON oca_extract_log(name, status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	for _, t := range oca.ExportTables() {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+db.SanitizeTable(t.Name)); err != nil {
			return eris.Wrapf(err, "sqlite: reset %s", t.Name)
		}
	}
	return nil
}

func (s *SQLiteStore) BeginFile(ctx context.Context, staged bool) (FileTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin file tx")
	}
	ftx := &sqliteFileTx{tx: tx, staged: staged}
	if staged {
		if err := ftx.createStaging(ctx); err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}
	return ftx, nil
}

type sqliteFileTx struct {
	tx     *sql.Tx
	staged bool
}

func (f *sqliteFileTx) dropStaging(ctx context.Context) error {
	names := make([]string, 0, len(oca.Tables)+1)
	for _, t := range oca.Tables {
		names = append(names, t.Staging())
	}
	names = append(names, oca.PurgeListTable)
	for _, n := range names {
		if _, err := f.tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+db.SanitizeTable(n)); err != nil {
			return eris.Wrapf(err, "sqlite: drop %s", n)
		}
	}
	return nil
}

func (f *sqliteFileTx) createStaging(ctx context.Context) error {
	if err := f.dropStaging(ctx); err != nil {
		return err
	}
	for _, t := range oca.Tables {
		stmt := "CREATE TABLE " + db.SanitizeTable(t.Staging()) + " AS SELECT * FROM " + db.SanitizeTable(t.Name) + " WHERE 0"
		if _, err := f.tx.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: create %s", t.Staging())
		}
	}
	if _, err := f.tx.ExecContext(ctx, "CREATE TABLE "+oca.PurgeListTable+" ("+oca.CaseIDColumn+" TEXT PRIMARY KEY)"); err != nil {
		return eris.Wrapf(err, "sqlite: create %s", oca.PurgeListTable)
	}
	return nil
}

func (f *sqliteFileTx) PurgeCase(ctx context.Context, caseID string) error {
	if f.staged {
		if _, err := f.tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO "+oca.PurgeListTable+" ("+oca.CaseIDColumn+") VALUES (?)", caseID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: record purge of %s", caseID)
		}
	}
	for _, t := range oca.Tables {
		if _, err := f.tx.ExecContext(ctx, deleteCaseSQL(target(t, f.staged), db.Question), caseID); err != nil {
			return eris.Wrapf(err, "sqlite: purge case %s from %s", caseID, t.Name)
		}
	}
	return nil
}

func (f *sqliteFileTx) Insert(ctx context.Context, table oca.Table, rows [][]any) (int64, error) {
	return sqliteInsert(ctx, f.tx, target(table, f.staged), table.Columns, rows)
}

func (f *sqliteFileTx) Commit(ctx context.Context) error {
	if f.staged {
		for _, t := range oca.Tables {
			for _, stmt := range mergeSQL(t) {
				if _, err := f.tx.ExecContext(ctx, stmt); err != nil {
					return eris.Wrapf(err, "sqlite: merge %s", t.Staging())
				}
			}
		}
		if err := f.dropStaging(ctx); err != nil {
			return err
		}
	}
	return eris.Wrap(f.tx.Commit(), "sqlite: commit file tx")
}

func (f *sqliteFileTx) Rollback(context.Context) error {
	err := f.tx.Rollback()
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return eris.Wrap(err, "sqlite: rollback file tx")
	}
	return nil
}

type sqliteExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqliteInsert(ctx context.Context, ex sqliteExecer, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	page := sqliteMaxParams / len(columns)
	var total int64
	for start := 0; start < len(rows); start += page {
		chunk := rows[start:min(start+page, len(rows))]
		res, err := ex.ExecContext(ctx, db.BuildInsert(table, columns, len(chunk), db.Question), db.Flatten(chunk)...)
		if err != nil {
			return total, eris.Wrapf(err, "sqlite: insert into %s", table)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

const sqliteRefreshOutcomes = `
INSERT INTO oca_appearance_outcomes (indexnumberid, appearancedatetime, appearanceoutcometype, outcomebasedontype)
SELECT a.indexnumberid, a.appearancedatetime,
	json_extract(o.value, '$.appearanceoutcometype'),
	json_extract(o.value, '$.outcomebasedontype')
FROM oca_appearances a, json_each(a.appearanceoutcomes) o`

func (s *SQLiteStore) RefreshDerived(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin refresh")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM oca_appearance_outcomes"); err != nil {
		return eris.Wrap(err, "sqlite: clear appearance outcomes")
	}
	if _, err := tx.ExecContext(ctx, sqliteRefreshOutcomes); err != nil {
		return eris.Wrap(err, "sqlite: refresh appearance outcomes")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit refresh")
}

func (s *SQLiteStore) CountRows(ctx context.Context, table string) (int64, error) {
	t, err := knownTable(table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM "+db.SanitizeTable(t.Name)).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "sqlite: count %s", t.Name)
	}
	return n, nil
}

func (s *SQLiteStore) CaseRows(ctx context.Context, caseID string) (map[string][]Row, error) {
	out := make(map[string][]Row)
	for _, t := range oca.ExportTables() {
		q := caseRowsSQL(t, func(c string) string { return "CAST(" + db.QuoteAndJoin([]string{c}) + " AS TEXT)" }, db.Question)
		rows, err := s.db.QueryContext(ctx, q, caseID)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: query %s for case %s", t.Name, caseID)
		}
		list, err := scanTextRows(rows, t.Columns)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", t.Name)
		}
		if len(list) > 0 {
			out[t.Name] = list
		}
	}
	return out, nil
}

func scanTextRows(rows *sql.Rows, columns []string) ([]Row, error) {
	defer rows.Close()
	var out []Row
	for rows.Next() {
		vals := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r := make(Row, len(columns))
		for i, c := range columns {
			if vals[i].Valid {
				r[c] = vals[i].String
			} else {
				r[c] = nil
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExportTable writes the table as CSV with a header line, NULL as an empty field.
func (s *SQLiteStore) ExportTable(ctx context.Context, table oca.Table, w io.Writer) (int64, error) {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = "CAST(" + db.QuoteAndJoin([]string{c}) + " AS TEXT)"
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+strings.Join(cols, ", ")+" FROM "+db.SanitizeTable(table.Name)+" ORDER BY rowid")
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: export %s", table.Name)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns); err != nil {
		return 0, eris.Wrapf(err, "sqlite: write %s header", table.Name)
	}

	var n int64
	vals := make([]sql.NullString, len(table.Columns))
	dest := make([]any, len(vals))
	for i := range vals {
		dest[i] = &vals[i]
	}
	record := make([]string, len(vals))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return n, eris.Wrapf(err, "sqlite: scan %s", table.Name)
		}
		for i, v := range vals {
			record[i] = v.String
		}
		if err := cw.Write(record); err != nil {
			return n, eris.Wrapf(err, "sqlite: write %s row", table.Name)
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, eris.Wrapf(err, "sqlite: iterate %s", table.Name)
	}
	cw.Flush()
	return n, eris.Wrapf(cw.Error(), "sqlite: flush %s", table.Name)
}

// ImportTable appends CSV rows to the table. Header names select columns;
// empty fields become NULL.
func (s *SQLiteStore) ImportTable(ctx context.Context, table oca.Table, r io.Reader) (int64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: read %s header", table.Name)
	}

	known := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		known[c] = true
	}
	for _, h := range header {
		if !known[h] {
			return 0, eris.Errorf("sqlite: import %s: unknown column %q", table.Name, h)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import")
	}
	defer tx.Rollback() //nolint:errcheck

	var total int64
	batch := make([][]any, 0, importBatch)
	flush := func() error {
		n, err := sqliteInsert(ctx, tx, table.Name, header, batch)
		total += n
		batch = batch[:0]
		return err
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, eris.Wrapf(err, "sqlite: read %s row", table.Name)
		}
		if len(rec) != len(header) {
			return total, eris.Errorf("sqlite: import %s: row has %d fields, want %d", table.Name, len(rec), len(header))
		}
		row := make([]any, len(rec))
		for i, v := range rec {
			if v != "" {
				row[i] = v
			}
		}
		batch = append(batch, row)
		if len(batch) == importBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, eris.Wrap(tx.Commit(), "sqlite: commit import")
}

func (s *SQLiteStore) StartExtract(ctx context.Context, e oca.Extract) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO oca_extract_log (name, kind, extract_date, status, started_at) VALUES (?, ?, ?, 'running', ?)`,
		e.Name, e.Kind.String(), e.Date, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start extract %s", e.Name)
	}
	id, err := res.LastInsertId()
	return id, eris.Wrap(err, "sqlite: extract log id")
}

func (s *SQLiteStore) CompleteExtract(ctx context.Context, id int64, rows int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE oca_extract_log SET status = 'complete', completed_at = ?, rows_synced = ? WHERE id = ?`,
		time.Now().UTC(), rows, id,
	)
	return eris.Wrapf(err, "sqlite: complete extract %d", id)
}

func (s *SQLiteStore) FailExtract(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE oca_extract_log SET status = 'failed', completed_at = ?, error = ? WHERE id = ?`,
		time.Now().UTC(), errMsg, id,
	)
	return eris.Wrapf(err, "sqlite: fail extract %d", id)
}

func (s *SQLiteStore) ProcessedExtracts(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT name FROM oca_extract_log WHERE status = 'complete'`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: processed extracts")
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extract name")
		}
		done[name] = true
	}
	return done, rows.Err()
}

func (s *SQLiteStore) ListExtracts(ctx context.Context) ([]ExtractEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, extract_date, status, started_at, completed_at, rows_synced, error
		 FROM oca_extract_log ORDER BY started_at DESC, id DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extracts")
	}
	defer rows.Close()

	var entries []ExtractEntry
	for rows.Next() {
		var e ExtractEntry
		var completedAt sql.NullTime
		var errStr sql.NullString
		if err := rows.Scan(&e.ID, &e.Name, &e.Kind, &e.ExtractDate, &e.Status, &e.StartedAt, &completedAt, &e.RowsSynced, &errStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extract entry")
		}
		if completedAt.Valid {
			t := completedAt.Time
			e.CompletedAt = &t
		}
		e.Error = errStr.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
