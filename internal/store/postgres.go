package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/db"
	"github.com/sells-group/oca-cli/internal/oca"
)

// copier runs COPY statements on a single connection.
type copier interface {
	CopyTo(ctx context.Context, w io.Writer, sql string) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	copy    copier
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, copy: poolCopier{pool: pool}, closeFn: pool.Close}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Reset empties every case table, the derived table included.
func (s *PostgresStore) Reset(ctx context.Context) error {
	names := make([]string, 0, len(oca.Tables)+1)
	for _, t := range oca.ExportTables() {
		names = append(names, db.SanitizeTable(t.Name))
	}
	if _, err := s.pool.Exec(ctx, "TRUNCATE "+strings.Join(names, ", ")); err != nil {
		return eris.Wrap(err, "postgres: reset case tables")
	}
	return nil
}

// BeginFile opens the transaction one delta file is replayed in. Staged
// transactions create fresh staging tables inside it.
func (s *PostgresStore) BeginFile(ctx context.Context, staged bool) (FileTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin file tx")
	}
	ftx := &pgFileTx{tx: tx, staged: staged, purge: purgeCTE(staged)}
	if staged {
		if err := ftx.createStaging(ctx); err != nil {
			_ = tx.Rollback(ctx)
			return nil, err
		}
	}
	return ftx, nil
}

type pgFileTx struct {
	tx     pgx.Tx
	staged bool
	purge  string
}

func (f *pgFileTx) createStaging(ctx context.Context) error {
	if _, err := f.tx.Exec(ctx, dropStagingSQL()); err != nil {
		return eris.Wrap(err, "postgres: drop leftover staging tables")
	}
	for _, t := range oca.Tables {
		sql := "CREATE TABLE " + db.SanitizeTable(t.Staging()) + " (LIKE " + db.SanitizeTable(t.Name) + " INCLUDING DEFAULTS)"
		if _, err := f.tx.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "postgres: create %s", t.Staging())
		}
	}
	if _, err := f.tx.Exec(ctx, "CREATE TABLE "+oca.PurgeListTable+" ("+oca.CaseIDColumn+" TEXT PRIMARY KEY)"); err != nil {
		return eris.Wrapf(err, "postgres: create %s", oca.PurgeListTable)
	}
	return nil
}

func (f *pgFileTx) PurgeCase(ctx context.Context, caseID string) error {
	if _, err := f.tx.Exec(ctx, f.purge, caseID); err != nil {
		return eris.Wrapf(err, "postgres: purge case %s", caseID)
	}
	return nil
}

func (f *pgFileTx) Insert(ctx context.Context, table oca.Table, rows [][]any) (int64, error) {
	return db.InsertRows(ctx, f.tx, target(table, f.staged), table.Columns, rows)
}

// Commit merges staged rows into the main tables first when staged.
func (f *pgFileTx) Commit(ctx context.Context) error {
	if f.staged {
		for _, t := range oca.Tables {
			for _, sql := range mergeSQL(t) {
				if _, err := f.tx.Exec(ctx, sql); err != nil {
					return eris.Wrapf(err, "postgres: merge %s", t.Staging())
				}
			}
		}
		if _, err := f.tx.Exec(ctx, dropStagingSQL()); err != nil {
			return eris.Wrap(err, "postgres: drop staging tables")
		}
	}
	if err := f.tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: commit file tx")
	}
	return nil
}

func (f *pgFileTx) Rollback(ctx context.Context) error {
	err := f.tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return eris.Wrap(err, "postgres: rollback file tx")
	}
	return nil
}

const pgRefreshOutcomes = `
INSERT INTO oca_appearance_outcomes (indexnumberid, appearancedatetime, appearanceoutcometype, outcomebasedontype)
SELECT a.indexnumberid, a.appearancedatetime, o.appearanceoutcometype, o.outcomebasedontype
FROM oca_appearances a,
	jsonb_to_recordset(a.appearanceoutcomes) AS o(appearanceoutcometype TEXT, outcomebasedontype TEXT)`

// RefreshDerived rebuilds oca_appearance_outcomes from oca_appearances.
func (s *PostgresStore) RefreshDerived(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin refresh")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "DELETE FROM oca_appearance_outcomes"); err != nil {
		return eris.Wrap(err, "postgres: clear appearance outcomes")
	}
	if _, err := tx.Exec(ctx, pgRefreshOutcomes); err != nil {
		return eris.Wrap(err, "postgres: refresh appearance outcomes")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit refresh")
}

func (s *PostgresStore) CountRows(ctx context.Context, table string) (int64, error) {
	t, err := knownTable(table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM "+db.SanitizeTable(t.Name)).Scan(&n); err != nil {
		return 0, eris.Wrapf(err, "postgres: count %s", t.Name)
	}
	return n, nil
}

// CaseRows returns every row of one case, per table, with values as text.
func (s *PostgresStore) CaseRows(ctx context.Context, caseID string) (map[string][]Row, error) {
	out := make(map[string][]Row)
	for _, t := range oca.ExportTables() {
		sql := caseRowsSQL(t, func(c string) string { return db.QuoteAndJoin([]string{c}) + "::text" }, db.Dollar)
		rows, err := s.pool.Query(ctx, sql, caseID)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: query %s for case %s", t.Name, caseID)
		}
		list, err := collectRows(rows, t.Columns)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", t.Name)
		}
		if len(list) > 0 {
			out[t.Name] = list
		}
	}
	return out, nil
}

func collectRows(rows pgx.Rows, columns []string) ([]Row, error) {
	defer rows.Close()
	var out []Row
	for rows.Next() {
		vals := make([]*string, len(columns))
		dest := make([]any, len(columns))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r := make(Row, len(columns))
		for i, c := range columns {
			if vals[i] == nil {
				r[c] = nil
			} else {
				r[c] = *vals[i]
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExportTable writes the table as CSV with a header line. NULLs are written
// as unquoted empty fields.
func (s *PostgresStore) ExportTable(ctx context.Context, table oca.Table, w io.Writer) (int64, error) {
	if s.copy == nil {
		return 0, eris.New("postgres: COPY not available")
	}
	sql := "COPY (SELECT " + db.QuoteAndJoin(table.Columns) + " FROM " + db.SanitizeTable(table.Name) +
		") TO STDOUT WITH (FORMAT csv, HEADER true)"
	tag, err := s.copy.CopyTo(ctx, w, sql)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: export %s", table.Name)
	}
	return tag.RowsAffected(), nil
}

// ImportTable appends CSV rows produced by ExportTable to the table.
func (s *PostgresStore) ImportTable(ctx context.Context, table oca.Table, r io.Reader) (int64, error) {
	if s.copy == nil {
		return 0, eris.New("postgres: COPY not available")
	}
	sql := "COPY " + db.SanitizeTable(table.Name) + " (" + db.QuoteAndJoin(table.Columns) +
		") FROM STDIN WITH (FORMAT csv, HEADER true)"
	tag, err := s.copy.CopyFrom(ctx, r, sql)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: import %s", table.Name)
	}
	zap.L().Debug("postgres: imported table", zap.String("table", table.Name), zap.Int64("rows", tag.RowsAffected()))
	return tag.RowsAffected(), nil
}

// poolCopier acquires a connection per COPY.
type poolCopier struct {
	pool *pgxpool.Pool
}

func (c poolCopier) CopyTo(ctx context.Context, w io.Writer, sql string) (pgconn.CommandTag, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, eris.Wrap(err, "postgres: acquire conn")
	}
	defer conn.Release()
	return conn.Conn().PgConn().CopyTo(ctx, w, sql)
}

func (c poolCopier) CopyFrom(ctx context.Context, r io.Reader, sql string) (pgconn.CommandTag, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, eris.Wrap(err, "postgres: acquire conn")
	}
	defer conn.Release()
	return conn.Conn().PgConn().CopyFrom(ctx, r, sql)
}
