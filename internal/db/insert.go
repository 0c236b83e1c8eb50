package db

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// MaxParams is the Postgres limit on bind parameters per statement.
const MaxParams = 65535

// Placeholder renders the n-th (1-based) bind parameter.
type Placeholder func(n int) string

// Dollar renders Postgres-style $n placeholders.
func Dollar(n int) string { return "$" + strconv.Itoa(n) }

// Question renders ?-style placeholders, as SQLite accepts.
func Question(int) string { return "?" }

// BuildInsert builds a multi-row INSERT for nrows rows of the given columns.
func BuildInsert(table string, columns []string, nrows int, ph Placeholder) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(SanitizeTable(table))
	b.WriteString(" (")
	b.WriteString(QuoteAndJoin(columns))
	b.WriteString(") VALUES ")

	n := 1
	for r := 0; r < nrows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			b.WriteString(ph(n))
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

// Flatten concatenates rows into a single argument list.
func Flatten(rows [][]any) []any {
	size := 0
	for _, r := range rows {
		size += len(r)
	}
	out := make([]any, 0, size)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}

// PageSize returns how many rows of ncols columns fit in one statement.
func PageSize(ncols int) int {
	if ncols <= 0 {
		return 0
	}
	return MaxParams / ncols
}

// InsertRows inserts rows into table with parameterized multi-row INSERTs,
// splitting into several statements when the bind parameter limit would be
// exceeded. It returns the number of rows inserted.
func InsertRows(ctx context.Context, ex Execer, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, eris.Errorf("db: insert into %s: no columns specified", table)
	}
	for i, r := range rows {
		if len(r) != len(columns) {
			return 0, eris.Errorf("db: insert into %s: row %d has %d values, want %d", table, i, len(r), len(columns))
		}
	}

	page := PageSize(len(columns))
	var total int64
	for start := 0; start < len(rows); start += page {
		end := min(start+page, len(rows))
		chunk := rows[start:end]
		tag, err := ex.Exec(ctx, BuildInsert(table, columns, len(chunk), Dollar), Flatten(chunk)...)
		if err != nil {
			return total, eris.Wrapf(err, "db: insert into %s", table)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// SanitizeTable quotes a table name, handling schema-qualified names like "public.oca_index".
func SanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// QuoteAndJoin quotes each column name and joins with commas.
func QuoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
