package store

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oca-cli/internal/db"
	"github.com/sells-group/oca-cli/internal/oca"
)

// target returns the table name a file transaction writes.
func target(t oca.Table, staged bool) string {
	if staged {
		return t.Staging()
	}
	return t.Name
}

// deleteCaseSQL deletes one case's rows from a single table.
func deleteCaseSQL(table string, ph db.Placeholder) string {
	return "DELETE FROM " + db.SanitizeTable(table) + " WHERE " + oca.CaseIDColumn + " = " + ph(1)
}

// purgeCTE deletes one case from every table in a single statement using
// data-modifying CTEs. When staged, the id is also recorded in the purge list.
func purgeCTE(staged bool) string {
	var parts []string
	if staged {
		parts = append(parts, "p AS (INSERT INTO "+oca.PurgeListTable+" ("+oca.CaseIDColumn+") VALUES ($1) ON CONFLICT DO NOTHING)")
	}
	for i, t := range oca.Tables[1:] {
		parts = append(parts, "d"+strconv.Itoa(i)+" AS ("+deleteCaseSQL(target(t, staged), db.Dollar)+")")
	}
	return "WITH " + strings.Join(parts, ", ") + " " + deleteCaseSQL(target(oca.IndexTable, staged), db.Dollar)
}

// mergeSQL returns, per table, the statements that supersede main rows by
// the staged purge list and move staged rows in.
func mergeSQL(t oca.Table) []string {
	cols := db.QuoteAndJoin(t.Columns)
	return []string{
		"DELETE FROM " + db.SanitizeTable(t.Name) + " WHERE " + oca.CaseIDColumn +
			" IN (SELECT " + oca.CaseIDColumn + " FROM " + oca.PurgeListTable + ")",
		"INSERT INTO " + db.SanitizeTable(t.Name) + " (" + cols + ") SELECT " + cols +
			" FROM " + db.SanitizeTable(t.Staging()),
	}
}

// dropStagingSQL drops every staging table and the purge list.
func dropStagingSQL() string {
	names := make([]string, 0, len(oca.Tables)+1)
	for _, t := range oca.Tables {
		names = append(names, db.SanitizeTable(t.Staging()))
	}
	names = append(names, oca.PurgeListTable)
	return "DROP TABLE IF EXISTS " + strings.Join(names, ", ")
}

// caseRowsSQL selects one case's rows from a table with every column cast to text.
func caseRowsSQL(t oca.Table, cast func(col string) string, ph db.Placeholder) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = cast(c)
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM " + db.SanitizeTable(t.Name) +
		" WHERE " + oca.CaseIDColumn + " = " + ph(1)
}

// knownTable reports whether name is one of the exportable tables.
func knownTable(name string) (oca.Table, error) {
	for _, t := range oca.ExportTables() {
		if t.Name == name {
			return t, nil
		}
	}
	return oca.Table{}, eris.Errorf("store: unknown table %q", name)
}
