// Package store persists case tables, their staging counterparts and the extract log.
package store

import (
	"context"
	"io"
	"time"

	"github.com/sells-group/oca-cli/internal/oca"
)

// Store is the relational store behind ingestion, export and the read API.
type Store interface {
	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error

	// Case tables
	Reset(ctx context.Context) error
	BeginFile(ctx context.Context, staged bool) (FileTx, error)
	RefreshDerived(ctx context.Context) error
	CountRows(ctx context.Context, table string) (int64, error)
	CaseRows(ctx context.Context, caseID string) (map[string][]Row, error)

	// Bulk transfer, CSV with a header line
	ExportTable(ctx context.Context, table oca.Table, w io.Writer) (int64, error)
	ImportTable(ctx context.Context, table oca.Table, r io.Reader) (int64, error)

	// Extract log
	StartExtract(ctx context.Context, e oca.Extract) (int64, error)
	CompleteExtract(ctx context.Context, id int64, rows int64) error
	FailExtract(ctx context.Context, id int64, errMsg string) error
	ProcessedExtracts(ctx context.Context) (map[string]bool, error)
	ListExtracts(ctx context.Context) ([]ExtractEntry, error)
}

// FileTx is one delta file's transaction. Direct transactions write the main
// tables. Staged transactions write <table>_staging and merge on Commit.
type FileTx interface {
	// PurgeCase removes every row of the case from the tables this
	// transaction writes and, when staged, records the id for the merge.
	PurgeCase(ctx context.Context, caseID string) error
	Insert(ctx context.Context, table oca.Table, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Row is one table row keyed by column name. Values are strings or nil.
type Row map[string]any

// Extract log statuses.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// ExtractEntry is one row of oca_extract_log.
type ExtractEntry struct {
	ID          int64      `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Kind        string     `json:"kind" yaml:"kind"`
	ExtractDate time.Time  `json:"extract_date" yaml:"extract_date"`
	Status      string     `json:"status" yaml:"status"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	RowsSynced  int64      `json:"rows_synced" yaml:"rows_synced"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
}
