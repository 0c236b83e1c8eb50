package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/oca-cli/internal/oca"
)

// StartExtract records the beginning of an extract replay and returns its log id.
func (s *PostgresStore) StartExtract(ctx context.Context, e oca.Extract) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO oca_extract_log (name, kind, extract_date, status, started_at)
		 VALUES ($1, $2, $3, 'running', now()) RETURNING id`,
		e.Name, e.Kind.String(), e.Date,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "extractlog: start %s", e.Name)
	}
	return id, nil
}

// CompleteExtract marks an extract replay as complete.
func (s *PostgresStore) CompleteExtract(ctx context.Context, id int64, rows int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE oca_extract_log
		 SET status = 'complete', completed_at = now(), rows_synced = $1
		 WHERE id = $2`,
		rows, id,
	)
	if err != nil {
		return eris.Wrapf(err, "extractlog: complete %d", id)
	}
	return nil
}

// FailExtract marks an extract replay as failed with an error message.
func (s *PostgresStore) FailExtract(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE oca_extract_log
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "extractlog: fail %d", id)
	}
	return nil
}

// ProcessedExtracts returns the names of every extract replayed successfully.
func (s *PostgresStore) ProcessedExtracts(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT name FROM oca_extract_log WHERE status = 'complete'`)
	if err != nil {
		return nil, eris.Wrap(err, "extractlog: processed")
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "extractlog: scan name")
		}
		done[name] = true
	}
	return done, rows.Err()
}

// ListExtracts returns every log entry, most recent first.
func (s *PostgresStore) ListExtracts(ctx context.Context) ([]ExtractEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, kind, extract_date, status, started_at, completed_at, rows_synced, error
		 FROM oca_extract_log ORDER BY started_at DESC, id DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "extractlog: list")
	}
	defer rows.Close()

	var entries []ExtractEntry
	for rows.Next() {
		var e ExtractEntry
		var completedAt *time.Time
		var errStr *string
		if err := rows.Scan(&e.ID, &e.Name, &e.Kind, &e.ExtractDate, &e.Status, &e.StartedAt, &completedAt, &e.RowsSynced, &errStr); err != nil {
			return nil, eris.Wrap(err, "extractlog: scan entry")
		}
		e.CompletedAt = completedAt
		if errStr != nil {
			e.Error = *errStr
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
