// Package reconcile replays ordered extract files into the store with
// purge-then-insert semantics per case and a staging merge per file.
package reconcile

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/extract"
	"github.com/sells-group/oca-cli/internal/fetcher"
	"github.com/sells-group/oca-cli/internal/oca"
	"github.com/sells-group/oca-cli/internal/store"
)

// Opener yields the XML payload of one extract. The caller closes the reader.
type Opener interface {
	Open(ctx context.Context, e oca.Extract) (io.ReadCloser, error)
}

// Restorer restores a baseline. It reports false when none exists.
type Restorer interface {
	Restore(ctx context.Context) (bool, error)
}

// Checkpointer saves the store state after a successful run.
type Checkpointer interface {
	Export(ctx context.Context) error
}

// Options configures an Engine. Both hooks are optional.
type Options struct {
	Baseline   Restorer
	Checkpoint Checkpointer
	Namespace  string // XML namespace of case records, extract.Namespace when empty
}

// Engine replays extract files into a Store.
type Engine struct {
	store      store.Store
	opener     Opener
	mapper     *oca.Mapper
	baseline   Restorer
	checkpoint Checkpointer
}

// New creates an Engine.
func New(st store.Store, opener Opener, opts Options) *Engine {
	ns := opts.Namespace
	if ns == "" {
		ns = extract.Namespace
	}
	return &Engine{
		store:      st,
		opener:     opener,
		mapper:     oca.NewMapper(ns),
		baseline:   opts.Baseline,
		checkpoint: opts.Checkpoint,
	}
}

// FileResult summarises the replay of one extract.
type FileResult struct {
	Extract oca.Extract
	Staged  bool
	Cases   int
	Deletes int
	Rows    int64
	Elapsed time.Duration
}

// Result summarises a run.
type Result struct {
	Files    []FileResult
	Restored bool
}

// Rows returns the total rows inserted across files.
func (r *Result) Rows() int64 {
	var n int64
	for _, f := range r.Files {
		n += f.Rows
	}
	return n
}

// Run replays extracts in the order given; callers sort them with
// oca.SortExtracts. The first file writes the main tables directly and every
// later file goes through staging. Any store error aborts the run with the
// current file rolled back, and every started extract is logged as failed.
func (e *Engine) Run(ctx context.Context, extracts []oca.Extract) (*Result, error) {
	log := zap.L().With(zap.String("component", "reconcile.engine"))
	res := &Result{}

	if len(extracts) == 0 {
		log.Info("no new extracts")
		return res, nil
	}

	restored, err := e.prepareBaseline(ctx)
	if err != nil {
		return res, err
	}
	res.Restored = restored

	var logIDs []int64
	fail := func(err error) (*Result, error) {
		for _, id := range logIDs {
			if logErr := e.store.FailExtract(context.WithoutCancel(ctx), id, err.Error()); logErr != nil {
				log.Error("failed to record extract failure", zap.Int64("log_id", id), zap.Error(logErr))
			}
		}
		return res, err
	}

	for i, ex := range extracts {
		if err := ctx.Err(); err != nil {
			return fail(eris.Wrap(err, "reconcile: cancelled"))
		}

		id, err := e.store.StartExtract(ctx, ex)
		if err != nil {
			return fail(eris.Wrapf(err, "reconcile: start log for %s", ex.Name))
		}
		logIDs = append(logIDs, id)

		fr, err := e.replayFile(ctx, ex, i > 0)
		if err != nil {
			log.Error("extract replay failed", zap.String("extract", ex.Name), zap.Error(err))
			return fail(err)
		}
		res.Files = append(res.Files, fr)
		log.Info("extract replayed",
			zap.String("extract", ex.Name),
			zap.Bool("staged", fr.Staged),
			zap.Int("cases", fr.Cases),
			zap.Int("deletes", fr.Deletes),
			zap.Int64("rows", fr.Rows),
			zap.Duration("elapsed", fr.Elapsed),
		)
	}

	if err := e.store.RefreshDerived(ctx); err != nil {
		return fail(eris.Wrap(err, "reconcile: refresh derived tables"))
	}
	if e.checkpoint != nil {
		if err := e.checkpoint.Export(ctx); err != nil {
			return fail(eris.Wrap(err, "reconcile: checkpoint"))
		}
	}

	for i, id := range logIDs {
		if err := e.store.CompleteExtract(ctx, id, res.Files[i].Rows); err != nil {
			return res, eris.Wrapf(err, "reconcile: complete log for %s", res.Files[i].Extract.Name)
		}
	}

	log.Info("reconcile run complete",
		zap.Int("files", len(res.Files)),
		zap.Int64("rows", res.Rows()),
		zap.Bool("restored", res.Restored),
	)
	return res, nil
}

// prepareBaseline restores the snapshot when one exists. Without one, a
// store that has never completed an extract is reset to empty tables and a
// store with history is kept as its own baseline.
func (e *Engine) prepareBaseline(ctx context.Context) (bool, error) {
	if e.baseline != nil {
		ok, err := e.baseline.Restore(ctx)
		if err != nil {
			return false, eris.Wrap(err, "reconcile: restore baseline")
		}
		if ok {
			return true, nil
		}
	}

	done, err := e.store.ProcessedExtracts(ctx)
	if err != nil {
		return false, eris.Wrap(err, "reconcile: read extract log")
	}
	if len(done) == 0 {
		if err := e.store.Reset(ctx); err != nil {
			return false, eris.Wrap(err, "reconcile: reset tables")
		}
	}
	return false, nil
}

// replayFile runs one extract inside one file transaction.
func (e *Engine) replayFile(ctx context.Context, ex oca.Extract, staged bool) (fr FileResult, err error) {
	fr = FileResult{Extract: ex, Staged: staged}
	start := time.Now()

	rc, err := e.opener.Open(ctx, ex)
	if err != nil {
		return fr, eris.Wrapf(err, "reconcile: open %s", ex.Name)
	}
	defer rc.Close() //nolint:errcheck

	ftx, err := e.store.BeginFile(ctx, staged)
	if err != nil {
		return fr, eris.Wrapf(err, "reconcile: begin %s", ex.Name)
	}
	defer func() {
		if err != nil {
			if rbErr := ftx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
				zap.L().Error("reconcile: rollback failed", zap.String("extract", ex.Name), zap.Error(rbErr))
			}
		}
	}()

	_, err = fetcher.EachXML(ctx, rc, "Index", func(n extract.Node) error {
		deleted, rows, err := e.applyCase(ctx, ftx, &n)
		if err != nil {
			return err
		}
		fr.Cases++
		fr.Rows += rows
		if deleted {
			fr.Deletes++
		}
		return nil
	})
	if err != nil {
		return fr, eris.Wrapf(err, "reconcile: replay %s", ex.Name)
	}

	if err = ftx.Commit(ctx); err != nil {
		return fr, eris.Wrapf(err, "reconcile: commit %s", ex.Name)
	}
	fr.Elapsed = time.Since(start)
	return fr, nil
}

// applyCase purges the case, stops on a delete marker, and otherwise inserts
// the mapped row-set.
func (e *Engine) applyCase(ctx context.Context, ftx store.FileTx, n *extract.Node) (bool, int64, error) {
	id, err := e.mapper.CaseID(n)
	if err != nil {
		return false, 0, err
	}
	if err := ftx.PurgeCase(ctx, id); err != nil {
		return false, 0, eris.Wrapf(err, "reconcile: purge case %s", id)
	}
	if e.mapper.IsDelete(n) {
		return true, 0, nil
	}

	rs, err := e.mapper.Map(n)
	if err != nil {
		return false, 0, err
	}
	var total int64
	for _, b := range rs.Batches() {
		n, err := ftx.Insert(ctx, b.Table, b.Rows)
		if err != nil {
			return false, total, eris.Wrapf(err, "reconcile: insert case %s", id)
		}
		total += n
	}
	if want := int64(rs.RowCount()); total != want {
		return false, total, eris.Errorf("reconcile: case %s inserted %d of %d rows", id, total, want)
	}
	return false, total, nil
}
