package main

import (
	"context"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/fetcher"
	"github.com/sells-group/oca-cli/internal/objstore"
	"github.com/sells-group/oca-cli/internal/reconcile"
	"github.com/sells-group/oca-cli/internal/resilience"
	"github.com/sells-group/oca-cli/internal/snapshot"
	"github.com/sells-group/oca-cli/internal/store"
)

var ingestNoSnapshot bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Replay new extract archives into the store",
	Long:  "Lists the source directory, replays every extract not yet in the extract log in date order, and checkpoints a snapshot of the tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		objects, err := initObjects(ctx)
		if err != nil {
			return err
		}
		src, err := initSource()
		if err != nil {
			return err
		}

		_, err = runIngest(ctx, st, objects, src)
		return err
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestNoSnapshot, "no-snapshot", false, "skip snapshot restore and checkpoint")
	rootCmd.AddCommand(ingestCmd)
}

// runIngest replays the pending extracts offered by src.
func runIngest(ctx context.Context, st store.Store, objects objstore.Store, src fetcher.Source) (*reconcile.Result, error) {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("run_id", uuid.NewString()))

	pattern, err := regexp.Compile(cfg.Source.Pattern)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: compile source pattern")
	}

	retry := retryConfig()
	retry.OnRetry = resilience.RetryLogger("ingest", "list")
	names, err := resilience.DoVal(ctx, retry, src.List)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: list source")
	}

	pending, err := reconcile.Pending(ctx, st, names, pattern)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		log.Info("store is up to date")
		return &reconcile.Result{}, nil
	}

	layout := objectLayout()
	var opts reconcile.Options
	if cfg.Ingest.Snapshot && !ingestNoSnapshot {
		name := cfg.Ingest.SnapshotName
		if name == "" {
			name = snapshot.DefaultName
		}
		snap := &snapshot.Snapshotter{
			Store:   st,
			Objects: objects,
			Key:     layout.PrivateKey(name),
			TempDir: cfg.Ingest.TempDir,
		}
		opts.Baseline = snap
		opts.Checkpoint = snap
	}

	opener := &reconcile.ArchiveOpener{
		Source:  src,
		Objects: objects,
		Layout:  layout,
		TempDir: cfg.Ingest.TempDir,
		Payload: cfg.Source.PayloadName,
		Retry:   retryConfig(),
	}

	log.Info("ingesting extracts", zap.Int("pending", len(pending)))
	res, err := reconcile.New(st, opener, opts).Run(ctx, pending)
	if err != nil {
		return res, eris.Wrap(err, "ingest")
	}
	log.Info("ingest complete",
		zap.Int("files", len(res.Files)),
		zap.Int64("rows", res.Rows()),
		zap.Bool("restored", res.Restored),
	)
	return res, nil
}
