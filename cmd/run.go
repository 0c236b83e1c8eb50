package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runSkipGeocode bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ingest new extracts, export the tables and geocode addresses",
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

		res, err := runIngest(ctx, st, objects, src)
		if err != nil {
			return err
		}
		if len(res.Files) == 0 {
			zap.L().Info("no new extracts, nothing to export")
			return nil
		}

		if _, err := runExport(ctx, st, objects, objectLayout()); err != nil {
			return err
		}
		if runSkipGeocode {
			return nil
		}
		_, err = runGeocode(ctx, st, objects, "", "")
		return err
	},
}

func init() {
	runCmd.Flags().BoolVar(&runSkipGeocode, "skip-geocode", false, "stop after the CSV export")
	rootCmd.AddCommand(runCmd)
}
