package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/config"
	"github.com/sells-group/oca-cli/internal/geocoding"
	"github.com/sells-group/oca-cli/internal/objstore"
	"github.com/sells-group/oca-cli/internal/resilience"
	"github.com/sells-group/oca-cli/internal/store"
	"github.com/sells-group/oca-cli/pkg/geocode"
)

var (
	geocodeInput  string
	geocodeOutput string
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Geocode case addresses",
	Long: "Resolves every oca_addresses row through Geoclient, retries the misses in chunks against the Census batch geocoder, " +
		"and writes the merged table as CSV with a geom column.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var st store.Store
		if geocodeInput == "" {
			var err error
			st, err = openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
		}

		var objects objstore.Store
		if geocodeOutput == "" {
			var err error
			objects, err = initObjects(ctx)
			if err != nil {
				return err
			}
		}

		_, err := runGeocode(ctx, st, objects, geocodeInput, geocodeOutput)
		return err
	},
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeInput, "input", "", "address CSV to geocode instead of the store's oca_addresses")
	geocodeCmd.Flags().StringVar(&geocodeOutput, "output", "", "local output path instead of object storage")
	rootCmd.AddCommand(geocodeCmd)
}

// buildPipeline wires the configured geocoders. A blank Geoclient key
// disables the primary stage.
func buildPipeline(gc config.GeocodeConfig, retry resilience.RetryConfig) *geocoding.Pipeline {
	p := &geocoding.Pipeline{Fields: gc.AddressFields}

	if gc.Primary.Key != "" {
		opts := []geocode.Option{geocode.WithBaseURL(gc.Primary.BaseURL)}
		if gc.Primary.RateLimit > 0 {
			opts = append(opts, geocode.WithRateLimit(gc.Primary.RateLimit))
		}
		retry.OnRetry = resilience.RetryLogger("geocoding.primary", "geoclient")
		p.Primary = &geocoding.Primary{
			Geo:     geocode.NewGeoclient(gc.Primary.Key, opts...),
			Fields:  gc.AddressFields,
			Workers: gc.Primary.Workers,
			Retry:   retry,
		}
	}

	if gc.Fallback.Enabled {
		p.Fallback = &geocoding.Fallback{
			Client: geocode.NewCensusClient(
				geocode.WithBaseURL(gc.Fallback.URL),
				geocode.WithBenchmark(gc.Fallback.Benchmark),
				geocode.WithTimeout(time.Duration(gc.Fallback.TimeoutSecs)*time.Second),
			),
			ChunkSize:   gc.Fallback.ChunkSize,
			Concurrency: gc.Fallback.Concurrency,
			WorkDir:     gc.WorkDir,
		}
	}
	return p
}

// loadAddresses reads records from input when set, otherwise from the store.
func loadAddresses(ctx context.Context, st store.Store, input string) ([]geocoding.Record, error) {
	if input == "" {
		if st == nil {
			return nil, eris.New("geocode: no store and no input file")
		}
		return geocoding.LoadRecords(ctx, st)
	}
	f, err := os.Open(input)
	if err != nil {
		return nil, eris.Wrapf(err, "geocode: open %s", input)
	}
	defer f.Close() //nolint:errcheck
	return geocoding.ReadRecords(ctx, f)
}

// runGeocode resolves the addresses and writes the result to output, or to
// the private prefix of objects when output is blank.
func runGeocode(ctx context.Context, st store.Store, objects objstore.Store, input, output string) (geocoding.Stats, error) {
	log := zap.L().With(zap.String("component", "geocode"))

	records, err := loadAddresses(ctx, st, input)
	if err != nil {
		return geocoding.Stats{}, err
	}
	log.Info("addresses loaded", zap.Int("records", len(records)))

	merged, stats, err := buildPipeline(cfg.Geocode, retryConfig()).Run(ctx, records)
	if err != nil {
		return stats, eris.Wrap(err, "geocode")
	}

	path := output
	if path == "" {
		dir, cleanup, err := workDir("oca-geocode-*")
		if err != nil {
			return stats, eris.Wrap(err, "geocode")
		}
		defer cleanup()
		path = filepath.Join(dir, cfg.Geocode.OutputName)
	}

	if err := writeGeocoded(path, merged); err != nil {
		return stats, err
	}

	if output == "" {
		key := objectLayout().PrivateKey(cfg.Geocode.OutputName)
		if err := objects.PutFile(ctx, key, path); err != nil {
			return stats, eris.Wrapf(err, "geocode: upload %s", key)
		}
		log.Info("geocoded addresses uploaded", zap.String("key", key), zap.Int("rows", len(merged)))
	} else {
		log.Info("geocoded addresses written", zap.String("path", path), zap.Int("rows", len(merged)))
	}
	return stats, nil
}

func writeGeocoded(path string, records []geocoding.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "geocode: create %s", path)
	}
	if _, err := geocoding.WriteCSV(f, records); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrap(err, "geocode: write output")
	}
	return eris.Wrap(f.Close(), "geocode: close output")
}
