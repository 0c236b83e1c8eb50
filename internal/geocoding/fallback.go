package geocoding

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/oca-cli/pkg/geocode"
)

// Fallback chunk defaults.
const (
	DefaultChunkSize   = 2500
	DefaultConcurrency = 4
)

// Fallback resolves records the primary pass left without coordinates by
// submitting them in chunks to a batch geocoder. Chunks are independent: a
// failed call marks only that chunk's records.
type Fallback struct {
	Client      geocode.BatchGeocoder
	ChunkSize   int    // default 2500, at most geocode.CensusMaxBatch
	Concurrency int    // concurrent chunk calls, default 4
	WorkDir     string // temp CSVs; os.TempDir() when empty
}

// Candidates returns the records with no coordinates and a house number.
func Candidates(records []Record) []Record {
	var out []Record
	for _, r := range records {
		if r.Outcome() != Resolved && strings.TrimSpace(r.HouseNumber) != "" {
			out = append(out, r)
		}
	}
	return out
}

// Chunk splits records into consecutive slices of at most size records.
func Chunk(records []Record, size int) [][]Record {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]Record
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		chunks = append(chunks, records[start:end])
	}
	return chunks
}

func (f *Fallback) chunkSize() int {
	switch {
	case f.ChunkSize <= 0:
		return DefaultChunkSize
	case f.ChunkSize > geocode.CensusMaxBatch:
		return geocode.CensusMaxBatch
	default:
		return f.ChunkSize
	}
}

// ResolveAll geocodes the candidates among records and returns them, one
// output row per candidate, in candidate order.
func (f *Fallback) ResolveAll(ctx context.Context, records []Record) ([]Record, error) {
	candidates := Candidates(records)
	if len(candidates) == 0 {
		return nil, nil
	}
	dir := f.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "geocoding: create work dir")
	}

	concurrency := f.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	chunks := Chunk(candidates, f.chunkSize())

	log := zap.L().With(zap.String("component", "geocoding.fallback"))
	log.Info("fallback geocoding",
		zap.Int("candidates", len(candidates)),
		zap.Int("chunks", len(chunks)),
		zap.Int("concurrency", concurrency),
	)

	results := make([][]Record, len(chunks))
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			results[i] = f.resolveChunk(ctx, dir, i, chunk)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Record, 0, len(candidates))
	failed := 0
	for _, r := range results {
		for _, rec := range r {
			if rec.Status == StatusBatchFailed {
				failed++
			}
		}
		out = append(out, r...)
	}
	log.Info("fallback geocoding complete", zap.Int("records", len(out)), zap.Int("batch_failed", failed))
	return out, nil
}

// resolveChunk never fails; a provider error marks every row batch_failed.
func (f *Fallback) resolveChunk(ctx context.Context, dir string, n int, chunk []Record) []Record {
	log := zap.L().With(zap.String("component", "geocoding.fallback"), zap.Int("chunk", n))

	out := make([]Record, len(chunk))
	copy(out, chunk)

	matches, err := f.submit(ctx, dir, chunk)
	if err != nil {
		log.Warn("batch call failed", zap.Int("records", len(chunk)), zap.Error(err))
		for i := range out {
			out[i].Status = StatusBatchFailed
		}
		return out
	}

	for _, m := range matches {
		i, err := strconv.Atoi(m.ID)
		if err != nil || i < 0 || i >= len(out) {
			continue
		}
		if m.Match {
			out[i].Status = StatusMatch
			out[i].Lat = m.Lat
			out[i].Lon = m.Lon
		} else {
			out[i].Status = StatusNoMatch
		}
		out[i].Msg2 = m.MatchType
	}
	return out
}

// submit writes the chunk to a temp CSV, calls the batch geocoder and
// removes the file.
func (f *Fallback) submit(ctx context.Context, dir string, chunk []Record) ([]geocode.BatchMatch, error) {
	path := filepath.Join(dir, "chunk-"+uuid.NewString()+".csv")
	defer os.Remove(path) //nolint:errcheck

	if err := writeChunk(path, chunk); err != nil {
		return nil, err
	}
	return f.Client.AddressBatch(ctx, path)
}

// writeChunk writes id, "house street", two blank columns and postal code.
// The id is the row's position in the chunk.
func writeChunk(path string, chunk []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "geocoding: create chunk file")
	}
	defer file.Close() //nolint:errcheck

	w := csv.NewWriter(file)
	for i, r := range chunk {
		street := strings.TrimSpace(r.HouseNumber + " " + r.StreetName)
		if err := w.Write([]string{strconv.Itoa(i), street, "", "", r.PostalCode}); err != nil {
			return eris.Wrap(err, "geocoding: write chunk row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "geocoding: flush chunk file")
	}
	return eris.Wrap(file.Close(), "geocoding: close chunk file")
}
