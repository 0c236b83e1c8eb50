package geocoding

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Pipeline runs the geocoding stages in order. Either stage may be nil.
type Pipeline struct {
	Primary  *Primary
	Fallback *Fallback
	Fields   []string // address fields parsed when Primary is nil
}

// Stats summarises a pipeline run.
type Stats struct {
	Input      int
	Output     int
	Resolved   int
	Unresolved int
	Failed     int
	Elapsed    time.Duration
}

// Run resolves records and returns the merged result. Stage faults are
// recorded on the affected records; only an unknown address field or a
// fallback setup error is returned.
func (p *Pipeline) Run(ctx context.Context, records []Record) ([]Record, Stats, error) {
	if err := p.checkFields(); err != nil {
		return nil, Stats{}, err
	}
	start := time.Now()
	log := zap.L().With(zap.String("component", "geocoding.pipeline"))

	var primary, current []Record
	if p.Primary != nil {
		primary = p.Primary.ResolveAll(ctx, records)
		current = primary
	} else {
		log.Info("primary geocoder not configured, skipping")
		current = ParseAll(records, p.Fields)
	}

	var fallback []Record
	if p.Fallback != nil {
		var err error
		fallback, err = p.Fallback.ResolveAll(ctx, current)
		if err != nil {
			return nil, Stats{}, err
		}
	} else {
		log.Info("fallback geocoder not configured, skipping")
	}

	merged := Merge(records, primary, fallback)
	stats := Stats{Input: len(records), Output: len(merged), Elapsed: time.Since(start)}
	for _, r := range merged {
		switch r.Outcome() {
		case Resolved:
			stats.Resolved++
		case Failed:
			stats.Failed++
		default:
			stats.Unresolved++
		}
	}
	log.Info("geocoding complete",
		zap.Int("input", stats.Input),
		zap.Int("output", stats.Output),
		zap.Int("resolved", stats.Resolved),
		zap.Int("unresolved", stats.Unresolved),
		zap.Int("failed", stats.Failed),
		zap.Duration("elapsed", stats.Elapsed),
	)
	return merged, stats, nil
}

func (p *Pipeline) checkFields() error {
	fields := p.Fields
	if p.Primary != nil {
		fields = append(append([]string(nil), fields...), p.Primary.Fields...)
	}
	for _, f := range fields {
		if !IsField(f) {
			return eris.Errorf("geocoding: unknown address field %q", f)
		}
	}
	return nil
}
