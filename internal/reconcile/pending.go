package reconcile

import (
	"context"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/oca-cli/internal/oca"
	"github.com/sells-group/oca-cli/internal/store"
)

// Pending filters names down to recognised extracts matching pattern that the
// extract log has not completed, in replay order.
func Pending(ctx context.Context, st store.Store, names []string, pattern *regexp.Regexp) ([]oca.Extract, error) {
	log := zap.L().With(zap.String("component", "reconcile.pending"))

	var matched []string
	for _, n := range names {
		if pattern == nil || pattern.MatchString(n) {
			matched = append(matched, n)
		}
	}

	parsed, skipped := oca.ParseExtracts(matched)
	for _, s := range skipped {
		log.Debug("ignoring unrecognised file", zap.String("name", s))
	}

	done, err := st.ProcessedExtracts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: read extract log")
	}

	var pending []oca.Extract
	for _, e := range parsed {
		if !done[e.Name] {
			pending = append(pending, e)
		}
	}
	oca.SortExtracts(pending)
	log.Info("pending extracts", zap.Int("listed", len(names)), zap.Int("pending", len(pending)))
	return pending, nil
}
