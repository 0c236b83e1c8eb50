package oca

import (
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// ExtractKind distinguishes full refreshes from deltas.
type ExtractKind int

const (
	// Initial is a full refresh for one filing year.
	Initial ExtractKind = iota
	// Incremental carries changes since the previous extract.
	Incremental
)

func (k ExtractKind) String() string {
	if k == Initial {
		return "initial"
	}
	return "incremental"
}

// Extract is one upstream archive, identified by its file name.
type Extract struct {
	Name      string
	Kind      ExtractKind
	FiledYear int
	Date      time.Time
}

var (
	initialRe = regexp.MustCompile(`Initial\.FiledIn(\d{4}).*?(\d{8})\.zip$`)
	incrRe    = regexp.MustCompile(`Incr.*?(\d{8})\.zip$`)
)

// DefaultPattern matches every archive name ParseExtract accepts.
const DefaultPattern = `(Initial\.FiledIn\d{4}|Incr).*\d{8}\.zip$`

// ParseExtract reads the kind, filing year and date encoded in an archive name.
func ParseExtract(name string) (Extract, error) {
	if m := initialRe.FindStringSubmatch(name); m != nil {
		year, _ := strconv.Atoi(m[1])
		d, err := time.Parse("20060102", m[2])
		if err != nil {
			return Extract{}, eris.Wrapf(err, "oca: parse date in %s", name)
		}
		return Extract{Name: name, Kind: Initial, FiledYear: year, Date: d}, nil
	}
	if m := incrRe.FindStringSubmatch(name); m != nil {
		d, err := time.Parse("20060102", m[1])
		if err != nil {
			return Extract{}, eris.Wrapf(err, "oca: parse date in %s", name)
		}
		return Extract{Name: name, Kind: Incremental, Date: d}, nil
	}
	return Extract{}, eris.Errorf("oca: unrecognized extract name %q", name)
}

// ParseExtracts parses every name, skipping those that do not follow the
// naming convention. Skipped names are returned separately.
func ParseExtracts(names []string) (parsed []Extract, skipped []string) {
	for _, n := range names {
		e, err := ParseExtract(n)
		if err != nil {
			skipped = append(skipped, n)
			continue
		}
		parsed = append(parsed, e)
	}
	return parsed, skipped
}

// SortExtracts orders extracts for replay: every Initial (by date, then
// filing year) before every Incremental (by date). Ties keep name order.
func SortExtracts(es []Extract) {
	sort.SliceStable(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if a.Kind != b.Kind {
			return a.Kind == Initial
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.FiledYear != b.FiledYear {
			return a.FiledYear < b.FiledYear
		}
		return a.Name < b.Name
	})
}
