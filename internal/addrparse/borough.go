package addrparse

import (
	"regexp"
	"strings"
)

// NYC borough names as accepted by Geosupport.
const (
	Manhattan    = "MANHATTAN"
	Bronx        = "BRONX"
	Brooklyn     = "BROOKLYN"
	Queens       = "QUEENS"
	StatenIsland = "STATEN ISLAND"
)

type boroughMatcher struct {
	borough string
	exact   *regexp.Regexp
	within  *regexp.Regexp
}

func newBoroughMatcher(borough string, exact, within []string) boroughMatcher {
	return boroughMatcher{
		borough: borough,
		exact:   regexp.MustCompile(`(?i)^\s*(?:` + strings.Join(exact, "|") + `)\s*$`),
		within:  regexp.MustCompile(`(?i)\b(?:` + strings.Join(within, "|") + `)\b`),
	}
}

// First match wins.
var boroughMatchers = []boroughMatcher{
	newBoroughMatcher(StatenIsland,
		[]string{`STATEN\s*ISLAND`, `RICHMOND`, `SI`, `S\.I\.?`},
		[]string{`STATEN ISLAND`, `STATEN ISLAN`, `STATEN ISALND`, `STATE ISLAND`}),
	newBoroughMatcher(Queens,
		[]string{`QUEENS`, `QUEEN`, `QN`, `LIC`, `L\.I\.C\.?`},
		[]string{`QUEENS`, `QUEENS VILLAGE`, `JAMAICA`, `SOUTH JAMAICA`, `JAMAICA ESTATES`, `KEW GARDENS`,
			`HOLLIS`, `ASTORIA`, `ST\.? ALBANS`, `SAINT ALBANS`, `RIDGEWOOD`, `SPRINGFIELD GARDENS`,
			`RICHMOND HILL`, `FAR ROCKAWAY`, `ROCKAWAY`, `ARVERNE`, `CORONA`, `WOODHAVEN`, `LAURELTON`,
			`FLUSHING`, `LONG ISLAND CITY`, `FOREST HILLS`, `WHITESTONE`, `ELMHURST`, `EAST ELMHURST`,
			`SUNNYSIDE`, `OZONE PARK`, `SOUTH OZONE PARK`, `REGO PARK`, `ROSEDALE`, `FRESH MEADOWS`,
			`BELLEROSE`, `MIDDLE VILLAGE`, `MASPETH`, `WOODSIDE`, `GLEN OAKS`, `GLENDALE`, `DOUGLASTON`,
			`LITTLE NECK`, `BRIARWOOD`, `JACKSON HEIGHTS`, `BAYSIDE`, `COLLEGE POINT`, `CAMBRIA HEIGHTS`,
			`HOWARD BEACH`, `LEFRAK CITY`, `OAKLAND GARDENS`, `BREEZY POINT`, `BROAD CHANNEL`}),
	newBoroughMatcher(Brooklyn,
		[]string{`BROOKLYN`, `KINGS`, `BK`},
		[]string{`BROOKLYN`, `BKLYN`, `BROOKYLN`, `BROKLYN`, `BROOKLN`, `CYPRESS HILLS`}),
	newBoroughMatcher(Bronx,
		[]string{`BRONX`, `BX`},
		[]string{`THE BRONX`, `BRONX`, `BRONXS`, `BRNOX`, `BRNX`, `PARKCHESTER`, `RIVERDALE`, `CITY ISLAND`}),
	newBoroughMatcher(Manhattan,
		[]string{`MANHATTAN`, `NEW\s*YORK`, `MN`, `NY`, `N\.Y\.?`},
		[]string{`MANHATTAN`, `NEW YORK`, `NEWYORK`, `NEW YORK CITY`, `HARLEM`, `MARBLE HILL`,
			`ROOSEVELT ISLAND`, `INWOOD`}),
}

// Borough maps a free-text place name to the NYC borough it names, or ""
// when no borough is recognised. Common misspellings and neighbourhood
// names are accepted.
func Borough(place string) string {
	if strings.TrimSpace(place) == "" {
		return ""
	}
	for _, m := range boroughMatchers {
		if m.within.MatchString(place) || m.exact.MatchString(place) {
			return m.borough
		}
	}
	return ""
}
