// Package addrparse splits free-text US street addresses into labelled
// tokens. Labels follow the usaddress vocabulary (AddressNumber, StreetName,
// StreetNamePostType, PlaceName, ZipCode, ...) so downstream code can select
// components by label prefix.
package addrparse

import (
	"regexp"
	"strings"
)

// Label names a component of an address.
type Label string

// Labels assigned by Tag.
const (
	AddressNumber             Label = "AddressNumber"
	AddressNumberSuffix       Label = "AddressNumberSuffix"
	StreetNamePreDirectional  Label = "StreetNamePreDirectional"
	StreetNamePreType         Label = "StreetNamePreType"
	StreetName                Label = "StreetName"
	StreetNamePostType        Label = "StreetNamePostType"
	StreetNamePostDirectional Label = "StreetNamePostDirectional"
	OccupancyType             Label = "OccupancyType"
	OccupancyIdentifier       Label = "OccupancyIdentifier"
	USPSBoxType               Label = "USPSBoxType"
	USPSBoxID                 Label = "USPSBoxID"
	PlaceName                 Label = "PlaceName"
	StateName                 Label = "StateName"
	ZipCode                   Label = "ZipCode"
)

// Token is one word of the input with its label.
type Token struct {
	Text  string
	Label Label
}

// Components holds the parts needed to geocode an address.
type Components struct {
	HouseNumber string
	StreetName  string
	Tokens      []Token
}

var (
	houseNumberRe = regexp.MustCompile(`^\d+[A-Z]?(-\d+[A-Z]?)?$`)
	fractionRe    = regexp.MustCompile(`^\d+/\d+$`)
	zipRe         = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	splitRe       = regexp.MustCompile(`[\s]+`)
)

var directionals = set("N", "S", "E", "W", "NE", "NW", "SE", "SW",
	"NORTH", "SOUTH", "EAST", "WEST", "NORTHEAST", "NORTHWEST", "SOUTHEAST", "SOUTHWEST")

var streetTypes = set("ST", "STREET", "AVE", "AV", "AVENUE", "RD", "ROAD", "BLVD", "BOULEVARD",
	"PL", "PLACE", "DR", "DRIVE", "LN", "LANE", "CT", "COURT", "TER", "TERRACE", "PKWY", "PARKWAY",
	"HWY", "HIGHWAY", "EXPY", "EXPRESSWAY", "TPKE", "TURNPIKE", "WAY", "SQ", "SQUARE", "CIR", "CIRCLE",
	"LOOP", "PLZ", "PLAZA", "ALY", "ALLEY", "CRES", "CRESCENT", "WALK", "ROW", "BROADWAY")

// Types that may lead the street name ("AVENUE J").
var preTypes = set("AVENUE", "AVE", "AV", "BEACH", "ROUTE", "HIGHWAY")

var occupancyTypes = set("APT", "APARTMENT", "UNIT", "STE", "SUITE", "FL", "FLOOR", "RM", "ROOM",
	"BSMT", "BASEMENT", "PH", "BLDG", "BUILDING", "#")

var states = set("AL", "AK", "AZ", "AR", "CA", "CO", "CT", "DE", "DC", "FL", "GA", "HI", "ID", "IL",
	"IN", "IA", "KS", "KY", "LA", "ME", "MD", "MA", "MI", "MN", "MS", "MO", "MT", "NE", "NV", "NH",
	"NJ", "NM", "NY", "NC", "ND", "OH", "OK", "OR", "PA", "RI", "SC", "SD", "TN", "TX", "UT", "VT",
	"VA", "WA", "WV", "WI", "WY", "PR")

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Parse tags addr and joins every token labelled AddressNumber* into the
// house number and every token labelled StreetName* into the street name.
// Repeated labels are joined in input order.
func Parse(addr string) Components {
	tokens := Tag(addr)
	c := Components{Tokens: tokens}
	var house, street []string
	for _, t := range tokens {
		switch {
		case strings.HasPrefix(string(t.Label), "AddressNumber"):
			house = append(house, t.Text)
		case strings.HasPrefix(string(t.Label), "StreetName"):
			street = append(street, t.Text)
		}
	}
	c.HouseNumber = strings.Join(house, " ")
	c.StreetName = strings.Join(street, " ")
	return c
}

// Tag labels every word of addr. The first comma separated segment is the
// street line; later segments are occupancy, another street line, or
// place, state and ZIP code.
func Tag(addr string) []Token {
	segments := strings.Split(strings.ToUpper(addr), ",")
	var out []Token
	for i, seg := range segments {
		words := fields(seg)
		switch {
		case len(words) == 0:
		case i == 0:
			out = append(out, tagStreetLine(words)...)
		case occupancyTypes[words[0]] && !trailingLocality(words):
			occ, rest := tagOccupancy(words)
			out = append(out, occ...)
			out = append(out, tagLocality(rest, hasLabel(out, PlaceName))...)
		case len(words) > 1 && houseNumberRe.MatchString(words[0]) && !zipRe.MatchString(words[0]):
			out = append(out, tagStreetLine(words)...)
		default:
			out = append(out, tagLocality(words, hasLabel(out, PlaceName))...)
		}
	}
	return out
}

func fields(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var words []string
	for _, w := range splitRe.Split(s, -1) {
		w = strings.Trim(w, ".;")
		if w == "" {
			continue
		}
		// "#4B" is an occupancy marker glued to its identifier.
		if strings.HasPrefix(w, "#") && len(w) > 1 {
			words = append(words, "#", w[1:])
			continue
		}
		words = append(words, w)
	}
	return words
}

func tagStreetLine(words []string) []Token {
	out := make([]Token, 0, len(words))
	i := 0

	if len(words) > 1 && (words[0] == "PO" || words[0] == "P.O") && words[1] == "BOX" {
		out = append(out, Token{words[0] + " " + words[1], USPSBoxType})
		i = 2
		if i < len(words) {
			out = append(out, Token{words[i], USPSBoxID})
			i++
		}
		return append(out, tagLocality(words[i:], false)...)
	}

	if houseNumberRe.MatchString(words[i]) {
		out = append(out, Token{words[i], AddressNumber})
		i++
		if i < len(words) && fractionRe.MatchString(words[i]) {
			out = append(out, Token{words[i], AddressNumberSuffix})
			i++
		}
	}

	// The street ends at the first occupancy marker.
	end := len(words)
	for j := i + 1; j < len(words); j++ {
		if occupancyTypes[words[j]] {
			end = j
			break
		}
	}

	// Without commas the locality trails the last street type.
	locality := end
	for j := end - 1; j > i; j-- {
		if !streetTypes[words[j]] {
			continue
		}
		locality = j + 1
		if locality < end && directionals[words[locality]] {
			locality++
		}
		break
	}
	if !trailingLocality(words[locality:end]) {
		locality = end
	}

	out = append(out, tagStreet(words[i:locality])...)
	out = append(out, tagLocality(words[locality:end], false)...)
	if end < len(words) {
		occ, rest := tagOccupancy(words[end:])
		out = append(out, occ...)
		out = append(out, tagLocality(rest, hasLabel(out, PlaceName))...)
	}
	return out
}

// tagOccupancy labels a leading occupancy type and its identifier.
func tagOccupancy(words []string) ([]Token, []string) {
	out := []Token{{words[0], OccupancyType}}
	if len(words) > 1 {
		out = append(out, Token{words[1], OccupancyIdentifier})
		return out, words[2:]
	}
	return out, nil
}

// trailingLocality reports whether words look like "CITY ST 12345".
func trailingLocality(words []string) bool {
	if len(words) == 0 {
		return false
	}
	last := words[len(words)-1]
	return zipRe.MatchString(last) || states[last]
}

func tagStreet(words []string) []Token {
	out := make([]Token, 0, len(words))
	if len(words) == 0 {
		return out
	}
	start, end := 0, len(words)

	if end-start > 1 && directionals[words[start]] {
		out = append(out, Token{words[start], StreetNamePreDirectional})
		start++
	}
	if end-start > 1 && preTypes[words[start]] && !streetTypes[words[end-1]] {
		out = append(out, Token{words[start], StreetNamePreType})
		start++
	}

	var tail []Token
	if end-start > 1 && directionals[words[end-1]] && streetTypes[words[end-2]] {
		tail = append([]Token{{words[end-1], StreetNamePostDirectional}}, tail...)
		end--
	}
	if end-start > 1 && streetTypes[words[end-1]] {
		tail = append([]Token{{words[end-1], StreetNamePostType}}, tail...)
		end--
	}

	for _, w := range words[start:end] {
		out = append(out, Token{w, StreetName})
	}
	return append(out, tail...)
}

func tagLocality(words []string, placeSeen bool) []Token {
	out := make([]Token, 0, len(words))
	for i, w := range words {
		switch {
		case zipRe.MatchString(w):
			out = append(out, Token{w, ZipCode})
		case states[w] && (placeSeen || i > 0):
			out = append(out, Token{w, StateName})
		default:
			out = append(out, Token{w, PlaceName})
			placeSeen = true
		}
	}
	return out
}

func hasLabel(tokens []Token, l Label) bool {
	for _, t := range tokens {
		if t.Label == l {
			return true
		}
	}
	return false
}
