package dataset

import (
	"regexp"
	"strings"
)

// LevelKind is the vertical coordinate family of a request.
type LevelKind string

const (
	// SingleLevels is used for surface fields.
	SingleLevels LevelKind = "single-levels"
	// PressureLevels is used for fields on isobaric surfaces.
	PressureLevels LevelKind = "pressure-levels"
)

// Surface is the level sentinel for surface fields.
const Surface = "sfc"

// PressureLevelTable lists the 37 ERA5 pressure levels in hPa, top-down from
// the surface.
var PressureLevelTable = []string{
	"1000", "975", "950", "925", "900", "875", "850", "825",
	"800", "775", "750", "700", "650", "600", "550", "500",
	"450", "400", "350", "300", "250", "225", "200", "175",
	"150", "125", "100", "70", "50", "30", "20", "10",
	"7", "5", "3", "2", "1",
}

// Named pressure-level subsets.
var namedSubsets = map[string][]string{
	"plev8": {"10", "50", "100", "250", "500", "700", "850", "1000"},
	"plev19": {
		"1000", "925", "850", "700", "600", "500", "400", "300",
		"250", "200", "150", "100", "70", "50", "30", "20",
		"10", "5", "1",
	},
	"plev37": {
		"1", "2", "3", "5", "7", "10", "20", "30",
		"50", "70", "100", "125", "150", "175", "200", "225",
		"250", "300", "350", "400", "450", "500", "550", "600",
		"650", "700", "750", "775", "800", "825", "850", "875",
		"900", "925", "950", "975", "1000",
	},
}

var levelTokenRe = regexp.MustCompile(`^(\d+)(hPa)?$`)

// LevelSpec is a resolved vertical level selection.
type LevelSpec struct {
	Kind   LevelKind
	Levels []string // empty for SingleLevels
}

// ResolveLevel turns a level specification into a LevelSpec. The single token
// "sfc" selects surface fields; a single named subset (plev8, plev19, plev37)
// expands to its levels; otherwise every token must be a member of the
// canonical table, with an optional "hPa" suffix.
func ResolveLevel(tokens []string) (LevelSpec, error) {
	if len(tokens) == 0 {
		return LevelSpec{}, &InvalidLevelError{Reason: "no level given"}
	}
	if len(tokens) == 1 {
		if tokens[0] == Surface {
			return LevelSpec{Kind: SingleLevels}, nil
		}
		if subset, ok := namedSubsets[tokens[0]]; ok {
			levels := make([]string, len(subset))
			copy(levels, subset)
			return LevelSpec{Kind: PressureLevels, Levels: levels}, nil
		}
	}

	levels := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == Surface {
			return LevelSpec{}, &InvalidLevelError{Token: tok, Reason: "surface cannot be mixed with pressure levels"}
		}
		m := levelTokenRe.FindStringSubmatch(tok)
		if m == nil || !inTable(m[1]) {
			return LevelSpec{}, &InvalidLevelError{Token: tok}
		}
		levels = append(levels, m[1])
	}
	return LevelSpec{Kind: PressureLevels, Levels: levels}, nil
}

// LevelToken is the level part of a canonical filename.
func LevelToken(tokens []string) string {
	return strings.Join(tokens, "-")
}

func inTable(level string) bool {
	for _, l := range PressureLevelTable {
		if l == level {
			return true
		}
	}
	return false
}
