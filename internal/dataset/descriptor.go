package dataset

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dataset names served by the archive.
const (
	ERA5     = "ERA5"
	ERA5Land = "ERA5-Land"
)

// FullGrid is the grid sentinel for the archive's native resolution.
const FullGrid = "full"

// Area is a bounding box in archive order: north, west, south, east.
// A nil or empty Area is the whole globe.
type Area []float64

// Global is the whole-globe area.
var Global Area

// IsGlobal reports whether a covers the whole globe.
func (a Area) IsGlobal() bool {
	return len(a) == 0
}

// Token is the area part of a canonical filename.
func (a Area) Token() string {
	parts := make([]string, len(a))
	for i, v := range a {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, "_")
}

// Descriptor fully determines the canonical filename and the request shape
// of a retrieval.
type Descriptor struct {
	Dataset   string
	Variable  string
	Frequency string
	Level     []string
	Grid      string
	Area      Area
}

// WithFrequency returns a copy of d at another frequency. It is used to name
// the daily and monthly products derived from sub-daily data.
func (d Descriptor) WithFrequency(freq string) Descriptor {
	d.Frequency = freq
	return d
}

// Period is the time coverage encoded in a filename.
type Period struct {
	First  int
	Last   int
	Merged bool
}

// Year is the period of a single per-year artifact.
func Year(y int) Period {
	return Period{First: y, Last: y}
}

// Span is the period of a merged archive covering first..last.
func Span(first, last int) Period {
	return Period{First: first, Last: last, Merged: true}
}

// YearRange is an inclusive range of years.
type YearRange struct {
	First int
	Last  int
}

// Empty reports whether the range is inverted.
func (r YearRange) Empty() bool {
	return r.First > r.Last
}

// Years lists the years of the range in order.
func (r YearRange) Years() []int {
	if r.Empty() {
		return nil
	}
	years := make([]int, 0, r.Last-r.First+1)
	for y := r.First; y <= r.Last; y++ {
		years = append(years, y)
	}
	return years
}

func (r YearRange) String() string {
	return fmt.Sprintf("%d-%d", r.First, r.Last)
}

// prefix is the canonical filename without its period.
func (d Descriptor) prefix() string {
	name := strings.Join([]string{d.Dataset, d.Variable, d.Frequency, d.Grid, LevelToken(d.Level)}, "_")
	if !d.Area.IsGlobal() {
		name += "_" + d.Area.Token()
	}
	return name
}

// CanonicalFilename builds the archive name of d for period p, without an
// extension. The period carries a second, hyphenated year only for merged
// monthly and daily-mean archives.
func CanonicalFilename(d Descriptor, p Period) string {
	period := strconv.Itoa(p.First)
	if p.Merged && IsCumulative(d.Frequency) {
		period += "-" + strconv.Itoa(p.Last)
	}
	return d.prefix() + "_" + period
}

// ArchivePattern matches the names of d's archive files with any period and
// the given extension (".nc", or "" for bare names).
func ArchivePattern(d Descriptor, ext string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(d.prefix()) + `_(\d{4})(?:-(\d{4}))?` + regexp.QuoteMeta(ext) + `$`)
}

// MergedPattern matches only the hyphenated, merged names of d.
func MergedPattern(d Descriptor, ext string) *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(d.prefix()) + `_(\d{4})-(\d{4})` + regexp.QuoteMeta(ext) + `$`)
}

// SpanOf extracts the first and last year covered by the names matching re.
// ok is false when nothing matches.
func SpanOf(re *regexp.Regexp, names []string) (span YearRange, ok bool) {
	for _, name := range names {
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		first, _ := strconv.Atoi(m[1])
		last := first
		if len(m) > 2 && m[2] != "" {
			last, _ = strconv.Atoi(m[2])
		}
		if !ok || first < span.First {
			span.First = first
		}
		if !ok || last > span.Last {
			span.Last = last
		}
		ok = true
	}
	return span, ok
}
