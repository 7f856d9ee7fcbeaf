package dataset

import (
	"strconv"
	"strings"
)

// Request is the field set of one archive request. Grid, PressureLevel and
// Area are optional and omitted from the encoded request when empty.
type Request struct {
	ProductType   string    `json:"product_type"`
	Format        string    `json:"format"`
	Variable      string    `json:"variable"`
	Year          string    `json:"year"`
	Month         []string  `json:"month"`
	Day           []string  `json:"day"`
	Time          []string  `json:"time"`
	Grid          []string  `json:"grid,omitempty"`
	PressureLevel []string  `json:"pressure_level,omitempty"`
	Area          []float64 `json:"area,omitempty"`
}

// NewRequest assembles the request for one year (or a subset of its months)
// of r.
func NewRequest(r Resolved, year int, months []string) Request {
	req := Request{
		ProductType: r.Time.ProductType,
		Format:      "grib",
		Variable:    r.Descriptor.Variable,
		Year:        strconv.Itoa(year),
		Month:       months,
		Day:         r.Time.Days,
		Time:        r.Time.Times,
	}
	if g := r.Descriptor.Grid; g != FullGrid && g != "" {
		req.Grid = gridSteps(g)
	}
	if r.Level.Kind == PressureLevels {
		req.PressureLevel = r.Level.Levels
	}
	if !r.Descriptor.Area.IsGlobal() {
		req.Area = r.Descriptor.Area
	}
	return req
}

// gridSteps turns "2.5x2.5" into the archive's [lat, lon] step pair. A single
// step applies to both axes.
func gridSteps(grid string) []string {
	parts := strings.SplitN(grid, "x", 2)
	if len(parts) == 1 {
		return []string{parts[0], parts[0]}
	}
	return parts
}
