// Package codectest provides an in-memory stand-in for the external codec.
//
// Fake files are plain text with one RFC 3339 timestamp per line, so a test
// can build any time axis with WriteSeries and inspect results with
// ReadSeries.
package codectest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oloapinivad/CDS-retriever/internal/codec"
)

// Corrupt is file content the fake refuses to decode.
const Corrupt = "%%corrupt%%"

// Fake implements codec.Codec on timestamp files.
type Fake struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

var _ codec.Codec = (*Fake)(nil)

// Fail makes every subsequent call of op return err. A nil err clears it.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[string]error)
	}
	if err == nil {
		delete(f.fail, op)
		return
	}
	f.fail[op] = err
}

// Calls returns the operations invoked so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Count returns how often op was invoked.
func (f *Fake) Count(op string) int {
	n := 0
	for _, c := range f.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (f *Fake) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *Fake) CountSteps(ctx context.Context, path string) (int, error) {
	if err := f.record("ntime"); err != nil {
		return 0, err
	}
	series, err := ReadSeries(path)
	if err != nil {
		return 0, &codec.DecodeError{Op: "ntime", Path: path, Err: err}
	}
	return len(series), nil
}

func (f *Fake) Convert(ctx context.Context, in, out string) error {
	if err := f.record("copy"); err != nil {
		return err
	}
	series, err := ReadSeries(in)
	if err != nil {
		return &codec.DecodeError{Op: "copy", Path: in, Err: err}
	}
	return writeSeries(out, series)
}

func (f *Fake) Concat(ctx context.Context, inputs []string, out string) error {
	if err := f.record("cat"); err != nil {
		return err
	}
	var all []time.Time
	for _, in := range inputs {
		series, err := ReadSeries(in)
		if err != nil {
			return &codec.DecodeError{Op: "cat", Path: in, Err: err}
		}
		all = append(all, series...)
	}
	return writeSeries(out, all)
}

func (f *Fake) DayMean(ctx context.Context, in, out string) error {
	if err := f.record("daymean"); err != nil {
		return err
	}
	return reduce(in, out, "daymean", func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	})
}

func (f *Fake) MonMean(ctx context.Context, in, out string) error {
	if err := f.record("monmean"); err != nil {
		return err
	}
	return reduce(in, out, "monmean", func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	})
}

func (f *Fake) ShiftTime(ctx context.Context, shift time.Duration, in, out string) error {
	if err := f.record("shifttime"); err != nil {
		return err
	}
	series, err := ReadSeries(in)
	if err != nil {
		return &codec.DecodeError{Op: "shifttime", Path: in, Err: err}
	}
	for i := range series {
		series[i] = series[i].Add(shift)
	}
	return writeSeries(out, series)
}

func (f *Fake) SetMonthlyAxis(ctx context.Context, start time.Time, in, out string) error {
	if err := f.record("settaxis"); err != nil {
		return err
	}
	series, err := ReadSeries(in)
	if err != nil {
		return &codec.DecodeError{Op: "settaxis", Path: in, Err: err}
	}
	start = start.UTC()
	for i := range series {
		series[i] = start.AddDate(0, i, 0)
	}
	return writeSeries(out, series)
}

func (f *Fake) FirstTimestamp(ctx context.Context, path string) (time.Time, error) {
	if err := f.record("showtimestamp"); err != nil {
		return time.Time{}, err
	}
	series, err := ReadSeries(path)
	if err != nil || len(series) == 0 {
		return time.Time{}, &codec.DecodeError{Op: "showtimestamp", Path: path, Err: fmt.Errorf("no timestamps: %v", err)}
	}
	return series[0], nil
}

func reduce(in, out, op string, key func(time.Time) time.Time) error {
	series, err := ReadSeries(in)
	if err != nil {
		return &codec.DecodeError{Op: op, Path: in, Err: err}
	}
	seen := make(map[time.Time]bool)
	var reduced []time.Time
	for _, t := range series {
		k := key(t)
		if !seen[k] {
			seen[k] = true
			reduced = append(reduced, k)
		}
	}
	sort.Slice(reduced, func(i, j int) bool { return reduced[i].Before(reduced[j]) })
	return writeSeries(out, reduced)
}

// WriteSeries writes n timestamps starting at start, step apart.
func WriteSeries(path string, start time.Time, step time.Duration, n int) error {
	series := make([]time.Time, n)
	for i := range series {
		series[i] = start.Add(time.Duration(i) * step)
	}
	return writeSeries(path, series)
}

// WriteMonths writes one timestamp per month of year, at day and hour.
func WriteMonths(path string, year, day, hour int) error {
	series := make([]time.Time, 12)
	for m := range series {
		series[m] = time.Date(year, time.Month(m+1), day, hour, 0, 0, 0, time.UTC)
	}
	return writeSeries(path, series)
}

// WriteTimes writes the given timestamps.
func WriteTimes(path string, series []time.Time) error {
	return writeSeries(path, series)
}

// WriteCorrupt writes a file the fake cannot decode.
func WriteCorrupt(path string) error {
	return os.WriteFile(path, []byte(Corrupt+"\n"), 0o644)
}

// ReadSeries parses a fake file.
func ReadSeries(path string) ([]time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var series []time.Time
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, line)
		if err != nil {
			return nil, fmt.Errorf("line %q: %w", line, err)
		}
		series = append(series, t)
	}
	return series, sc.Err()
}

func writeSeries(path string, series []time.Time) error {
	var b strings.Builder
	for _, t := range series {
		b.WriteString(t.UTC().Format(time.RFC3339))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
