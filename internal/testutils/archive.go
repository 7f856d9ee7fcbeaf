// Package testutils provides shared test infrastructure: an in-process
// stand-in for the remote archive and, behind the integration build tag,
// containerised object storage.
package testutils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oloapinivad/CDS-retriever/internal/codec/codectest"
	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	cdshttp "github.com/oloapinivad/CDS-retriever/internal/http"
)

// Call records one request served by FakeArchive.
type Call struct {
	Kind    string
	Request dataset.Request
	Target  string
}

// FakeArchive serves requests by writing codectest timestamp files with
// exactly the steps the request asks for.
type FakeArchive struct {
	mu       sync.Mutex
	calls    []Call
	flaky    map[string]int
	broken   map[string]error
	short    map[string]bool
	corrupt  map[string]int
	attempts map[string]int
}

// NewFakeArchive returns an archive that serves every request successfully.
func NewFakeArchive() *FakeArchive {
	return &FakeArchive{
		flaky:    make(map[string]int),
		broken:   make(map[string]error),
		short:    make(map[string]bool),
		corrupt:  make(map[string]int),
		attempts: make(map[string]int),
	}
}

// Key identifies a request by variable, year and months, e.g.
// "geopotential/1990/01-02".
func Key(variable string, year int, months ...string) string {
	return variable + "/" + strconv.Itoa(year) + "/" + strings.Join(months, "-")
}

// KeyOf is the key of req.
func KeyOf(req dataset.Request) string {
	return req.Variable + "/" + req.Year + "/" + strings.Join(req.Month, "-")
}

// Flaky makes the first n attempts of key fail with a transient error.
func (a *FakeArchive) Flaky(key string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flaky[key] = n
}

// Broken makes every attempt of key fail with err.
func (a *FakeArchive) Broken(key string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.broken[key] = err
}

// Short makes key deliver one step less than requested.
func (a *FakeArchive) Short(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.short[key] = true
}

// Corrupt makes the first n deliveries of key undecodable.
func (a *FakeArchive) Corrupt(key string, n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.corrupt[key] = n
}

// Calls returns the requests served or attempted so far.
func (a *FakeArchive) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Call(nil), a.calls...)
}

// Attempts returns how many times key was requested.
func (a *FakeArchive) Attempts(key string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.attempts[key]
}

// Retrieve implements the archive used by the retrieval engine.
func (a *FakeArchive) Retrieve(ctx context.Context, kind string, req dataset.Request, target string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := KeyOf(req)

	a.mu.Lock()
	a.calls = append(a.calls, Call{Kind: kind, Request: req, Target: target})
	a.attempts[key]++
	if err := a.broken[key]; err != nil {
		a.mu.Unlock()
		return 0, err
	}
	if a.flaky[key] > 0 {
		a.flaky[key]--
		a.mu.Unlock()
		return 0, &cdshttp.TransientTransferError{Op: "download", URL: "https://archive.test/" + key, Err: fmt.Errorf("connection reset by peer")}
	}
	corrupt := a.corrupt[key] > 0
	if corrupt {
		a.corrupt[key]--
	}
	short := a.short[key]
	a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}
	if corrupt {
		if err := codectest.WriteCorrupt(target); err != nil {
			return 0, err
		}
		return statSize(target)
	}

	series, err := Timesteps(req)
	if err != nil {
		return 0, err
	}
	if short && len(series) > 0 {
		series = series[:len(series)-1]
	}
	if err := codectest.WriteTimes(target, series); err != nil {
		return 0, err
	}
	return statSize(target)
}

// Timesteps expands a request into the timestamps the archive would deliver.
// Days that do not exist in a month are dropped.
func Timesteps(req dataset.Request) ([]time.Time, error) {
	year, err := strconv.Atoi(req.Year)
	if err != nil {
		return nil, fmt.Errorf("year %q: %w", req.Year, err)
	}
	var series []time.Time
	for _, mm := range req.Month {
		month, err := strconv.Atoi(mm)
		if err != nil {
			return nil, fmt.Errorf("month %q: %w", mm, err)
		}
		for _, dd := range req.Day {
			day, err := strconv.Atoi(dd)
			if err != nil {
				return nil, fmt.Errorf("day %q: %w", dd, err)
			}
			if time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Month() != time.Month(month) {
				continue
			}
			for _, hhmm := range req.Time {
				clock, err := time.Parse("15:04", hhmm)
				if err != nil {
					return nil, fmt.Errorf("time %q: %w", hhmm, err)
				}
				series = append(series, time.Date(year, time.Month(month), day, clock.Hour(), clock.Minute(), 0, 0, time.UTC))
			}
		}
	}
	return series, nil
}

func statSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
