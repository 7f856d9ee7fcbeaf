package update

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	"github.com/oloapinivad/CDS-retriever/internal/store"
)

type fakeLister map[string][]string

func (f fakeLister) List(ctx context.Context, prefix string) ([]string, error) {
	return f[prefix], nil
}

type failingLister struct{ err error }

func (f failingLister) List(context.Context, string) ([]string, error) { return nil, f.err }

func clock(year int) func() time.Time {
	return func() time.Time { return time.Date(year, 3, 15, 12, 0, 0, 0, time.UTC) }
}

func descriptor(freq string) dataset.Descriptor {
	return dataset.Descriptor{
		Dataset:   dataset.ERA5,
		Variable:  "geopotential",
		Frequency: freq,
		Level:     []string{"500hPa"},
		Grid:      "2.5x2.5",
	}
}

func name(d dataset.Descriptor, p dataset.Period) string {
	return dataset.CanonicalFilename(d, p) + store.Ext
}

func TestPlanProposesNextRange(t *testing.T) {
	d := descriptor(dataset.Monthly)
	lister := fakeLister{store.Dir(d): {
		name(d, dataset.Span(1990, 2005)),
		name(d, dataset.Span(1990, 2005)) + store.ManifestSuffix,
		"README.txt",
	}}

	plan, err := (&Planner{Store: lister, Now: clock(2024)}).Plan(context.Background(), d, dataset.YearRange{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.Found || plan.Archived != (dataset.YearRange{First: 1990, Last: 2005}) {
		t.Errorf("archived = %v found=%v", plan.Archived, plan.Found)
	}
	if plan.Years != (dataset.YearRange{First: 2006, Last: 2023}) {
		t.Errorf("proposed = %v, want 2006-2023", plan.Years)
	}
	if !plan.Retrieve || !plan.Postproc || plan.NothingToFetch {
		t.Errorf("unexpected switches %+v", plan)
	}
}

func TestPlanUsesPerYearFiles(t *testing.T) {
	d := descriptor(dataset.SixHourly)
	lister := fakeLister{store.Dir(d): {
		name(d, dataset.Year(2001)),
		name(d, dataset.Year(2003)),
		name(d, dataset.Year(2002)),
	}}
	plan, err := (&Planner{Store: lister, Now: clock(2010)}).Plan(context.Background(), d, dataset.YearRange{})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Years != (dataset.YearRange{First: 2004, Last: 2009}) {
		t.Errorf("proposed = %v, want 2004-2009", plan.Years)
	}
}

func TestPlanUpToDate(t *testing.T) {
	tests := []struct {
		freq     string
		postproc bool
	}{
		{dataset.Monthly, false},
		{dataset.Hourly, true},
		{dataset.SixHourly, true},
		{dataset.Instantaneous, true},
	}
	for _, tt := range tests {
		d := descriptor(tt.freq)
		lister := fakeLister{store.Dir(d): {name(d, dataset.Span(1990, 2023))}}
		if !dataset.IsMonthlyClass(tt.freq) {
			lister = fakeLister{store.Dir(d): {name(d, dataset.Year(1990)), name(d, dataset.Year(2023))}}
		}

		plan, err := (&Planner{Store: lister, Now: clock(2024)}).Plan(context.Background(), d, dataset.YearRange{})
		if err != nil {
			t.Fatalf("%s: %v", tt.freq, err)
		}
		if !plan.NothingToFetch || plan.Retrieve {
			t.Errorf("%s: retrieval must be disabled: %+v", tt.freq, plan)
		}
		if plan.Postproc != tt.postproc {
			t.Errorf("%s: postproc = %v, want %v", tt.freq, plan.Postproc, tt.postproc)
		}
		if tt.postproc && plan.PostprocYears != (dataset.YearRange{First: 1990, Last: 2023}) {
			t.Errorf("%s: postproc years = %v", tt.freq, plan.PostprocYears)
		}
	}
}

func TestPlanIgnoresOtherDescriptors(t *testing.T) {
	d := descriptor(dataset.Monthly)
	other := d
	other.Level = []string{"850hPa"}
	lister := fakeLister{store.Dir(d): {name(other, dataset.Span(1990, 2020))}}

	plan, err := (&Planner{Store: lister, Now: clock(2024)}).Plan(context.Background(), d, dataset.YearRange{First: 1979, Last: 1980})
	if err != nil {
		t.Fatal(err)
	}
	if plan.Found {
		t.Error("files of another level must not count")
	}
	if plan.Years != (dataset.YearRange{First: 1979, Last: 1980}) {
		t.Errorf("expected fallback range, got %v", plan.Years)
	}
}

func TestPlanNoArchiveNoFallback(t *testing.T) {
	d := descriptor(dataset.Monthly)
	_, err := (&Planner{Store: fakeLister{}, Now: clock(2024)}).Plan(context.Background(), d, dataset.YearRange{})
	if !errors.Is(err, ErrNoRange) {
		t.Errorf("expected ErrNoRange, got %v", err)
	}
}

func TestPlanListError(t *testing.T) {
	boom := errors.New("bucket unreachable")
	_, err := (&Planner{Store: failingLister{boom}}).Plan(context.Background(), descriptor(dataset.Monthly), dataset.YearRange{})
	if !errors.Is(err, boom) {
		t.Errorf("expected list error, got %v", err)
	}
}
