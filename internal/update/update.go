// Package update works out which years an incremental run has to fetch.
//
// The archive tree is the only state: the years already covered are read
// back from the canonical names found under {variable}/{frequency}/, and
// the next range runs from the year after the last covered one to the last
// complete calendar year.
package update

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	"github.com/oloapinivad/CDS-retriever/internal/store"
)

// ErrNoRange is returned when the archive holds nothing for a descriptor and
// no fallback range was configured.
var ErrNoRange = errors.New("update: no archived years and no configured range")

// Lister lists object names under a prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Plan is the outcome of planning one descriptor.
type Plan struct {
	// Found reports whether any archived product was found; Archived is
	// only meaningful when it is set.
	Found    bool
	Archived dataset.YearRange

	// Years is the range to retrieve and convert. It may be empty.
	Years dataset.YearRange

	// NothingToFetch is set when the archive is already up to date.
	NothingToFetch bool

	Retrieve bool
	Postproc bool

	// PostprocYears is the range postprocessing covers. For sub-daily data
	// that is already up to date it is the archived span, so that missing
	// daily and monthly derivations are caught up.
	PostprocYears dataset.YearRange
}

// Planner proposes year ranges from the archive tree.
type Planner struct {
	Store Lister

	// Now is the clock. Default: time.Now
	Now func() time.Time

	Logger *zap.Logger
}

// Plan scans the archive for desc and proposes the next range. fallback is
// used when the archive holds nothing yet.
func (p *Planner) Plan(ctx context.Context, desc dataset.Descriptor, fallback dataset.YearRange) (Plan, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}

	names, err := p.Store.List(ctx, store.Dir(desc))
	if err != nil {
		return Plan{}, fmt.Errorf("update: scan archive: %w", err)
	}

	archived, found := dataset.SpanOf(dataset.ArchivePattern(desc, store.Ext), names)
	if !found {
		if fallback.First == 0 || fallback.Empty() {
			return Plan{}, fmt.Errorf("%w for %s", ErrNoRange, store.Dir(desc))
		}
		log.Info("update: nothing archived yet, using configured range",
			zap.String("variable", desc.Variable),
			zap.Stringer("years", fallback))
		return Plan{Years: fallback, Retrieve: true, Postproc: true, PostprocYears: fallback}, nil
	}

	proposed := dataset.YearRange{First: archived.Last + 1, Last: now().Year() - 1}
	plan := Plan{
		Found:         true,
		Archived:      archived,
		Years:         proposed,
		Retrieve:      true,
		Postproc:      true,
		PostprocYears: proposed,
	}
	if proposed.Empty() {
		plan.NothingToFetch = true
		plan.Retrieve = false
		if dataset.IsMonthlyClass(desc.Frequency) {
			plan.Postproc = false
		} else {
			plan.PostprocYears = archived
		}
	}

	log.Info("update: planned",
		zap.String("variable", desc.Variable),
		zap.Stringer("archived", archived),
		zap.Stringer("proposed", proposed),
		zap.Bool("retrieve", plan.Retrieve),
		zap.Bool("postproc", plan.Postproc))
	return plan, nil
}
