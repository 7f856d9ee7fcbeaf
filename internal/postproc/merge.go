package postproc

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	"github.com/oloapinivad/CDS-retriever/internal/store"
)

// product is an archived object and the years it covers.
type product struct {
	name string
	span dataset.YearRange
}

func (p product) covers(year int) bool {
	return year >= p.span.First && year <= p.span.Last
}

// inventory is what the archive holds for one descriptor.
type inventory struct {
	merged  []product
	perYear map[int]string
}

func (m *Merger) inventory(ctx context.Context, desc dataset.Descriptor) (*inventory, error) {
	names, err := m.store.List(ctx, store.Dir(desc))
	if err != nil {
		return nil, err
	}
	mergedRe := dataset.MergedPattern(desc, store.Ext)
	anyRe := dataset.ArchivePattern(desc, store.Ext)

	inv := &inventory{perYear: make(map[int]string)}
	for _, name := range names {
		if span, ok := dataset.SpanOf(mergedRe, []string{name}); ok {
			inv.merged = append(inv.merged, product{name: name, span: span})
			continue
		}
		if span, ok := dataset.SpanOf(anyRe, []string{name}); ok {
			inv.perYear[span.First] = name
		}
	}
	sort.Slice(inv.merged, func(i, j int) bool { return inv.merged[i].span.First < inv.merged[j].span.First })
	return inv, nil
}

// widest returns the merged product covering the most years.
func (inv *inventory) widest() *product {
	var best *product
	for i := range inv.merged {
		p := &inv.merged[i]
		if best == nil || p.span.Last-p.span.First > best.span.Last-best.span.First ||
			(p.span.Last-p.span.First == best.span.Last-best.span.First && p.span.Last > best.span.Last) {
			best = p
		}
	}
	return best
}

// lacksYears reports whether some year of p has no per-year product.
func (inv *inventory) lacksYears(p product) bool {
	for y := p.span.First; y <= p.span.Last; y++ {
		if _, ok := inv.perYear[y]; !ok {
			return true
		}
	}
	return false
}

// MergedSpan returns the span of the widest merged archive of desc.
func (m *Merger) MergedSpan(ctx context.Context, desc dataset.Descriptor) (dataset.YearRange, bool, error) {
	inv, err := m.inventory(ctx, desc)
	if err != nil {
		return dataset.YearRange{}, false, err
	}
	if p := inv.widest(); p != nil {
		return p.span, true, nil
	}
	return dataset.YearRange{}, false, nil
}

// MergeMonthly concatenates the per-year monthly products of years into a
// cumulative archive. In update mode the existing merged archive is
// extended; otherwise the result covers exactly years and replaces any
// merged archive lying within them, reusing one when per-year products of
// its years are gone. It returns the manifest of the new archive, or nil
// when there was nothing to merge.
func (m *Merger) MergeMonthly(ctx context.Context, desc dataset.Descriptor, years dataset.YearRange) (*store.Manifest, error) {
	if !dataset.IsMonthlyClass(desc.Frequency) {
		return nil, fmt.Errorf("postproc: cannot merge %s data", desc.Frequency)
	}
	return m.merge(ctx, desc, years, func(int) int { return 12 })
}

// MergeDaily concatenates the per-year daily means derived from the
// sub-daily desc into a cumulative daily archive, the same way MergeMonthly
// does for monthly products. A complete year holds one step per requested
// day.
func (m *Merger) MergeDaily(ctx context.Context, desc dataset.Descriptor, years dataset.YearRange) (*store.Manifest, error) {
	if dataset.IsCumulative(desc.Frequency) {
		return nil, fmt.Errorf("postproc: no daily means of %s data", desc.Frequency)
	}
	ts, err := dataset.ResolveTime(desc.Frequency)
	if err != nil {
		return nil, err
	}
	return m.merge(ctx, desc.WithFrequency(dataset.Daily), years, ts.DaysInYear)
}

// merge folds the per-year products of desc into its cumulative archive.
// stepsIn gives the step count of one complete year.
func (m *Merger) merge(ctx context.Context, desc dataset.Descriptor, years dataset.YearRange, stepsIn func(year int) int) (*store.Manifest, error) {
	log := m.log.With(zap.String("variable", desc.Variable), zap.String("frequency", desc.Frequency))

	inv, err := m.inventory(ctx, desc)
	if err != nil {
		return nil, err
	}

	// base is the merged archive whose content is carried over.
	var base *product
	var superseded []product
	if m.opts.Update {
		base = inv.widest()
		if base != nil {
			superseded = append(superseded, *base)
		}
	} else {
		for i, p := range inv.merged {
			if p.span.First < years.First || p.span.Last > years.Last {
				continue
			}
			superseded = append(superseded, p)
			if inv.lacksYears(p) && (base == nil || p.span.Last-p.span.First > base.span.Last-base.span.First) {
				base = &inv.merged[i]
			}
		}
	}

	var fold []int
	var covered []int
	for _, y := range years.Years() {
		if base != nil && base.covers(y) {
			covered = append(covered, y)
			continue
		}
		if _, ok := inv.perYear[y]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, store.Key(desc, dataset.Year(y)))
		}
		fold = append(fold, y)
	}

	if len(fold) == 0 {
		log.Info("postproc: merged archive already covers the requested years", zap.Stringer("years", years))
		m.deleteYears(ctx, desc, inv, covered, log)
		return nil, nil
	}

	span := dataset.YearRange{First: fold[0], Last: fold[len(fold)-1]}
	type input struct {
		first int
		key   string
	}
	var inputs []input
	if base != nil {
		inputs = append(inputs, input{base.span.First, store.Dir(desc) + base.name})
		span.First = min(span.First, base.span.First)
		span.Last = max(span.Last, base.span.Last)
	}
	for _, y := range fold {
		inputs = append(inputs, input{y, store.Dir(desc) + inv.perYear[y]})
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].first < inputs[j].first })

	dir, cleanup, err := m.scratch("merge-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	local := make([]string, len(inputs))
	keys := make([]string, len(inputs))
	for i, in := range inputs {
		local[i] = filepath.Join(dir, strconv.Itoa(i)+"_"+filepath.Base(in.key))
		keys[i] = in.key
		if err := m.store.Fetch(ctx, in.key, local[i]); err != nil {
			return nil, err
		}
	}

	key := store.Key(desc, dataset.Span(span.First, span.Last))
	out := filepath.Join(dir, filepath.Base(key))
	if err := m.codec.Concat(ctx, local, out); err != nil {
		return nil, fmt.Errorf("postproc: merge into %s: %w", filepath.Base(key), err)
	}

	want := 0
	for _, y := range span.Years() {
		want += stepsIn(y)
	}
	res, err := m.verifier.Check(ctx, out, want)
	if err != nil {
		return nil, err
	}
	if res.Verdict.NeedsRetrieval() {
		return nil, &MergeVerificationError{Key: key, Result: res, Want: want}
	}

	if err := m.store.Publish(ctx, out, key); err != nil {
		return nil, err
	}
	manifest := &store.Manifest{
		Variable:    desc.Variable,
		Frequency:   desc.Frequency,
		First:       span.First,
		Last:        span.Last,
		Steps:       res.Steps,
		Inputs:      keys,
		CompletedAt: m.opts.Now().UTC(),
	}
	if base != nil && store.Dir(desc)+base.name != key {
		manifest.Replaces = store.Dir(desc) + base.name
	}
	if err := m.store.WriteManifest(ctx, key, manifest); err != nil {
		log.Warn("postproc: cannot write manifest", zap.Error(err))
	}
	log.Info("postproc: merged",
		zap.String("key", key),
		zap.Stringer("span", span),
		zap.Int("inputs", len(inputs)),
		zap.Int("steps", res.Steps))

	// The new archive is in place; inputs can go.
	for _, p := range superseded {
		old := store.Dir(desc) + p.name
		if old == key {
			continue
		}
		if err := m.store.DeleteWithManifest(ctx, old); err != nil {
			log.Warn("postproc: cannot delete superseded archive", zap.String("key", old), zap.Error(err))
		}
	}
	m.deleteYears(ctx, desc, inv, append(covered, fold...), log)

	m.opts.Metrics.SetMergedYears(desc.Variable, desc.Frequency, span.Last-span.First+1)
	return manifest, nil
}

func (m *Merger) deleteYears(ctx context.Context, desc dataset.Descriptor, inv *inventory, years []int, log *zap.Logger) {
	for _, y := range years {
		name, ok := inv.perYear[y]
		if !ok {
			continue
		}
		if err := m.store.Delete(ctx, store.Dir(desc)+name); err != nil {
			log.Warn("postproc: cannot delete merged input", zap.String("name", name), zap.Error(err))
		}
	}
}
