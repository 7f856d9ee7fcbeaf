package postproc

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	"github.com/oloapinivad/CDS-retriever/internal/store"
)

// monthStart truncates t to the first instant of its month.
func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Align moves the time axis of desc's merged monthly archive so every
// timestamp falls on the first day of its month at 00:00. Sub-daily
// descriptors align their derived monthly means. An archive stamped on day
// one only needs a fixed time-of-day shift; any other stamp, such as a
// month end, gets a fresh axis of consecutive month starts, since months
// differ in length. It returns the shift of the first step, zero when the
// archive was already aligned.
func (m *Merger) Align(ctx context.Context, desc dataset.Descriptor) (time.Duration, error) {
	if !dataset.IsMonthlyClass(desc.Frequency) {
		desc = desc.WithFrequency(dataset.Monthly)
	}
	log := m.log.With(zap.String("variable", desc.Variable), zap.String("frequency", desc.Frequency))

	inv, err := m.inventory(ctx, desc)
	if err != nil {
		return 0, err
	}
	p := inv.widest()
	if p == nil {
		return 0, fmt.Errorf("%w: no merged archive under %s", ErrMissingInput, store.Dir(desc))
	}
	key := store.Dir(desc) + p.name

	dir, cleanup, err := m.scratch("align-*")
	if err != nil {
		return 0, err
	}
	defer cleanup()

	in := filepath.Join(dir, "in_"+p.name)
	if err := m.fetchInput(ctx, key, in); err != nil {
		return 0, err
	}
	first, err := m.codec.FirstTimestamp(ctx, in)
	if err != nil {
		return 0, fmt.Errorf("postproc: read time axis of %s: %w", p.name, err)
	}
	shift := monthStart(first).Sub(first.UTC())
	if shift == 0 {
		log.Info("postproc: already aligned", zap.String("key", key))
		return 0, nil
	}

	out := filepath.Join(dir, p.name)
	if first.UTC().Day() == 1 {
		err = m.codec.ShiftTime(ctx, shift, in, out)
	} else {
		err = m.codec.SetMonthlyAxis(ctx, monthStart(first), in, out)
	}
	if err != nil {
		return 0, fmt.Errorf("postproc: shift %s: %w", p.name, err)
	}
	if err := m.store.Publish(ctx, out, key); err != nil {
		return 0, err
	}

	manifest, err := m.store.ReadManifest(ctx, key)
	switch {
	case err == nil:
		manifest.Shift = shift.String()
		if err := m.store.WriteManifest(ctx, key, manifest); err != nil {
			log.Warn("postproc: cannot update manifest", zap.Error(err))
		}
	case !store.IsNotExist(err):
		log.Warn("postproc: cannot read manifest", zap.Error(err))
	}

	m.opts.Metrics.RecordAlignment(desc.Variable)
	log.Info("postproc: aligned",
		zap.String("key", key),
		zap.Time("first", first),
		zap.Duration("shift", shift))
	return shift, nil
}
