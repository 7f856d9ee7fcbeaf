package postproc

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	"github.com/oloapinivad/CDS-retriever/internal/store"
)

// DeriveYear reduces the sub-daily product of year to a daily-mean product
// and a monthly-mean product. Products that already exist, or means already
// folded into a merged archive, are left alone. It reports whether anything
// was written.
func (m *Merger) DeriveYear(ctx context.Context, desc dataset.Descriptor, year int) (bool, error) {
	if dataset.IsCumulative(desc.Frequency) {
		return false, fmt.Errorf("postproc: cannot derive means from %s data", desc.Frequency)
	}
	day := desc.WithFrequency(dataset.Daily)
	mon := desc.WithFrequency(dataset.Monthly)
	srcKey := store.Key(desc, dataset.Year(year))
	dayKey := store.Key(day, dataset.Year(year))
	monKey := store.Key(mon, dataset.Year(year))
	log := m.log.With(zap.String("variable", desc.Variable), zap.Int("year", year))

	haveDay, err := m.store.Exists(ctx, dayKey)
	if err != nil {
		return false, err
	}
	dayDone := haveDay
	if !dayDone {
		if dayDone, err = m.mergedCovers(ctx, day, year); err != nil {
			return false, err
		}
	}
	monDone, err := m.store.Exists(ctx, monKey)
	if err != nil {
		return false, err
	}
	if !monDone {
		if monDone, err = m.mergedCovers(ctx, mon, year); err != nil {
			return false, err
		}
	}
	if dayDone && monDone {
		log.Debug("postproc: means already derived")
		return false, nil
	}

	dir, cleanup, err := m.scratch("derive-*")
	if err != nil {
		return false, err
	}
	defer cleanup()

	daily := filepath.Join(dir, filepath.Base(dayKey))
	if haveDay {
		// Monthly means only: start from the smaller daily product.
		if err := m.store.Fetch(ctx, dayKey, daily); err != nil {
			return false, err
		}
	} else {
		src := filepath.Join(dir, filepath.Base(srcKey))
		if err := m.fetchInput(ctx, srcKey, src); err != nil {
			return false, err
		}
		if err := m.codec.DayMean(ctx, src, daily); err != nil {
			return false, fmt.Errorf("postproc: daily means of %s: %w", filepath.Base(srcKey), err)
		}
		if !dayDone {
			if err := m.store.Publish(ctx, daily, dayKey); err != nil {
				return false, err
			}
			log.Info("postproc: derived daily means", zap.String("key", dayKey))
		}
	}

	if !monDone {
		monthly := filepath.Join(dir, filepath.Base(monKey))
		if err := m.codec.MonMean(ctx, daily, monthly); err != nil {
			return false, fmt.Errorf("postproc: monthly means of %s: %w", filepath.Base(dayKey), err)
		}
		if err := m.store.Publish(ctx, monthly, monKey); err != nil {
			return false, err
		}
		log.Info("postproc: derived monthly means", zap.String("key", monKey))
	}
	return true, nil
}

// mergedCovers reports whether the widest merged archive of desc holds year.
func (m *Merger) mergedCovers(ctx context.Context, desc dataset.Descriptor, year int) (bool, error) {
	span, ok, err := m.MergedSpan(ctx, desc)
	if err != nil {
		return false, err
	}
	return ok && year >= span.First && year <= span.Last, nil
}

// fetchInput fetches key, mapping an absent object to ErrMissingInput.
func (m *Merger) fetchInput(ctx context.Context, key, dst string) error {
	if err := m.store.Fetch(ctx, key, dst); err != nil {
		if store.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissingInput, key)
		}
		return err
	}
	return nil
}
