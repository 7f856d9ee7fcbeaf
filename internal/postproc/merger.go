package postproc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/oloapinivad/CDS-retriever/internal/codec"
	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	"github.com/oloapinivad/CDS-retriever/internal/metrics"
	"github.com/oloapinivad/CDS-retriever/internal/retrieve"
	"github.com/oloapinivad/CDS-retriever/internal/store"
	"github.com/oloapinivad/CDS-retriever/internal/verify"
)

// ErrMissingInput is returned when a product to convert or merge is absent.
var ErrMissingInput = errors.New("postproc: missing input")

// MergeVerificationError reports a merged output that failed verification.
// Nothing was published or deleted.
type MergeVerificationError struct {
	Key    string
	Result verify.Result
	Want   int
}

func (e *MergeVerificationError) Error() string {
	return fmt.Sprintf("postproc: merged %s is %s (%d of %d steps)", e.Key, e.Result.Verdict, e.Result.Steps, e.Want)
}

func (e *MergeVerificationError) Unwrap() error {
	return e.Result.Err
}

// Options configures the merger.
type Options struct {
	// TmpDir is the staging root the retrieval engine writes to.
	TmpDir string

	// WorkDir holds scratch files. Default: {TmpDir}/.work
	WorkDir string

	// Update makes merges extend the existing merged archive instead of
	// covering only the requested years.
	Update bool

	// Now stamps manifests. Default: time.Now
	Now func() time.Time

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector

	Logger *zap.Logger
}

// Merger converts, merges, derives and aligns products.
type Merger struct {
	codec    codec.Codec
	store    *store.Store
	verifier *verify.Verifier
	opts     Options
	log      *zap.Logger
}

// NewMerger creates a merger working through c and publishing to st.
func NewMerger(c codec.Codec, st *store.Store, opts Options) *Merger {
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(opts.TmpDir, ".work")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{
		codec:    c,
		store:    st,
		verifier: &verify.Verifier{Codec: c},
		opts:     opts,
		log:      log,
	}
}

// scratch creates a private scratch directory and returns a cleanup func.
func (m *Merger) scratch(pattern string) (string, func(), error) {
	if err := os.MkdirAll(m.opts.WorkDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("postproc: create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(m.opts.WorkDir, pattern)
	if err != nil {
		return "", nil, fmt.Errorf("postproc: create scratch dir: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// ConvertYear converts the staged raw artifact of year to netCDF4 and
// publishes it as the per-year product. The raw artifact is kept. It
// returns false when there was nothing to do: the product is newer than
// the raw artifact, or the raw artifact is gone but the product exists.
func (m *Merger) ConvertYear(ctx context.Context, desc dataset.Descriptor, year int) (bool, error) {
	src := retrieve.StagingPath(m.opts.TmpDir, desc, year)
	key := store.Key(desc, dataset.Year(year))
	log := m.log.With(zap.String("key", key))

	info, err := os.Stat(src)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("postproc: stat %s: %w", src, err)
		}
		ok, err := m.store.Exists(ctx, key)
		if err != nil {
			return false, err
		}
		if ok {
			log.Debug("postproc: raw artifact gone, product already published")
			return false, nil
		}
		return false, fmt.Errorf("%w: %s", ErrMissingInput, src)
	}

	mod, ok, err := m.store.ModTime(ctx, key)
	if err != nil {
		return false, err
	}
	if ok && !mod.Before(info.ModTime()) {
		log.Debug("postproc: product newer than raw artifact, skipping")
		return false, nil
	}

	dir, cleanup, err := m.scratch("convert-*")
	if err != nil {
		return false, err
	}
	defer cleanup()

	out := filepath.Join(dir, filepath.Base(key))
	start := time.Now()
	if err := m.codec.Convert(ctx, src, out); err != nil {
		return false, fmt.Errorf("postproc: convert %s: %w", filepath.Base(src), err)
	}
	if err := m.store.Publish(ctx, out, key); err != nil {
		return false, err
	}
	log.Info("postproc: converted", zap.Duration("elapsed", time.Since(start)))
	return true, nil
}
