package retrieve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oloapinivad/CDS-retriever/internal/codec"
	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	cdshttp "github.com/oloapinivad/CDS-retriever/internal/http"
	"github.com/oloapinivad/CDS-retriever/internal/metrics"
	"github.com/oloapinivad/CDS-retriever/internal/progress"
	"github.com/oloapinivad/CDS-retriever/internal/verify"
)

// StagingExt is the extension of raw retrieved artifacts.
const StagingExt = ".grb"

// Archive is the remote source of chunks. Retrieve stores the result of req
// at target and returns the number of bytes transferred; target must only
// appear once the transfer is complete.
type Archive interface {
	Retrieve(ctx context.Context, kind string, req dataset.Request, target string) (int64, error)
}

// Chunk is one year of one resolved descriptor.
type Chunk struct {
	Spec dataset.Resolved
	Year int
}

// Name is the canonical name of the chunk's artifact.
func (c Chunk) Name() string {
	return dataset.CanonicalFilename(c.Spec.Descriptor, dataset.Year(c.Year))
}

// StagingPath returns where the raw artifact of desc for year is staged
// under root.
func StagingPath(root string, desc dataset.Descriptor, year int) string {
	name := dataset.CanonicalFilename(desc, dataset.Year(year))
	return filepath.Join(root, desc.Variable, name+StagingExt)
}

// FragmentPath returns the staging path of one monthly fragment.
func FragmentPath(root string, desc dataset.Descriptor, year, month int) string {
	yearly := StagingPath(root, desc, year)
	return fmt.Sprintf("%s_%02d%s", strings.TrimSuffix(yearly, StagingExt), month, StagingExt)
}

// Options configures the engine.
type Options struct {
	// TmpDir is the staging root.
	TmpDir string

	// Granularity is dataset.Yearly or dataset.MonthlyRequests.
	// Default: dataset.Yearly
	Granularity string

	// MaxAttempts bounds the attempts of each transfer.
	// Default: 5
	MaxAttempts int

	// Backoff is the pause between attempts. Zero retries immediately.
	Backoff time.Duration

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector

	Logger *zap.Logger
}

// Engine retrieves chunks.
type Engine struct {
	archive  Archive
	verifier *verify.Verifier
	codec    codec.Codec
	opts     Options
	log      *zap.Logger
}

// NewEngine creates an engine fetching from archive and verifying and
// concatenating through c.
func NewEngine(archive Archive, c codec.Codec, opts Options) *Engine {
	if opts.Granularity == "" {
		opts.Granularity = dataset.Yearly
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		archive:  archive,
		verifier: &verify.Verifier{Codec: c},
		codec:    c,
		opts:     opts,
		log:      log,
	}
}

// Retrieve ensures the staged artifact of ch is complete, fetching it if it
// is not. Failures are confined to ch.
func (e *Engine) Retrieve(ctx context.Context, ch Chunk) error {
	variable := ch.Spec.Descriptor.Variable
	target := StagingPath(e.opts.TmpDir, ch.Spec.Descriptor, ch.Year)
	log := e.log.With(zap.String("chunk", ch.Name()))

	e.opts.Progress.ChunkStarted()

	res, err := e.verifier.Check(ctx, target, ch.Spec.Time.MinimumSteps)
	if err != nil {
		e.failed(variable)
		return err
	}
	if res.Verdict == verify.Complete {
		log.Debug("retrieve: already complete, skipping", zap.Int("steps", res.Steps))
		e.opts.Progress.ChunkSkipped()
		e.opts.Metrics.RecordChunk(variable, metrics.OutcomeSkipped)
		return nil
	}
	log.Info("retrieve: fetching", zap.Stringer("verdict", res.Verdict))
	if res.Verdict != verify.Missing {
		if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.failed(variable)
			return fmt.Errorf("retrieve: remove stale %s: %w", target, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		e.failed(variable)
		return fmt.Errorf("retrieve: create staging dir: %w", err)
	}

	start := time.Now()
	var n int64
	if e.opts.Granularity == dataset.MonthlyRequests {
		n, err = e.retrieveMonthly(ctx, ch, target, log)
	} else {
		n, err = e.fetch(ctx, ch.Spec, ch.Year, dataset.Months(), target, ch.Spec.Time.MinimumSteps, log)
	}
	if err != nil {
		log.Error("retrieve: chunk failed", zap.Error(err))
		e.failed(variable)
		return fmt.Errorf("retrieve %s: %w", ch.Name(), err)
	}

	log.Info("retrieve: chunk complete", zap.Int64("bytes", n), zap.Duration("elapsed", time.Since(start)))
	e.opts.Progress.ChunkCompleted(n)
	e.opts.Metrics.RecordChunk(variable, metrics.OutcomeRetrieved)
	e.opts.Metrics.RecordDownload(variable, n, time.Since(start))
	return nil
}

func (e *Engine) failed(variable string) {
	e.opts.Progress.ChunkFailed()
	e.opts.Metrics.RecordChunk(variable, metrics.OutcomeFailed)
}

// fetch retrieves months of year into target with bounded retry. A fetched
// file that is missing or undecodable counts as a transient fault; one that
// is short of minSteps is accepted, since the archive may not yet publish
// the whole period.
func (e *Engine) fetch(ctx context.Context, spec dataset.Resolved, year int, months []string, target string, minSteps int, log *zap.Logger) (int64, error) {
	req := dataset.NewRequest(spec, year, months)
	var n int64

	policy := Policy{
		MaxAttempts: e.opts.MaxAttempts,
		Backoff:     e.opts.Backoff,
		OnRetry: func(attempt int, err error) {
			log.Warn("retrieve: retrying", zap.Int("attempt", attempt), zap.Int("max_attempts", e.opts.MaxAttempts), zap.Error(err))
			e.opts.Metrics.RecordRetry(spec.Descriptor.Variable)
		},
	}
	err := Do(ctx, policy, func(ctx context.Context, attempt int) error {
		var err error
		n, err = e.archive.Retrieve(ctx, spec.Kind, req, target)
		if err != nil {
			return err
		}

		res, err := e.verifier.Check(ctx, target, minSteps)
		if err != nil {
			return err
		}
		switch res.Verdict {
		case verify.Missing, verify.Corrupt:
			os.Remove(target)
			return &cdshttp.TransientTransferError{
				Op:  "verify",
				URL: "file://" + target,
				Err: fmt.Errorf("fetched artifact is %s", res.Verdict),
			}
		case verify.Incomplete:
			log.Warn("retrieve: fetched artifact is incomplete, accepting",
				zap.String("target", filepath.Base(target)),
				zap.Int("steps", res.Steps),
				zap.Int("minimum_steps", minSteps))
		}
		return nil
	})
	return n, err
}

// retrieveMonthly fetches the twelve fragments of ch, concatenates them into
// target and removes them.
func (e *Engine) retrieveMonthly(ctx context.Context, ch Chunk, target string, log *zap.Logger) (int64, error) {
	var total int64
	months := dataset.Months()
	fragments := make([]string, 0, len(months))

	for i, mm := range months {
		month := i + 1
		frag := FragmentPath(e.opts.TmpDir, ch.Spec.Descriptor, ch.Year, month)
		fragments = append(fragments, frag)
		minSteps := ch.Spec.Time.StepsInMonth(ch.Year, month)

		res, err := e.verifier.Check(ctx, frag, minSteps)
		if err != nil {
			return total, err
		}
		if res.Verdict == verify.Complete {
			log.Debug("retrieve: fragment already complete", zap.String("month", mm))
			continue
		}
		n, err := e.fetch(ctx, ch.Spec, ch.Year, []string{mm}, frag, minSteps, log.With(zap.String("month", mm)))
		total += n
		if err != nil {
			return total, fmt.Errorf("month %s: %w", mm, err)
		}
	}

	if err := e.codec.Concat(ctx, fragments, target); err != nil {
		os.Remove(target)
		return total, fmt.Errorf("concatenate fragments: %w", err)
	}
	for _, frag := range fragments {
		if err := os.Remove(frag); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("retrieve: cannot remove fragment", zap.String("fragment", frag), zap.Error(err))
		}
	}
	return total, nil
}
