package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/oloapinivad/CDS-retriever/internal/codec"
	"github.com/oloapinivad/CDS-retriever/internal/config"
	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	"github.com/oloapinivad/CDS-retriever/internal/metrics"
	"github.com/oloapinivad/CDS-retriever/internal/postproc"
	"github.com/oloapinivad/CDS-retriever/internal/progress"
	"github.com/oloapinivad/CDS-retriever/internal/retrieve"
	"github.com/oloapinivad/CDS-retriever/internal/scheduler"
	"github.com/oloapinivad/CDS-retriever/internal/store"
	"github.com/oloapinivad/CDS-retriever/internal/update"
)

// Env carries the collaborators of a run.
type Env struct {
	Archive retrieve.Archive
	Codec   codec.Codec
	Store   *store.Store

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Metrics is optional.
	Metrics *metrics.Collector

	// Now is the clock of the update planner and manifests.
	// Default: time.Now
	Now func() time.Time

	// Progress receives per-phase progress lines. Nil disables them.
	Progress io.Writer
}

func (e Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// VariableReport is the outcome of one variable.
type VariableReport struct {
	Variable string

	// Years is the retrieval range; it may be empty in update mode.
	Years dataset.YearRange

	Retrieved     bool
	Postprocessed bool

	// Merged is the manifest of the merged monthly archive written by this
	// run.
	Merged *store.Manifest

	// Daily is the manifest of the merged daily-mean archive written by
	// this run, for sub-daily variables.
	Daily *store.Manifest

	// Shift is the alignment applied to the merged archive.
	Shift time.Duration

	Err error
}

// Report summarises a run.
type Report struct {
	Variables []VariableReport
}

// Failed returns the reports of the variables that failed.
func (r *Report) Failed() []VariableReport {
	var failed []VariableReport
	for _, v := range r.Variables {
		if v.Err != nil {
			failed = append(failed, v)
		}
	}
	return failed
}

// Resolve resolves the descriptor of every configured variable. It touches
// neither the network nor the filesystem.
func Resolve(cfg config.Config) ([]dataset.Resolved, string, error) {
	granularity, err := dataset.ResolveGranularity(cfg.DownloadRequest)
	if err != nil {
		return nil, "", err
	}
	specs := make([]dataset.Resolved, 0, len(cfg.VarList))
	for _, v := range cfg.VarList {
		res, err := dataset.Resolve(cfg.Descriptor(v))
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", v, err)
		}
		specs = append(specs, res)
	}
	return specs, granularity, nil
}

type runner struct {
	cfg         config.Config
	env         Env
	log         *zap.Logger
	granularity string
	sched       *scheduler.Scheduler
	merger      *postproc.Merger
}

// Run executes cfg. Every variable is resolved before anything else
// happens, so a misconfigured variable aborts the run without side effects.
// A failing variable does not stop the others; the returned error joins
// the failures.
func Run(ctx context.Context, cfg config.Config, env Env) (*Report, error) {
	specs, granularity, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}

	log := env.logger()
	r := &runner{
		cfg:         cfg,
		env:         env,
		log:         log,
		granularity: granularity,
		sched:       &scheduler.Scheduler{Size: cfg.NProcs, MaxConsecutiveFailures: cfg.Retry.MaxConsecutiveFailures, Logger: log},
		merger: postproc.NewMerger(env.Codec, env.Store, postproc.Options{
			TmpDir:  cfg.TmpDir,
			Update:  cfg.Year.Update,
			Now:     env.now,
			Metrics: env.Metrics,
			Logger:  log,
		}),
	}

	report := &Report{}
	var errs []error
	for _, spec := range specs {
		vr := r.variable(ctx, spec)
		report.Variables = append(report.Variables, vr)
		if vr.Err != nil {
			errs = append(errs, eris.Wrapf(vr.Err, "pipeline: %s", vr.Variable))
			if ctx.Err() != nil {
				break
			}
		}
	}
	return report, errors.Join(errs...)
}

func (r *runner) variable(ctx context.Context, spec dataset.Resolved) VariableReport {
	desc := spec.Descriptor
	log := r.log.With(zap.String("variable", desc.Variable))
	vr := VariableReport{Variable: desc.Variable}

	years := r.cfg.Years()
	postYears := years
	doRetrieve, doPostproc := r.cfg.DoRetrieve, r.cfg.DoPostproc
	if r.cfg.Year.Update {
		planner := &update.Planner{Store: r.env.Store, Now: r.env.now, Logger: log}
		plan, err := planner.Plan(ctx, desc, r.cfg.Years())
		if err != nil {
			vr.Err = err
			return vr
		}
		years, postYears = plan.Years, plan.PostprocYears
		doRetrieve = doRetrieve && plan.Retrieve
		doPostproc = doPostproc && plan.Postproc
	}
	vr.Years = years

	if doRetrieve && !years.Empty() {
		if err := r.retrieve(ctx, spec, years); err != nil {
			log.Error("pipeline: retrieval failed, skipping postprocessing", zap.Error(err))
			vr.Err = err
			return vr
		}
		vr.Retrieved = true
	}

	if doPostproc && !postYears.Empty() {
		daily, monthly, err := r.postprocess(ctx, desc, postYears)
		if err != nil {
			log.Error("pipeline: postprocessing failed", zap.Error(err))
			vr.Err = err
			return vr
		}
		vr.Postprocessed = true
		vr.Daily = daily
		vr.Merged = monthly
	}

	if r.cfg.DoAlign {
		start := time.Now()
		shift, err := r.merger.Align(ctx, desc)
		if err != nil {
			vr.Err = err
			return vr
		}
		vr.Shift = shift
		r.env.Metrics.ObservePhase(desc.Variable, "align", time.Since(start))
	}
	return vr
}

// reporter returns a progress reporter for a phase, or nil when progress
// output is disabled.
func (r *runner) reporter(phase string, total int) *progress.Reporter {
	if r.env.Progress == nil {
		return nil
	}
	return progress.NewReporter(progress.Options{
		Phase:       phase,
		TotalChunks: total,
		Output:      r.env.Progress,
	})
}

// phase runs tasks in waves with a progress reporter and records its
// duration.
func (r *runner) phase(ctx context.Context, variable, name string, tasks []scheduler.Task, rep *progress.Reporter) error {
	start := time.Now()
	rep.Start()
	err := r.sched.Run(ctx, tasks)
	rep.Stop()
	r.env.Metrics.ObservePhase(variable, name, time.Since(start))
	return err
}

func (r *runner) retrieve(ctx context.Context, spec dataset.Resolved, years dataset.YearRange) error {
	variable := spec.Descriptor.Variable
	rep := r.reporter("retrieve "+variable, len(years.Years()))
	engine := retrieve.NewEngine(r.env.Archive, r.env.Codec, retrieve.Options{
		TmpDir:      r.cfg.TmpDir,
		Granularity: r.granularity,
		MaxAttempts: r.cfg.Retry.Attempts,
		Backoff:     r.cfg.Retry.Backoff,
		Progress:    rep,
		Metrics:     r.env.Metrics,
		Logger:      r.log,
	})

	var tasks []scheduler.Task
	for _, y := range years.Years() {
		ch := retrieve.Chunk{Spec: spec, Year: y}
		tasks = append(tasks, scheduler.Task{
			Name: ch.Name(),
			Run:  func(ctx context.Context) error { return engine.Retrieve(ctx, ch) },
		})
	}
	return r.phase(ctx, variable, "retrieve", tasks, rep)
}

// yearTasks builds one reported task per year around fn, which tells
// whether it did any work.
func yearTasks(desc dataset.Descriptor, years dataset.YearRange, rep *progress.Reporter, fn func(ctx context.Context, year int) (bool, error)) []scheduler.Task {
	var tasks []scheduler.Task
	for _, y := range years.Years() {
		y := y
		tasks = append(tasks, scheduler.Task{
			Name: dataset.CanonicalFilename(desc, dataset.Year(y)),
			Run: func(ctx context.Context) error {
				rep.ChunkStarted()
				done, err := fn(ctx, y)
				switch {
				case err != nil:
					rep.ChunkFailed()
				case done:
					rep.ChunkCompleted(0)
				default:
					rep.ChunkSkipped()
				}
				return err
			},
		})
	}
	return tasks
}

func (r *runner) postprocess(ctx context.Context, desc dataset.Descriptor, years dataset.YearRange) (daily, monthly *store.Manifest, err error) {
	n := len(years.Years())

	rep := r.reporter("convert "+desc.Variable, n)
	tasks := yearTasks(desc, years, rep, func(ctx context.Context, year int) (bool, error) {
		return r.merger.ConvertYear(ctx, desc, year)
	})
	if err := r.phase(ctx, desc.Variable, "convert", tasks, rep); err != nil {
		return nil, nil, err
	}

	mon := desc
	if !dataset.IsMonthlyClass(desc.Frequency) {
		rep := r.reporter("derive "+desc.Variable, n)
		tasks := yearTasks(desc, years, rep, func(ctx context.Context, year int) (bool, error) {
			return r.merger.DeriveYear(ctx, desc, year)
		})
		if err := r.phase(ctx, desc.Variable, "derive", tasks, rep); err != nil {
			return nil, nil, err
		}

		start := time.Now()
		daily, err = r.merger.MergeDaily(ctx, desc, years)
		r.env.Metrics.ObservePhase(desc.Variable, "merge", time.Since(start))
		if err != nil {
			return nil, nil, err
		}
		mon = desc.WithFrequency(dataset.Monthly)
	}

	start := time.Now()
	monthly, err = r.merger.MergeMonthly(ctx, mon, years)
	r.env.Metrics.ObservePhase(desc.Variable, "merge", time.Since(start))
	return daily, monthly, err
}
