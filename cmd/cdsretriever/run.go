package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/oloapinivad/CDS-retriever/internal/cds"
	"github.com/oloapinivad/CDS-retriever/internal/codec"
	"github.com/oloapinivad/CDS-retriever/internal/config"
	cdshttp "github.com/oloapinivad/CDS-retriever/internal/http"
	"github.com/oloapinivad/CDS-retriever/internal/logging"
	"github.com/oloapinivad/CDS-retriever/internal/metrics"
	"github.com/oloapinivad/CDS-retriever/internal/pipeline"
	"github.com/oloapinivad/CDS-retriever/internal/store"
)

func runPipeline(args []string) int {
	flags := newFlagSet("run", `Usage: cdsretriever run [options]

Retrieve the configured variables from the Climate Data Store year by year,
convert them to netCDF4, merge monthly data into cumulative archives and
optionally align their time axis. Chunks already complete on disk are not
fetched again, so an interrupted run can simply be restarted.

Options:`)
	fs := flags.fs
	fs.StringVar(&flags.override.CDS.Key, "cds-key", "", "Archive access token (prefer CDSAPI_KEY or ~/.cdsapirc)")
	fs.StringVar(&flags.override.Metrics.Addr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")
	fs.StringVar(&flags.override.Metrics.Textfile, "metrics-textfile", "", "Write Prometheus metrics to this file when done")

	if code, ok := flags.parse(args); !ok {
		return code
	}

	cfg, err := flags.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	if _, _, err := pipeline.Resolve(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	for _, line := range cfg.Summary() {
		fmt.Fprintf(os.Stderr, "[cdsretriever] %s\n", line)
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.Open(ctx, cfg.StoreDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		return ExitStorageError
	}
	defer st.Close()

	collector, stopMetrics := startMetrics(cfg.Metrics, log)
	defer stopMetrics()

	env := newEnv(cfg, st, collector, log)
	env.Progress = os.Stderr

	report, err := pipeline.Run(ctx, cfg, env)
	printReport(report)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "[cdsretriever] Run again to resume")
		}
		return exitCode(err)
	}
	fmt.Fprintln(os.Stderr, "[cdsretriever] Done")
	return ExitSuccess
}

// newEnv wires the production collaborators.
func newEnv(cfg config.Config, st *store.Store, collector *metrics.Collector, log *zap.Logger) pipeline.Env {
	cdo := &codec.CDO{
		Command: cfg.Codec.Command,
		Debug:   cfg.Codec.Debug,
		Logger:  log,
	}
	var c codec.Codec = cdo
	if collector != nil {
		c = codec.Observe(cdo, collector.ObserveCodec)
	}

	transfer := cdshttp.NewClient(cdshttp.DefaultOptions())
	archive := cds.New(cds.Options{
		URL:          cfg.CDS.URL,
		Key:          cfg.CDS.Key,
		PollInterval: cfg.CDS.PollInterval,
	}, transfer, log)

	return pipeline.Env{
		Archive: archive,
		Codec:   c,
		Store:   st,
		Logger:  log,
		Metrics: collector,
	}
}

// startMetrics creates a collector when metrics are configured and serves
// it on cfg.Addr. The returned func writes the textfile and stops the
// server.
func startMetrics(cfg config.MetricsConfig, log *zap.Logger) (*metrics.Collector, func()) {
	if cfg.Addr == "" && cfg.Textfile == "" {
		return nil, func() {}
	}
	collector := metrics.NewCollector("cdsretriever")

	var srv *http.Server
	if cfg.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		srv = &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("metrics: server stopped", zap.Error(err))
			}
		}()
		log.Info("metrics: serving", zap.String("addr", cfg.Addr))
	}

	return collector, func() {
		if cfg.Textfile != "" {
			if err := collector.WriteTextfile(cfg.Textfile); err != nil {
				log.Warn("metrics: cannot write textfile", zap.Error(err))
			}
		}
		if srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}
	}
}

func printReport(report *pipeline.Report) {
	if report == nil {
		return
	}
	for _, v := range report.Variables {
		status := "ok"
		if v.Err != nil {
			status = "FAILED"
		}
		line := fmt.Sprintf("[cdsretriever] %s: %s", v.Variable, status)
		if !v.Years.Empty() {
			line += fmt.Sprintf(" | years %s", v.Years)
		}
		if v.Daily != nil {
			line += fmt.Sprintf(" | daily %d-%d (%d steps)", v.Daily.First, v.Daily.Last, v.Daily.Steps)
		}
		if v.Merged != nil {
			line += fmt.Sprintf(" | merged %d-%d (%d steps)", v.Merged.First, v.Merged.Last, v.Merged.Steps)
		}
		if v.Shift != 0 {
			line += fmt.Sprintf(" | shifted %s", v.Shift)
		}
		fmt.Fprintln(os.Stderr, line)
	}
}
