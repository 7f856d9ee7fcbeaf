package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/oloapinivad/CDS-retriever/internal/config"
)

// commonFlags are the configuration flags shared by every command.
type commonFlags struct {
	fs         *pflag.FlagSet
	configPath string
	cdsrc      string
	override   config.Config
	vars       []string
	levels     []string
	area       string
	noRetrieve bool
	noPostproc bool
}

func newFlagSet(name, usage string) *commonFlags {
	f := &commonFlags{fs: pflag.NewFlagSet(name, pflag.ContinueOnError)}
	fs := f.fs
	o := &f.override

	fs.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fs.StringVar(&f.cdsrc, "cdsrc", config.DefaultCDSRCPath(), "Archive credentials file")
	fs.StringVar(&o.TmpDir, "tmpdir", "", "Staging directory for raw downloads")
	fs.StringVar(&o.StoreDir, "storedir", "", "Archive directory or bucket URL (file://, s3://, gs://, mem://)")
	fs.StringVar(&o.Dataset, "dataset", "", "Dataset: ERA5 or ERA5-Land")
	fs.StringSliceVarP(&f.vars, "var", "v", nil, "Variables to process (repeatable or comma-separated)")
	fs.IntVar(&o.Year.Begin, "begin", 0, "First year")
	fs.IntVar(&o.Year.End, "end", 0, "Last year")
	fs.BoolVar(&o.Year.Update, "update", false, "Continue from the last archived year")
	fs.StringSliceVarP(&f.levels, "level", "l", nil, "Vertical levels: sfc, plev8, plev19, plev37 or pressure levels")
	fs.StringVarP(&o.Freq, "freq", "f", "", "Frequency: mon, 1hr, 6hrs or instant")
	fs.StringVarP(&o.Grid, "grid", "g", "", "Grid, e.g. 2.5x2.5, or full")
	fs.StringVar(&f.area, "area", "", "Area: global or north,west,south,east")
	fs.IntVarP(&o.NProcs, "nprocs", "j", 0, "Parallel tasks per wave")
	fs.StringVar(&o.DownloadRequest, "download-request", "", "Request granularity: yearly or monthly")
	fs.BoolVar(&f.noRetrieve, "no-retrieve", false, "Skip retrieval")
	fs.BoolVar(&f.noPostproc, "no-postproc", false, "Skip postprocessing")
	fs.BoolVar(&o.DoAlign, "align", false, "Align merged monthly archives to month starts")
	fs.IntVar(&o.Retry.Attempts, "retry-attempts", 0, "Attempts per transfer")
	fs.DurationVar(&o.Retry.Backoff, "retry-backoff", 0, "Pause between attempts")
	fs.IntVar(&o.Retry.MaxConsecutiveFailures, "max-failures", 0, "Stop after this many consecutive failed chunks (0 disables)")
	fs.StringVar(&o.CDS.URL, "cds-url", "", "Archive API root")
	fs.StringVar(&o.Codec.Command, "cdo", "", "cdo executable")
	fs.BoolVar(&o.Codec.Debug, "cdo-debug", false, "Log every cdo invocation")
	fs.StringVar(&o.Log.Level, "log-level", "", "Log level: debug, info, warn, error")
	fs.StringVar(&o.Log.Format, "log-format", "", "Log format: console or json")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		fs.PrintDefaults()
	}
	return f
}

// parse parses args. ok is false when the command should exit with code.
func (f *commonFlags) parse(args []string) (code int, ok bool) {
	if err := f.fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitSuccess, false
		}
		return ExitInvalidArgs, false
	}
	if f.fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n", f.fs.Args())
		f.fs.Usage()
		return ExitInvalidArgs, false
	}
	return 0, true
}

// load builds the configuration: defaults, file, environment, credentials
// file and flags, in increasing precedence.
func (f *commonFlags) load() (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(f.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyCDSRC(f.cdsrc); err != nil {
		return config.Config{}, err
	}

	o := f.override
	o.VarList = f.vars
	o.LevelOut = f.levels
	if f.fs.Changed("area") {
		area, err := config.ParseArea(f.area)
		if err != nil {
			return config.Config{}, err
		}
		cfg.Area = area
	}
	cfg = cfg.Merge(o)
	if f.noRetrieve {
		cfg.DoRetrieve = false
	}
	if f.noPostproc {
		cfg.DoPostproc = false
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[cdsretriever] Received interrupt, finishing the current wave...")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
