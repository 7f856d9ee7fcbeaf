package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/oloapinivad/CDS-retriever/internal/logging"
	"github.com/oloapinivad/CDS-retriever/internal/pipeline"
	"github.com/oloapinivad/CDS-retriever/internal/store"
	"github.com/oloapinivad/CDS-retriever/internal/update"
)

// runPlan prints what an update run would fetch for every variable.
func runPlan(args []string) int {
	flags := newFlagSet("plan", `Usage: cdsretriever plan [options]

Scan the archive and show, per variable, the years already archived and the
range an update run would retrieve. --begin/--end are used for variables
with nothing archived yet.

Options:`)
	if code, ok := flags.parse(args); !ok {
		return code
	}

	cfg, err := flags.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cfg.DoRetrieve = false
	cfg.Year.Update = true
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.Open(ctx, cfg.StoreDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		return ExitStorageError
	}
	defer st.Close()

	plans, err := pipeline.Plans(ctx, cfg, pipeline.Env{Store: st, Logger: log})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, update.ErrNoRange) {
			return ExitInvalidArgs
		}
		if code := exitCode(err); code != ExitGeneralError {
			return code
		}
		return ExitStorageError
	}

	for _, p := range plans {
		dir := store.Dir(p.Descriptor)
		switch {
		case !p.Plan.Found:
			fmt.Printf("%s: nothing archived, fetch %s\n", dir, p.Plan.Years)
		case p.Plan.NothingToFetch:
			fmt.Printf("%s: archived %s, up to date", dir, p.Plan.Archived)
			if p.Plan.Postproc {
				fmt.Printf(", postprocess %s", p.Plan.PostprocYears)
			}
			fmt.Println()
		default:
			fmt.Printf("%s: archived %s, fetch %s\n", dir, p.Plan.Archived, p.Plan.Years)
		}
	}
	return ExitSuccess
}
