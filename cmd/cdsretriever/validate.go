package main

import (
	"fmt"
	"os"

	"github.com/oloapinivad/CDS-retriever/internal/logging"
	"github.com/oloapinivad/CDS-retriever/internal/pipeline"
	"github.com/oloapinivad/CDS-retriever/internal/verify"
)

// runValidate reports the verdict of every staged chunk in the configured
// range. Nothing is fetched or modified.
func runValidate(args []string) int {
	flags := newFlagSet("validate", `Usage: cdsretriever validate [options]

Check that every staged chunk of the configured variables and years is
complete. Does not contact the archive.

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
	cfg.Year.Update = false
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

	env := newEnv(cfg, nil, nil, log)
	statuses, err := pipeline.Inspect(ctx, cfg, env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}

	bad := 0
	for _, s := range statuses {
		fmt.Printf("%-24s %d  %-10s %6d steps  %s\n", s.Variable, s.Year, s.Result.Verdict, s.Result.Steps, s.Path)
		if s.Result.Verdict != verify.Complete {
			bad++
		}
	}

	if bad == 0 {
		fmt.Println("Status: VALID")
		return ExitSuccess
	}
	fmt.Println("Status: INVALID")
	fmt.Printf("Chunks needing retrieval: %d of %d\n", bad, len(statuses))
	return ExitValidationFailed
}
