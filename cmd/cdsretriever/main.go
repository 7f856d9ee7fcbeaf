package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/oloapinivad/CDS-retriever/internal/codec"
	"github.com/oloapinivad/CDS-retriever/internal/config"
	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	cdshttp "github.com/oloapinivad/CDS-retriever/internal/http"
	"github.com/oloapinivad/CDS-retriever/internal/postproc"
	"github.com/oloapinivad/CDS-retriever/internal/scheduler"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitArchiveError     = 3
	ExitCodecError       = 4
	ExitStorageError     = 5
	ExitChunkFailed      = 6
	ExitValidationFailed = 7
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitInvalidArgs
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "run":
		return runPipeline(cmdArgs)
	case "validate":
		return runValidate(cmdArgs)
	case "plan":
		return runPlan(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		return ExitInvalidArgs
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: cdsretriever <command> [options]

Commands:
  run       Retrieve, convert, merge and align the configured variables
  validate  Report the completeness of every staged chunk
  plan      Show the year range an update run would fetch

Run 'cdsretriever <command> -h' for command-specific help.`)
}

// exitCode maps a run error to the process exit code.
func exitCode(err error) int {
	var (
		cfgErr    *config.ConfigurationError
		levelErr  *dataset.InvalidLevelError
		freqErr   *dataset.InvalidFrequencyError
		dsErr     *dataset.InvalidDatasetError
		granErr   *dataset.InvalidGranularityError
		toolErr   *codec.ToolError
		decodeErr *codec.DecodeError
		batchErr  *scheduler.BatchError
		breakErr  *scheduler.CircuitBreakerError
		mergeErr  *postproc.MergeVerificationError
	)
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &cfgErr), errors.As(err, &levelErr), errors.As(err, &freqErr),
		errors.As(err, &dsErr), errors.As(err, &granErr):
		return ExitInvalidArgs
	case errors.As(err, &toolErr):
		return ExitCodecError
	case errors.Is(err, cdshttp.ErrUnauthorized), errors.Is(err, cdshttp.ErrForbidden):
		return ExitArchiveError
	case errors.As(err, &mergeErr):
		return ExitValidationFailed
	case errors.As(err, &batchErr), errors.As(err, &breakErr):
		if errors.As(err, &decodeErr) {
			return ExitCodecError
		}
		return ExitChunkFailed
	case errors.As(err, &decodeErr):
		return ExitCodecError
	default:
		return ExitGeneralError
	}
}
