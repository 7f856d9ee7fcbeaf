// Package verify classifies local artifacts by how complete they are.
package verify

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/oloapinivad/CDS-retriever/internal/codec"
)

// Verdict is the completeness classification of an artifact.
type Verdict int

const (
	// Missing means the file does not exist.
	Missing Verdict = iota
	// Corrupt means the file exists but cannot be decoded.
	Corrupt
	// Incomplete means the file decodes but has too few time steps.
	Incomplete
	// Complete means the file has at least the expected number of steps.
	Complete
)

func (v Verdict) String() string {
	switch v {
	case Missing:
		return "missing"
	case Corrupt:
		return "corrupt"
	case Incomplete:
		return "incomplete"
	case Complete:
		return "complete"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// NeedsRetrieval reports whether an artifact with this verdict must be
// fetched again. Only Complete suppresses retrieval.
func (v Verdict) NeedsRetrieval() bool {
	return v != Complete
}

// CorruptArtifactError carries the decode failure behind a Corrupt verdict.
type CorruptArtifactError struct {
	Path string
	Err  error
}

func (e *CorruptArtifactError) Error() string {
	return fmt.Sprintf("verify: %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptArtifactError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a check.
type Result struct {
	Verdict Verdict
	// Steps is the decoded step count (Incomplete and Complete only).
	Steps int
	// Err is a *CorruptArtifactError for Corrupt verdicts.
	Err error
}

// Verifier checks artifacts through a codec.
type Verifier struct {
	Codec codec.Codec
}

// Check classifies path against minimumSteps. The returned error is reserved
// for failures unrelated to the artifact itself, such as a codec that cannot
// be started or a cancelled context.
func (v *Verifier) Check(ctx context.Context, path string, minimumSteps int) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Verdict: Missing}, nil
		}
		return Result{Verdict: Corrupt, Err: &CorruptArtifactError{Path: path, Err: err}}, nil
	}

	steps, err := v.Codec.CountSteps(ctx, path)
	if err != nil {
		if codec.IsDecodeError(err) {
			return Result{Verdict: Corrupt, Err: &CorruptArtifactError{Path: path, Err: err}}, nil
		}
		return Result{}, fmt.Errorf("verify %s: %w", path, err)
	}
	if steps < minimumSteps {
		return Result{Verdict: Incomplete, Steps: steps}, nil
	}
	return Result{Verdict: Complete, Steps: steps}, nil
}
