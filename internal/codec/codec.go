package codec

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Codec is the set of operations the pipeline needs from the external tool.
// Implementations must not modify their inputs and must leave no output
// behind when an operation fails.
type Codec interface {
	// CountSteps returns the number of time steps in path.
	CountSteps(ctx context.Context, path string) (int, error)
	// Convert rewrites a GRIB file as compressed netCDF4.
	Convert(ctx context.Context, in, out string) error
	// Concat joins inputs along the time axis in the order given.
	Concat(ctx context.Context, inputs []string, out string) error
	// DayMean reduces in to daily means.
	DayMean(ctx context.Context, in, out string) error
	// MonMean reduces in to monthly means.
	MonMean(ctx context.Context, in, out string) error
	// ShiftTime adds shift to every timestamp of in.
	ShiftTime(ctx context.Context, shift time.Duration, in, out string) error
	// SetMonthlyAxis replaces the time axis of in with consecutive month
	// starts from start, one per step.
	SetMonthlyAxis(ctx context.Context, start time.Time, in, out string) error
	// FirstTimestamp returns the first timestamp of path.
	FirstTimestamp(ctx context.Context, path string) (time.Time, error)
}

// DecodeError reports that the tool ran but rejected its input.
type DecodeError struct {
	Op     string
	Path   string
	Stderr string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("codec: %s %s: %v", e.Op, e.Path, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ToolError reports that the tool could not be started at all.
type ToolError struct {
	Command string
	Err     error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("codec: cannot run %s: %v", e.Command, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err means the input file could not be read.
func IsDecodeError(err error) bool {
	var derr *DecodeError
	return errors.As(err, &derr)
}

// FormatShift renders d as a tool time offset, using the largest unit that
// divides it exactly: "-6hours", "14days", "90minutes", "30seconds".
func FormatShift(d time.Duration) string {
	switch {
	case d == 0:
		return "0seconds"
	case d%(24*time.Hour) == 0:
		return strconv.FormatInt(int64(d/(24*time.Hour)), 10) + "days"
	case d%time.Hour == 0:
		return strconv.FormatInt(int64(d/time.Hour), 10) + "hours"
	case d%time.Minute == 0:
		return strconv.FormatInt(int64(d/time.Minute), 10) + "minutes"
	default:
		return strconv.FormatInt(int64(d/time.Second), 10) + "seconds"
	}
}
