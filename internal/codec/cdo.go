package codec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultCommand is the tool looked up on PATH when CDO.Command is empty.
const DefaultCommand = "cdo"

// Options passed to every conversion: ECMWF parameter table, netCDF4 with
// zip compression, ecCodes GRIB decoding.
var convertOptions = []string{"-t", "ecmwf", "-f", "nc4", "-z", "zip", "--eccodes"}

var reductionOptions = []string{"-f", "nc4", "-z", "zip"}

// CDO implements Codec with the Climate Data Operators.
type CDO struct {
	// Command is the cdo executable. Default: "cdo"
	Command string

	// Debug makes cdo verbose and logs every invocation.
	Debug bool

	Logger *zap.Logger
}

var _ Codec = (*CDO)(nil)

func (c *CDO) command() string {
	if c.Command == "" {
		return DefaultCommand
	}
	return c.Command
}

func (c *CDO) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// run executes the tool and returns its stdout. path names the input that
// failures are attributed to.
func (c *CDO) run(ctx context.Context, op, path string, args ...string) ([]byte, error) {
	if !c.Debug {
		args = append([]string{"-s"}, args...)
	}
	cmd := exec.CommandContext(ctx, c.command(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if c.Debug {
		c.logger().Debug("cdo",
			zap.String("op", op),
			zap.Strings("args", args),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
	if err == nil {
		return stdout.Bytes(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil, &DecodeError{Op: op, Path: path, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return nil, &ToolError{Command: c.command(), Err: err}
}

// write runs an operation producing out and removes out if it fails.
func (c *CDO) write(ctx context.Context, op, in, out string, args ...string) error {
	// cdo refuses to overwrite in some modes.
	if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("codec: remove stale %s: %w", out, err)
	}
	if _, err := c.run(ctx, op, in, args...); err != nil {
		os.Remove(out)
		return err
	}
	return nil
}

// CountSteps runs "cdo ntime". For multi-variable files cdo prints one count
// per variable; the first is used.
func (c *CDO) CountSteps(ctx context.Context, path string) (int, error) {
	out, err := c.run(ctx, "ntime", path, "ntime", path)
	if err != nil {
		return 0, err
	}
	line := firstLine(out)
	n, err := strconv.Atoi(line)
	if err != nil {
		return 0, &DecodeError{Op: "ntime", Path: path, Err: fmt.Errorf("unexpected output %q", line)}
	}
	return n, nil
}

func (c *CDO) Convert(ctx context.Context, in, out string) error {
	args := append(append([]string{}, convertOptions...), "copy", in, out)
	return c.write(ctx, "copy", in, out, args...)
}

func (c *CDO) Concat(ctx context.Context, inputs []string, out string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("codec: concat %s: no inputs", out)
	}
	args := append(append([]string{"cat"}, inputs...), out)
	return c.write(ctx, "cat", inputs[0], out, args...)
}

func (c *CDO) DayMean(ctx context.Context, in, out string) error {
	args := append(append([]string{}, reductionOptions...), "daymean", in, out)
	return c.write(ctx, "daymean", in, out, args...)
}

func (c *CDO) MonMean(ctx context.Context, in, out string) error {
	args := append(append([]string{}, reductionOptions...), "monmean", in, out)
	return c.write(ctx, "monmean", in, out, args...)
}

func (c *CDO) ShiftTime(ctx context.Context, shift time.Duration, in, out string) error {
	args := append(append([]string{}, reductionOptions...), "shifttime,"+FormatShift(shift), in, out)
	return c.write(ctx, "shifttime", in, out, args...)
}

func (c *CDO) SetMonthlyAxis(ctx context.Context, start time.Time, in, out string) error {
	op := "settaxis," + start.UTC().Format("2006-01-02,15:04:05") + ",1mon"
	args := append(append([]string{}, reductionOptions...), op, in, out)
	return c.write(ctx, "settaxis", in, out, args...)
}

// FirstTimestamp runs "cdo showtimestamp", which prints all timestamps of the
// file on one line.
func (c *CDO) FirstTimestamp(ctx context.Context, path string) (time.Time, error) {
	out, err := c.run(ctx, "showtimestamp", path, "showtimestamp", path)
	if err != nil {
		return time.Time{}, err
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return time.Time{}, &DecodeError{Op: "showtimestamp", Path: path, Err: errors.New("no timestamps")}
	}
	ts, err := time.Parse("2006-01-02T15:04:05", fields[0])
	if err != nil {
		return time.Time{}, &DecodeError{Op: "showtimestamp", Path: path, Err: err}
	}
	return ts, nil
}

func firstLine(b []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}
