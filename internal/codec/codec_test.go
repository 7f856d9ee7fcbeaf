package codec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestFormatShift(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0seconds"},
		{-6 * time.Hour, "-6hours"},
		{14 * 24 * time.Hour, "14days"},
		{-24 * time.Hour, "-1days"},
		{90 * time.Minute, "90minutes"},
		{30 * time.Second, "30seconds"},
	}
	for _, tt := range tests {
		if got := FormatShift(tt.d); got != tt.want {
			t.Errorf("FormatShift(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

// fakeTool writes a shell script standing in for cdo.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "cdo")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCDOCountSteps(t *testing.T) {
	c := &CDO{Command: fakeTool(t, `echo "12"; echo "12"`)}
	n, err := c.CountSteps(context.Background(), "in.grb")
	if err != nil {
		t.Fatalf("CountSteps: %v", err)
	}
	if n != 12 {
		t.Errorf("CountSteps = %d, want 12", n)
	}
}

func TestCDOCountStepsDecodeError(t *testing.T) {
	c := &CDO{Command: fakeTool(t, `echo "cdo ntime (Abort): Open failed" >&2; exit 1`)}
	_, err := c.CountSteps(context.Background(), "broken.grb")
	if !IsDecodeError(err) {
		t.Fatalf("expected DecodeError, got %v", err)
	}
	var derr *DecodeError
	errors.As(err, &derr)
	if derr.Path != "broken.grb" || derr.Stderr == "" {
		t.Errorf("unexpected error fields: %+v", derr)
	}
}

func TestCDOMissingTool(t *testing.T) {
	c := &CDO{Command: filepath.Join(t.TempDir(), "no-such-cdo")}
	_, err := c.CountSteps(context.Background(), "in.grb")
	var terr *ToolError
	if !errors.As(err, &terr) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if IsDecodeError(err) {
		t.Error("a missing tool must not be reported as a decode error")
	}
}

func TestCDOFailedWriteRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.nc")
	// The script writes its last argument and then fails.
	c := &CDO{Command: fakeTool(t, `for last; do :; done; echo partial > "$last"; exit 1`)}
	err := c.Convert(context.Background(), filepath.Join(dir, "in.grb"), out)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("partial output left behind: %v", err)
	}
}

func TestCDOFirstTimestamp(t *testing.T) {
	c := &CDO{Command: fakeTool(t, `echo "  1990-01-16T00:00:00  1990-02-15T00:00:00"`)}
	ts, err := c.FirstTimestamp(context.Background(), "in.nc")
	if err != nil {
		t.Fatalf("FirstTimestamp: %v", err)
	}
	want := time.Date(1990, 1, 16, 0, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Errorf("FirstTimestamp = %v, want %v", ts, want)
	}
}

func TestCDOSetMonthlyAxis(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.nc")
	c := &CDO{Command: fakeTool(t, `for last; do :; done; echo "$@" > "$last"`)}
	start := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := c.SetMonthlyAxis(context.Background(), start, "in.nc", out); err != nil {
		t.Fatalf("SetMonthlyAxis: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "-s -f nc4 -z zip settaxis,1990-01-01,00:00:00,1mon in.nc " + out + "\n"
	if string(b) != want {
		t.Errorf("cdo invoked with %q, want %q", b, want)
	}
}

func TestObserve(t *testing.T) {
	var ops []string
	c := Observe(&CDO{Command: fakeTool(t, `echo 3`)}, func(op string, _ time.Duration, err error) {
		ops = append(ops, op)
	})
	if _, err := c.CountSteps(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0] != "ntime" {
		t.Errorf("observed %v, want [ntime]", ops)
	}
}
