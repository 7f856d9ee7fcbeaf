package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/oloapinivad/CDS-retriever/internal/codec"
	"github.com/oloapinivad/CDS-retriever/internal/config"
	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	cdshttp "github.com/oloapinivad/CDS-retriever/internal/http"
	"github.com/oloapinivad/CDS-retriever/internal/postproc"
	"github.com/oloapinivad/CDS-retriever/internal/retrieve"
	"github.com/oloapinivad/CDS-retriever/internal/scheduler"
	"github.com/oloapinivad/CDS-retriever/internal/verify"
)

func TestRunCommands(t *testing.T) {
	if code := run(nil); code != ExitInvalidArgs {
		t.Errorf("no args: exit %d, want %d", code, ExitInvalidArgs)
	}
	if code := run([]string{"help"}); code != ExitSuccess {
		t.Errorf("help: exit %d, want %d", code, ExitSuccess)
	}
	if code := run([]string{"upload"}); code != ExitInvalidArgs {
		t.Errorf("unknown command: exit %d, want %d", code, ExitInvalidArgs)
	}
	if code := run([]string{"run", "--no-such-flag"}); code != ExitInvalidArgs {
		t.Errorf("unknown flag: exit %d, want %d", code, ExitInvalidArgs)
	}
	if code := run([]string{"plan", "-h"}); code != ExitSuccess {
		t.Errorf("plan -h: exit %d, want %d", code, ExitSuccess)
	}
}

func TestExitCode(t *testing.T) {
	batch := func(err error) error {
		return &scheduler.BatchError{Failed: []scheduler.FailedTask{{Name: "chunk", Error: err}}}
	}
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"configuration", &config.ConfigurationError{Field: "nprocs", Reason: "must be positive"}, ExitInvalidArgs},
		{"invalid level", fmt.Errorf("geopotential: %w", &dataset.InvalidLevelError{Token: "555"}), ExitInvalidArgs},
		{"missing cdo", &codec.ToolError{Command: "cdo", Err: os.ErrNotExist}, ExitCodecError},
		{"unauthorized", batch(fmt.Errorf("submit: %w", cdshttp.ErrUnauthorized)), ExitArchiveError},
		{"chunk failed", batch(&retrieve.MaxAttemptsExceededError{Attempts: 5}), ExitChunkFailed},
		{"circuit breaker", &scheduler.CircuitBreakerError{ConsecutiveFailures: 3, Failed: []scheduler.FailedTask{{Name: "chunk", Error: errors.New("quota")}}}, ExitChunkFailed},
		{"conversion failed", batch(&codec.DecodeError{Op: "copy", Path: "x.grb"}), ExitCodecError},
		{"merge verification", &postproc.MergeVerificationError{Key: "k", Result: verify.Result{Verdict: verify.Incomplete}}, ExitValidationFailed},
		{"other", errors.New("boom"), ExitGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// fakeCDO writes a cdo stand-in that reports steps time steps for any file.
func fakeCDO(t *testing.T, steps int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cdo")
	script := fmt.Sprintf("#!/bin/sh\necho %d\n", steps)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeTestConfig(t *testing.T, tmpdir, storedir string) string {
	t.Helper()
	content := fmt.Sprintf(`
tmpdir: %s
storedir: %s
dataset: ERA5
varlist: geopotential
year:
  begin: 1990
  end: 1991
levelout: 500hPa
freq: mon
grid: 2.5x2.5
`, tmpdir, storedir)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearCredentials(t *testing.T) string {
	t.Helper()
	t.Setenv("CDSAPI_URL", "")
	t.Setenv("CDSAPI_KEY", "")
	t.Setenv("CDSRETRIEVER_CDS_KEY", "")
	return filepath.Join(t.TempDir(), "no-cdsapirc")
}

func TestValidateCommand(t *testing.T) {
	cdsrc := clearCredentials(t)
	tmpdir := t.TempDir()
	cfgPath := writeTestConfig(t, tmpdir, t.TempDir())
	cdo := fakeCDO(t, 12)

	args := []string{"--config", cfgPath, "--cdsrc", cdsrc, "--cdo", cdo}
	if code := runValidate(args); code != ExitValidationFailed {
		t.Fatalf("validate with nothing staged: exit %d, want %d", code, ExitValidationFailed)
	}

	desc := dataset.Descriptor{
		Dataset:   dataset.ERA5,
		Variable:  "geopotential",
		Frequency: dataset.Monthly,
		Level:     []string{"500hPa"},
		Grid:      "2.5x2.5",
	}
	for _, year := range []int{1990, 1991} {
		p := retrieve.StagingPath(tmpdir, desc, year)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("GRIB"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if code := runValidate(args); code != ExitSuccess {
		t.Errorf("validate with complete chunks: exit %d, want %d", code, ExitSuccess)
	}
	if code := runValidate(append(args, "--cdo", fakeCDO(t, 11))); code != ExitValidationFailed {
		t.Errorf("validate with short chunks: exit %d, want %d", code, ExitValidationFailed)
	}
}

func TestPlanCommand(t *testing.T) {
	cdsrc := clearCredentials(t)
	storedir := t.TempDir()
	cfgPath := writeTestConfig(t, t.TempDir(), storedir)

	if code := runPlan([]string{"-c", cfgPath, "--cdsrc", cdsrc}); code != ExitSuccess {
		t.Fatalf("plan on empty archive: exit %d, want %d", code, ExitSuccess)
	}

	merged := filepath.Join(storedir, "geopotential", "mon", "ERA5_geopotential_mon_2.5x2.5_500hPa_1990-2005.nc")
	if err := os.MkdirAll(filepath.Dir(merged), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(merged, []byte("netcdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if code := runPlan([]string{"-c", cfgPath, "--cdsrc", cdsrc}); code != ExitSuccess {
		t.Errorf("plan on archive: exit %d, want %d", code, ExitSuccess)
	}
}

func TestRunCommandRejectsBadConfig(t *testing.T) {
	cdsrc := clearCredentials(t)
	cfgPath := writeTestConfig(t, t.TempDir(), t.TempDir())

	// No archive key.
	if code := runPipeline([]string{"-c", cfgPath, "--cdsrc", cdsrc}); code != ExitInvalidArgs {
		t.Errorf("missing key: exit %d, want %d", code, ExitInvalidArgs)
	}
	// Unknown pressure level, caught before anything is opened.
	code := runPipeline([]string{"-c", cfgPath, "--cdsrc", cdsrc, "--cds-key", "k", "--level", "555"})
	if code != ExitInvalidArgs {
		t.Errorf("bad level: exit %d, want %d", code, ExitInvalidArgs)
	}
	// Only retrieving needs a key, but the area must still be valid.
	code = runPipeline([]string{"-c", cfgPath, "--cdsrc", cdsrc, "--no-retrieve", "--area", "60,-10"})
	if code != ExitInvalidArgs {
		t.Errorf("bad area: exit %d, want %d", code, ExitInvalidArgs)
	}
}

func TestLoadPrecedence(t *testing.T) {
	cdsrc := filepath.Join(t.TempDir(), ".cdsapirc")
	if err := os.WriteFile(cdsrc, []byte("url: https://rc.example/api\nkey: rc-key\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CDSAPI_URL", "")
	t.Setenv("CDSAPI_KEY", "")
	t.Setenv("CDSRETRIEVER_NPROCS", "3")
	cfgPath := writeTestConfig(t, t.TempDir(), t.TempDir())

	flags := newFlagSet("test", "")
	if code, ok := flags.parse([]string{"-c", cfgPath, "--cdsrc", cdsrc, "-j", "6", "--area", "global", "--no-postproc", "-v", "a,b"}); !ok {
		t.Fatalf("parse: exit %d", code)
	}
	cfg, err := flags.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NProcs != 6 {
		t.Errorf("flag should beat env: nprocs = %d", cfg.NProcs)
	}
	if cfg.CDS.Key != "rc-key" || cfg.CDS.URL != "https://rc.example/api" {
		t.Errorf("credentials = %+v", cfg.CDS)
	}
	if cfg.DoPostproc || !cfg.DoRetrieve {
		t.Errorf("actions: retrieve=%v postproc=%v", cfg.DoRetrieve, cfg.DoPostproc)
	}
	if len(cfg.VarList) != 2 || cfg.Freq != "mon" || cfg.Area != nil {
		t.Errorf("cfg = %+v", cfg)
	}
}
