package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oloapinivad/CDS-retriever/internal/codec/codectest"
)

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	v := &Verifier{Codec: &codectest.Fake{}}
	start := time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)

	complete := filepath.Join(dir, "complete.grb")
	if err := codectest.WriteMonths(complete, 1990, 1, 0); err != nil {
		t.Fatal(err)
	}
	short := filepath.Join(dir, "short.grb")
	if err := codectest.WriteSeries(short, start, 24*time.Hour, 6); err != nil {
		t.Fatal(err)
	}
	extra := filepath.Join(dir, "extra.grb")
	if err := codectest.WriteSeries(extra, start, 24*time.Hour, 13); err != nil {
		t.Fatal(err)
	}
	corrupt := filepath.Join(dir, "corrupt.grb")
	if err := codectest.WriteCorrupt(corrupt); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		verdict Verdict
		steps   int
	}{
		{"missing", filepath.Join(dir, "absent.grb"), Missing, 0},
		{"corrupt", corrupt, Corrupt, 0},
		{"incomplete", short, Incomplete, 6},
		{"complete", complete, Complete, 12},
		{"more than minimum", extra, Complete, 13},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := v.Check(context.Background(), tt.path, 12)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if res.Verdict != tt.verdict {
				t.Errorf("verdict = %s, want %s", res.Verdict, tt.verdict)
			}
			if res.Steps != tt.steps {
				t.Errorf("steps = %d, want %d", res.Steps, tt.steps)
			}
			if res.Verdict.NeedsRetrieval() == (tt.verdict == Complete) {
				t.Errorf("NeedsRetrieval = %v for %s", res.Verdict.NeedsRetrieval(), res.Verdict)
			}
		})
	}
}

func TestCheckCorruptCarriesError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.grb")
	if err := codectest.WriteCorrupt(path); err != nil {
		t.Fatal(err)
	}
	res, err := (&Verifier{Codec: &codectest.Fake{}}).Check(context.Background(), path, 12)
	if err != nil {
		t.Fatal(err)
	}
	var cerr *CorruptArtifactError
	if !errors.As(res.Err, &cerr) || cerr.Path != path {
		t.Errorf("expected CorruptArtifactError for %s, got %v", path, res.Err)
	}
}

func TestCheckCodecFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ok.grb")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	fake := &codectest.Fake{}
	boom := errors.New("cdo not installed")
	fake.Fail("ntime", boom)
	_, err := (&Verifier{Codec: fake}).Check(context.Background(), path, 12)
	if !errors.Is(err, boom) {
		t.Errorf("expected codec failure to surface, got %v", err)
	}
}
