package cds

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	cdshttp "github.com/oloapinivad/CDS-retriever/internal/http"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fakeCDS mimics the job lifecycle of the retrieve API.
type fakeCDS struct {
	t        *testing.T
	mu       sync.Mutex
	polls    int
	final    string
	payload  string
	inputs   dataset.Request
	kind     string
	deleted  bool
	truncate bool
	server   *httptest.Server
}

func newFakeCDS(t *testing.T, final string) *fakeCDS {
	f := &fakeCDS{t: t, final: final, payload: "GRIB-payload"}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCDS) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if strings.HasPrefix(r.URL.Path, "/api/") && r.Header.Get("PRIVATE-TOKEN") != "key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/execution"):
		f.kind = strings.Split(strings.TrimPrefix(r.URL.Path, "/api/retrieve/v1/processes/"), "/")[0]
		var body struct {
			Inputs dataset.Request `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode submission: %v", err)
		}
		f.inputs = body.Inputs
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"jobID":"job-1","status":"accepted"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/retrieve/v1/jobs/job-1":
		f.polls++
		status := StatusRunning
		if f.polls >= 3 {
			status = f.final
		}
		w.Write([]byte(`{"jobID":"job-1","status":"` + status + `"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/retrieve/v1/jobs/job-1/results":
		if f.final != StatusSuccessful {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"title":"The job has failed","detail":"MARS returned no data"}`))
			return
		}
		w.Write([]byte(`{"asset":{"value":{"href":"` + f.server.URL + `/download/job-1.grib","file:size":12}}}`))
	case r.Method == http.MethodDelete && r.URL.Path == "/api/retrieve/v1/jobs/job-1":
		f.deleted = true
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == "/download/job-1.grib":
		if f.truncate {
			w.Header().Set("Content-Length", "1000")
		}
		io.WriteString(w, f.payload)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(f *fakeCDS) *Client {
	opts := cdshttp.DefaultOptions()
	opts.RetryBackoff = time.Millisecond
	opts.RetryMaxBackoff = time.Millisecond
	return New(Options{
		URL:          f.server.URL + "/api/",
		Key:          "key",
		PollInterval: time.Millisecond,
	}, cdshttp.NewClient(opts), nil)
}

func testRequest(t *testing.T) (string, dataset.Request) {
	t.Helper()
	res, err := dataset.Resolve(dataset.Descriptor{
		Dataset:   dataset.ERA5,
		Variable:  "geopotential",
		Frequency: dataset.Monthly,
		Level:     []string{"500hPa"},
		Grid:      "2.5x2.5",
	})
	if err != nil {
		t.Fatal(err)
	}
	return res.Kind, dataset.NewRequest(res, 1990, dataset.Months())
}

func TestRetrieve(t *testing.T) {
	f := newFakeCDS(t, StatusSuccessful)
	kind, req := testRequest(t)
	target := filepath.Join(t.TempDir(), "geopotential", "out.grb")

	n, err := newTestClient(f).Retrieve(context.Background(), kind, req, target)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if n != int64(len(f.payload)) {
		t.Errorf("expected %d bytes, got %d", len(f.payload), n)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read target: %v", err)
	}
	if string(data) != f.payload {
		t.Errorf("target content = %q", data)
	}
	if _, err := os.Stat(target + ".part"); !os.IsNotExist(err) {
		t.Error("partial file left behind")
	}

	if f.kind != "reanalysis-era5-pressure-levels-monthly-means" {
		t.Errorf("submitted to %q", f.kind)
	}
	if f.inputs.Year != "1990" || len(f.inputs.PressureLevel) != 1 || f.inputs.PressureLevel[0] != "500" {
		t.Errorf("unexpected inputs %+v", f.inputs)
	}
	if f.polls < 3 {
		t.Errorf("expected polling until settled, got %d polls", f.polls)
	}
	if !f.deleted {
		t.Error("expected finished job to be deleted")
	}
}

func TestRetrieveJobFailed(t *testing.T) {
	f := newFakeCDS(t, StatusFailed)
	kind, req := testRequest(t)
	target := filepath.Join(t.TempDir(), "out.grb")

	_, err := newTestClient(f).Retrieve(context.Background(), kind, req, target)
	var jerr *JobFailedError
	if !errors.As(err, &jerr) {
		t.Fatalf("expected JobFailedError, got %v", err)
	}
	if !strings.Contains(jerr.Detail, "MARS returned no data") {
		t.Errorf("expected failure detail, got %q", jerr.Detail)
	}
	if cdshttp.IsTransient(err) {
		t.Error("failed jobs must not be retried")
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("no file should exist for a failed job")
	}
}

func TestRetrieveTruncatedDownload(t *testing.T) {
	f := newFakeCDS(t, StatusSuccessful)
	f.truncate = true
	kind, req := testRequest(t)
	target := filepath.Join(t.TempDir(), "out.grb")

	_, err := newTestClient(f).Retrieve(context.Background(), kind, req, target)
	if !cdshttp.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	for _, p := range []string{target, target + ".part"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist after a truncated download", p)
		}
	}
}

func TestRetrieveUnauthorized(t *testing.T) {
	f := newFakeCDS(t, StatusSuccessful)
	c := newTestClient(f)
	c.opts.Key = "wrong"
	kind, req := testRequest(t)

	_, err := c.Retrieve(context.Background(), kind, req, filepath.Join(t.TempDir(), "out.grb"))
	if !errors.Is(err, cdshttp.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}
