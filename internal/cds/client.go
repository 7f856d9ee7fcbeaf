// Package cds is a client for the Climate Data Store retrieve API.
//
// A retrieval is a job: the request is submitted to the process named by
// its kind, the job is polled until it settles, and the resulting asset is
// downloaded. Only the download itself is a single-shot transfer; its
// transient failures are left to the caller to retry.
package cds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
	cdshttp "github.com/oloapinivad/CDS-retriever/internal/http"
)

// DefaultURL is the public CDS API endpoint.
const DefaultURL = "https://cds.climate.copernicus.eu/api"

// Job states reported by the API.
const (
	StatusAccepted   = "accepted"
	StatusRunning    = "running"
	StatusSuccessful = "successful"
	StatusFailed     = "failed"
	StatusRejected   = "rejected"
	StatusDismissed  = "dismissed"
)

// Options configures the client.
type Options struct {
	// URL is the API root. Default: DefaultURL
	URL string

	// Key is the personal access token.
	Key string

	// PollInterval is the first wait between status polls; it grows by half
	// on every poll up to MaxPollInterval.
	// Default: 2s
	PollInterval time.Duration

	// MaxPollInterval caps the wait between polls.
	// Default: 60s
	MaxPollInterval time.Duration
}

// JobFailedError reports a job the archive refused or could not complete.
// It is not retried.
type JobFailedError struct {
	JobID  string
	Status string
	Detail string
}

func (e *JobFailedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("cds: job %s %s: %s", e.JobID, e.Status, e.Detail)
	}
	return fmt.Sprintf("cds: job %s %s", e.JobID, e.Status)
}

type execution struct {
	Inputs dataset.Request `json:"inputs"`
}

type jobStatus struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

type jobResults struct {
	Asset struct {
		Value struct {
			Href string `json:"href"`
			Size int64  `json:"file:size"`
		} `json:"value"`
	} `json:"asset"`
}

type errorDetail struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Client submits and downloads retrievals.
type Client struct {
	transfer *cdshttp.Client
	opts     Options
	logger   *zap.Logger
}

// New creates a client using transfer for all HTTP traffic.
func New(opts Options, transfer *cdshttp.Client, logger *zap.Logger) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxPollInterval < opts.PollInterval {
		opts.MaxPollInterval = 60 * time.Second
		if opts.MaxPollInterval < opts.PollInterval {
			opts.MaxPollInterval = opts.PollInterval
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{transfer: transfer, opts: opts, logger: logger}
}

func (c *Client) header() http.Header {
	return http.Header{"PRIVATE-TOKEN": []string{c.opts.Key}}
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.opts.URL + "/retrieve/v1/" + strings.Join(escaped, "/")
}

// Retrieve runs req against the process kind and stores the result at
// target. The file appears at target only once completely downloaded.
func (c *Client) Retrieve(ctx context.Context, kind string, req dataset.Request, target string) (int64, error) {
	id, err := c.submit(ctx, kind, req)
	if err != nil {
		return 0, err
	}
	log := c.logger.With(zap.String("job", id), zap.String("kind", kind), zap.String("year", req.Year))
	log.Debug("job submitted")

	if err := c.wait(ctx, id, log); err != nil {
		return 0, err
	}

	var res jobResults
	if err := c.transfer.DoJSON(ctx, http.MethodGet, c.endpoint("jobs", id, "results"), c.header(), nil, &res); err != nil {
		return 0, fmt.Errorf("cds: results of job %s: %w", id, err)
	}
	href := res.Asset.Value.Href
	if href == "" {
		return 0, &JobFailedError{JobID: id, Status: StatusSuccessful, Detail: "no asset in results"}
	}

	n, err := c.download(ctx, href, target)
	if err != nil {
		return n, err
	}
	log.Debug("job downloaded", zap.Int64("bytes", n), zap.String("target", target))

	// The archive keeps finished jobs around; removing them is a courtesy.
	if err := c.transfer.DoJSON(ctx, http.MethodDelete, c.endpoint("jobs", id), c.header(), nil, nil); err != nil {
		log.Debug("job cleanup failed", zap.Error(err))
	}
	return n, nil
}

func (c *Client) submit(ctx context.Context, kind string, req dataset.Request) (string, error) {
	var st jobStatus
	err := c.transfer.DoJSON(ctx, http.MethodPost, c.endpoint("processes", kind, "execution"), c.header(), execution{Inputs: req}, &st)
	if err != nil {
		return "", fmt.Errorf("cds: submit %s: %w", kind, err)
	}
	if st.JobID == "" {
		return "", fmt.Errorf("cds: submit %s: response carries no job id", kind)
	}
	return st.JobID, nil
}

// wait polls the job until it leaves the accepted and running states.
func (c *Client) wait(ctx context.Context, id string, log *zap.Logger) error {
	interval := c.opts.PollInterval
	last := ""
	for {
		var st jobStatus
		if err := c.transfer.DoJSON(ctx, http.MethodGet, c.endpoint("jobs", id), c.header(), nil, &st); err != nil {
			return fmt.Errorf("cds: poll job %s: %w", id, err)
		}
		if st.Status != last {
			log.Info("job status", zap.String("status", st.Status))
			last = st.Status
		}

		switch st.Status {
		case StatusSuccessful:
			return nil
		case StatusAccepted, StatusRunning:
		default:
			return &JobFailedError{JobID: id, Status: st.Status, Detail: c.failureDetail(ctx, id)}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval += interval / 2
		if interval > c.opts.MaxPollInterval {
			interval = c.opts.MaxPollInterval
		}
	}
}

// failureDetail fetches the error document the results endpoint returns for
// a failed job.
func (c *Client) failureDetail(ctx context.Context, id string) string {
	var detail errorDetail
	err := c.transfer.DoJSON(ctx, http.MethodGet, c.endpoint("jobs", id, "results"), c.header(), nil, &detail)
	if err != nil {
		return err.Error()
	}
	return strings.TrimSpace(detail.Title + " " + detail.Detail)
}

func (c *Client) download(ctx context.Context, href, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("cds: create staging dir: %w", err)
	}
	part := target + ".part"
	f, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("cds: create %s: %w", part, err)
	}

	n, err := c.transfer.Download(ctx, href, nil, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("cds: close %s: %w", part, cerr)
	}
	if err != nil {
		os.Remove(part)
		return n, err
	}
	if err := os.Rename(part, target); err != nil {
		os.Remove(part)
		return n, fmt.Errorf("cds: rename %s: %w", part, err)
	}
	return n, nil
}
