package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// Phase names the batch in every line, e.g. "retrieve geopotential".
	Phase string

	// TotalChunks is the total number of chunks.
	TotalChunks int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to print a status line.
	// Default: 10s
	UpdateInterval time.Duration
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu         sync.Mutex
	completed  atomic.Int32
	skipped    atomic.Int32
	failed     atomic.Int32
	inProgress atomic.Int32
	bytes      atomic.Int64
	startTime  time.Time
	stopCh     chan struct{}
	doneCh     chan struct{}
	started    bool
	stopped    bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 10 * time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start prints the header and begins periodic status lines.
func (r *Reporter) Start() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.startTime = time.Now()
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[cdsretriever] %s: %d chunks\n", r.opts.Phase, r.opts.TotalChunks)
	go r.updateLoop()
}

// Stop prints the final status and stops the reporter.
func (r *Reporter) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	if r.stopped || !r.started {
		r.stopped = true
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// ChunkStarted marks a chunk as in progress.
func (r *Reporter) ChunkStarted() {
	if r == nil {
		return
	}
	r.inProgress.Add(1)
}

// ChunkCompleted marks a started chunk as done after transferring size bytes.
func (r *Reporter) ChunkCompleted(size int64) {
	if r == nil {
		return
	}
	r.bytes.Add(size)
	r.completed.Add(1)
	r.inProgress.Add(-1)
}

// ChunkSkipped marks a started chunk as done without any work.
func (r *Reporter) ChunkSkipped() {
	if r == nil {
		return
	}
	r.skipped.Add(1)
	r.completed.Add(1)
	r.inProgress.Add(-1)
}

// ChunkFailed marks a started chunk as failed.
func (r *Reporter) ChunkFailed() {
	if r == nil {
		return
	}
	r.failed.Add(1)
	r.inProgress.Add(-1)
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Completed  int
	Skipped    int
	Failed     int
	InProgress int
	Bytes      int64
}

// Snapshot returns the current counters.
func (r *Reporter) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		Completed:  int(r.completed.Load()),
		Skipped:    int(r.skipped.Load()),
		Failed:     int(r.failed.Load()),
		InProgress: int(r.inProgress.Load()),
		Bytes:      r.bytes.Load(),
	}
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	s := r.Snapshot()
	fmt.Fprintf(r.opts.Output, "[cdsretriever] Chunks: %d/%d done (%d skipped, %d failed) | %d in-progress | %s | %s\n",
		s.Completed,
		r.opts.TotalChunks,
		s.Skipped,
		s.Failed,
		s.InProgress,
		formatBytes(s.Bytes),
		formatDuration(time.Since(r.startTime)),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	s := r.Snapshot()
	fmt.Fprintf(r.opts.Output, "[cdsretriever] %s: %d/%d done (%d skipped, %d failed) | %s | Total time: %s\n",
		r.opts.Phase,
		s.Completed,
		r.opts.TotalChunks,
		s.Skipped,
		s.Failed,
		formatBytes(s.Bytes),
		formatDuration(time.Since(r.startTime)),
	)
}

// formatBytes renders b with binary units.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	v := float64(b) / unit
	for _, suffix := range []string{"KB", "MB", "GB"} {
		if v < unit {
			return fmt.Sprintf("%.2f %s", v, suffix)
		}
		v /= unit
	}
	return fmt.Sprintf("%.2f TB", v)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}
