// Package scheduler runs independent tasks in barrier-synchronised waves.
//
// Tasks are split into waves of at most Size tasks. Every task of a wave
// runs in its own goroutine and the next wave starts only when the whole
// wave has finished. A failing task does not cancel its siblings; failures
// are collected and reported together once all waves have run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Task is one unit of work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// FailedTask records a task that returned an error.
type FailedTask struct {
	Name  string
	Error error
}

// BatchError lists every failed task of a batch.
type BatchError struct {
	Failed []FailedTask
}

func (e *BatchError) Error() string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.Name
	}
	return fmt.Sprintf("%d task(s) failed: %s", len(e.Failed), strings.Join(names, ", "))
}

// Unwrap exposes the individual task errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Error
	}
	return errs
}

// CircuitBreakerError is returned when too many consecutive tasks failed
// and the remaining waves were not launched.
type CircuitBreakerError struct {
	ConsecutiveFailures int
	Failed              []FailedTask
	Skipped             int // tasks never launched
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker tripped: %d consecutive failures, %d task(s) not launched", e.ConsecutiveFailures, e.Skipped)
}

func (e *CircuitBreakerError) Unwrap() []error {
	return (&BatchError{Failed: e.Failed}).Unwrap()
}

// Scheduler dispatches tasks in waves.
type Scheduler struct {
	// Size is the number of tasks per wave. Default: 1
	Size int

	// MaxConsecutiveFailures stops launching waves once that many tasks
	// in a row have failed. Zero disables the breaker.
	MaxConsecutiveFailures int

	Logger *zap.Logger
}

// Waves splits tasks into consecutive groups of at most size.
func Waves(tasks []Task, size int) [][]Task {
	if size <= 0 {
		size = 1
	}
	var waves [][]Task
	for start := 0; start < len(tasks); start += size {
		end := start + size
		if end > len(tasks) {
			end = len(tasks)
		}
		waves = append(waves, tasks[start:end])
	}
	return waves
}

// Run executes tasks wave by wave. It returns a *BatchError if any task
// failed, or the context error if ctx was cancelled before all waves were
// launched; in the latter case the BatchError of the completed waves, if
// any, is joined to it.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) error {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	waves := Waves(tasks, s.Size)
	var failed []FailedTask
	consecutive := 0
	launched := 0

	for i, wave := range waves {
		if err := ctx.Err(); err != nil {
			log.Warn("scheduler: cancelled, not launching remaining waves",
				zap.Int("wave", i+1), zap.Int("waves", len(waves)))
			return errors.Join(err, batchError(failed))
		}

		start := time.Now()
		results := make([]error, len(wave))
		var g errgroup.Group
		for j, task := range wave {
			j, task := j, task
			g.Go(func() error {
				results[j] = task.Run(ctx)
				return nil
			})
		}
		g.Wait()

		launched += len(wave)
		nfailed := 0
		for j, err := range results {
			if err != nil {
				nfailed++
				consecutive++
				failed = append(failed, FailedTask{Name: wave[j].Name, Error: err})
			} else {
				consecutive = 0
			}
		}
		log.Debug("scheduler: wave done",
			zap.Int("wave", i+1),
			zap.Int("waves", len(waves)),
			zap.Int("tasks", len(wave)),
			zap.Int("failed", nfailed),
			zap.Duration("elapsed", time.Since(start)))

		if s.MaxConsecutiveFailures > 0 && consecutive >= s.MaxConsecutiveFailures && i < len(waves)-1 {
			log.Error("scheduler: circuit breaker tripped",
				zap.Int("consecutive_failures", consecutive),
				zap.Int("not_launched", len(tasks)-launched))
			return &CircuitBreakerError{
				ConsecutiveFailures: consecutive,
				Failed:              failed,
				Skipped:             len(tasks) - launched,
			}
		}
	}

	if err := batchError(failed); err != nil {
		return err
	}
	return nil
}

func batchError(failed []FailedTask) error {
	if len(failed) == 0 {
		return nil
	}
	return &BatchError{Failed: failed}
}
