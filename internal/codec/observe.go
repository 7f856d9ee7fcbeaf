package codec

import (
	"context"
	"time"
)

// ObserveFunc is called after every codec operation.
type ObserveFunc func(op string, elapsed time.Duration, err error)

// Observe wraps c so that fn sees the duration and outcome of each call.
func Observe(c Codec, fn ObserveFunc) Codec {
	if fn == nil {
		return c
	}
	return &observed{c: c, fn: fn}
}

type observed struct {
	c  Codec
	fn ObserveFunc
}

func (o *observed) track(op string, start time.Time, err error) {
	o.fn(op, time.Since(start), err)
}

func (o *observed) CountSteps(ctx context.Context, path string) (int, error) {
	start := time.Now()
	n, err := o.c.CountSteps(ctx, path)
	o.track("ntime", start, err)
	return n, err
}

func (o *observed) Convert(ctx context.Context, in, out string) error {
	start := time.Now()
	err := o.c.Convert(ctx, in, out)
	o.track("copy", start, err)
	return err
}

func (o *observed) Concat(ctx context.Context, inputs []string, out string) error {
	start := time.Now()
	err := o.c.Concat(ctx, inputs, out)
	o.track("cat", start, err)
	return err
}

func (o *observed) DayMean(ctx context.Context, in, out string) error {
	start := time.Now()
	err := o.c.DayMean(ctx, in, out)
	o.track("daymean", start, err)
	return err
}

func (o *observed) MonMean(ctx context.Context, in, out string) error {
	start := time.Now()
	err := o.c.MonMean(ctx, in, out)
	o.track("monmean", start, err)
	return err
}

func (o *observed) ShiftTime(ctx context.Context, shift time.Duration, in, out string) error {
	start := time.Now()
	err := o.c.ShiftTime(ctx, shift, in, out)
	o.track("shifttime", start, err)
	return err
}

func (o *observed) SetMonthlyAxis(ctx context.Context, start time.Time, in, out string) error {
	begin := time.Now()
	err := o.c.SetMonthlyAxis(ctx, start, in, out)
	o.track("settaxis", begin, err)
	return err
}

func (o *observed) FirstTimestamp(ctx context.Context, path string) (time.Time, error) {
	start := time.Now()
	ts, err := o.c.FirstTimestamp(ctx, path)
	o.track("showtimestamp", start, err)
	return ts, err
}
