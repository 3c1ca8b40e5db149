package downtime

import (
	"context"
	"time"
)

// Tick is one sample of the live elapsed projection.
type Tick struct {
	Elapsed time.Duration `json:"elapsed"`
	Display string        `json:"display"`
}

// Source reports the live elapsed time of a downtime event and false once
// it is no longer ongoing.
type Source interface {
	Elapsed() (time.Duration, bool)
}

// Watch calls fn immediately and then every interval with the elapsed time
// of src. It returns nil once the event stops being ongoing and ctx.Err()
// when ctx is done. The ticker is always stopped on return.
func Watch(ctx context.Context, src Source, interval time.Duration, fn func(Tick)) error {
	if interval <= 0 {
		interval = time.Second
	}
	emit := func() bool {
		d, ok := src.Elapsed()
		if !ok {
			return false
		}
		fn(Tick{Elapsed: d, Display: FormatElapsed(d)})
		return true
	}
	if !emit() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !emit() {
				return nil
			}
		}
	}
}
