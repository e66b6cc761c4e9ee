package booking

import (
	"context"
	"log/slog"
	"time"
)

// Waiter blocks a booking flow until its window opens, re-reading the clock
// on a fixed cadence. The wait is cancelled through its context; the
// dispatcher keeps the cancel func so /cancel can abort a pending booking.
type Waiter struct {
	Interval time.Duration    // poll cadence, defaults to 60s
	Buffer   time.Duration    // settle delay once open, defaults to 1s
	Now      func() time.Time // injectable clock, defaults to time.Now
	Logger   *slog.Logger
}

// Wait returns nil once the window is open. If the window is not yet open it
// calls notify exactly once with the opening instant, then polls until open
// and sleeps one extra buffer interval to absorb clock skew at the instant
// reservation opens. Returns ctx.Err() when cancelled.
func (w *Waiter) Wait(ctx context.Context, win Window, notify func(opensAt time.Time)) error {
	if win.OpenAt(w.now()) {
		return nil
	}

	if notify != nil {
		notify(win.OpensAt)
	}
	w.logger().Info("waiting for booking window",
		"opens_at", win.OpensAt,
		"travel", win.Travel,
	)

	ticker := time.NewTicker(w.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger().Info("booking wait cancelled", "opens_at", win.OpensAt)
			return ctx.Err()
		case <-ticker.C:
			if !win.OpenAt(w.now()) {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.buffer()):
				w.logger().Info("booking window open", "opens_at", win.OpensAt)
				return nil
			}
		}
	}
}

func (w *Waiter) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Waiter) interval() time.Duration {
	if w.Interval > 0 {
		return w.Interval
	}
	return time.Minute
}

func (w *Waiter) buffer() time.Duration {
	if w.Buffer > 0 {
		return w.Buffer
	}
	return time.Second
}

func (w *Waiter) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}
