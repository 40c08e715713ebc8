package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// StartDelay returns how long to wait from now until the next hh:mm in
// now's location. A time earlier today means tomorrow.
func StartDelay(now time.Time, hhmm string) (time.Duration, error) {
	at, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("run_at_time %q: %w", hhmm, err)
	}
	target := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, now.Location())
	if target.Before(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target.Sub(now), nil
}

// WaitUntilStart blocks until hh:mm, or returns ctx.Err() if ctx ends
// first. An empty hhmm returns at once.
func WaitUntilStart(ctx context.Context, clk clockwork.Clock, hhmm string) error {
	if hhmm == "" {
		return nil
	}
	delay, err := StartDelay(clk.Now(), hhmm)
	if err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(delay):
		return nil
	}
}
