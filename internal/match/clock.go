package match

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/ugaemi/netraiders-server/internal/game"
)

// TickAt returns the authoritative tick for a match that started at start.
// Integer arithmetic keeps whole seconds on exact tick boundaries.
func TickAt(start, now time.Time, tickRate int) int64 {
	elapsed := now.Sub(start)
	if elapsed <= 0 {
		return 0
	}
	// Whole seconds and the remainder are scaled separately so long matches
	// at high rates cannot overflow.
	rate := int64(tickRate)
	secs, rem := int64(elapsed/time.Second), int64(elapsed%time.Second)
	return secs*rate + rem*rate/int64(time.Second)
}

// EncodeStartTime serializes a match start as unix seconds.
func EncodeStartTime(t time.Time) ([]byte, error) {
	return json.Marshal(float64(t.UnixNano()) / float64(time.Second))
}

// DecodeStartTime parses a match start written by EncodeStartTime.
func DecodeStartTime(data []byte) (time.Time, error) {
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return time.Time{}, fmt.Errorf("decoding start time: %w", err)
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*float64(time.Second)))), nil
}

// Clock derives the shared tick counter from the match start time.
type Clock struct {
	start    time.Time
	tickRate int
	now      func() time.Time
	tick     atomic.Int64
}

// NewClock creates a clock and computes its initial tick.
func NewClock(start time.Time, tickRate int, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	c := &Clock{start: start, tickRate: tickRate, now: now}
	c.tick.Store(TickAt(start, now(), tickRate))
	return c
}

// Tick returns the current authoritative tick.
func (c *Clock) Tick() int64 {
	return c.tick.Load()
}

// StartTime returns the match start.
func (c *Clock) StartTime() time.Time {
	return c.start
}

// Advance recomputes the tick from the wall clock. The tick never decreases.
func (c *Clock) Advance() int64 {
	next := TickAt(c.start, c.now(), c.tickRate)
	for {
		cur := c.tick.Load()
		if next <= cur {
			return cur
		}
		if c.tick.CompareAndSwap(cur, next) {
			return next
		}
	}
}

// Run advances the tick once per tick interval until ctx is done. Each
// iteration sleeps for the interval minus the time spent advancing.
func (c *Clock) Run(ctx context.Context) error {
	interval := game.TickInterval(c.tickRate)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		began := time.Now()
		c.Advance()
		wait := interval - time.Since(began)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}
