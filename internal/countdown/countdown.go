// Package countdown derives auction time-remaining locally from the seeded
// start/end timestamps. The derivation is not authoritative: server end-time
// enforcement can differ from the local wall clock, so the auctionEnded event
// always overrides it (ForceEnd).
package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseRunning
	PhaseEnded
)

const (
	// DefaultTick is the recomputation interval while the auction runs.
	DefaultTick = time.Second

	displayNotStarted = "Not started"
	displayEnded      = "Ended"
)

// Countdown recomputes remaining time for one auction window. The clock is
// injected so tests drive time explicitly.
type Countdown struct {
	start, end time.Time
	tick       time.Duration
	clock      clockwork.Clock

	forced    chan struct{}
	forceOnce sync.Once
}

func New(start, end time.Time, tick time.Duration, clock clockwork.Clock) *Countdown {
	if tick <= 0 {
		tick = DefaultTick
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Countdown{
		start:  start,
		end:    end,
		tick:   tick,
		clock:  clock,
		forced: make(chan struct{}),
	}
}

// PhaseAt classifies now against the auction window.
func (c *Countdown) PhaseAt(now time.Time) Phase {
	select {
	case <-c.forced:
		return PhaseEnded
	default:
	}
	switch {
	case now.Before(c.start):
		return PhaseNotStarted
	case now.Before(c.end):
		return PhaseRunning
	default:
		return PhaseEnded
	}
}

// FormatAt renders the phase for display: "Not started", "Ended", or the
// remaining duration as "Xh Ym Zs".
func (c *Countdown) FormatAt(now time.Time) string {
	switch c.PhaseAt(now) {
	case PhaseNotStarted:
		return displayNotStarted
	case PhaseEnded:
		return displayEnded
	}
	return formatRemaining(c.end.Sub(now))
}

// ForceEnd overrides the local derivation with the authoritative end signal.
// Any running tick loop stops and reports PhaseEnded immediately.
func (c *Countdown) ForceEnd() {
	c.forceOnce.Do(func() { close(c.forced) })
}

// Run drives onTick once per tick interval while the auction is running, plus
// one initial call on entry and one final PhaseEnded call. Before the start
// time it sleeps without ticking; if the window is already over it reports
// PhaseEnded and schedules nothing. Run returns when the auction ends, the
// context is cancelled, or ForceEnd fires.
func (c *Countdown) Run(ctx context.Context, onTick func(Phase, string)) {
	now := c.clock.Now()

	if c.PhaseAt(now) == PhaseNotStarted {
		onTick(PhaseNotStarted, displayNotStarted)
		select {
		case <-ctx.Done():
			return
		case <-c.forced:
			onTick(PhaseEnded, displayEnded)
			return
		case <-c.clock.After(c.start.Sub(now)):
		}
		now = c.clock.Now()
	}

	if c.PhaseAt(now) == PhaseEnded {
		onTick(PhaseEnded, displayEnded)
		return
	}

	onTick(PhaseRunning, formatRemaining(c.end.Sub(now)))

	ticker := c.clock.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.forced:
			onTick(PhaseEnded, displayEnded)
			return
		case <-ticker.Chan():
			now = c.clock.Now()
			if !now.Before(c.end) {
				onTick(PhaseEnded, displayEnded)
				return
			}
			onTick(PhaseRunning, formatRemaining(c.end.Sub(now)))
		}
	}
}

func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
