// Package clock drives a running match at 1 Hz. Remaining time is always
// recomputed from a fixed deadline instant, so scheduling jitter never
// accumulates drift over a 30-minute session.
package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Driver receives the clock's output. The session engine implements it.
type Driver interface {
	// HandleTick delivers the authoritative remaining seconds. pushDue is
	// set on the ticks whose value should also be synced to the remote
	// store (captain only, every SyncEverySec seconds).
	HandleTick(remaining int, pushDue bool)
	// HandleTimeout fires once, when the deadline is reached. The clock
	// has already stopped itself.
	HandleTimeout()
}

// Config tunes the clock.
type Config struct {
	// SyncEverySec is the remote-sync cadence: ticks where the remaining
	// time is a multiple of this value request a push. The staleness this
	// trades for bandwidth is a deliberate tunable, not a constant.
	SyncEverySec int
}

// DefaultConfig returns the production cadence.
func DefaultConfig() Config {
	return Config{SyncEverySec: 5}
}

// Clock decrements a match's remaining time while it is running. It is
// inert until Start and stops itself at zero or on Stop.
type Clock struct {
	clk     clockwork.Clock
	driver  Driver
	captain bool
	cfg     Config

	mu       sync.Mutex
	cancel   chan struct{}
	deadline time.Time
}

// New builds a stopped clock. captain controls whether ticks ever request
// a remote push; viewers run the same local clock display-only.
func New(clk clockwork.Clock, driver Driver, captain bool, cfg Config) *Clock {
	if cfg.SyncEverySec <= 0 {
		cfg.SyncEverySec = DefaultConfig().SyncEverySec
	}
	return &Clock{
		clk:     clk,
		driver:  driver,
		captain: captain,
		cfg:     cfg,
	}
}

// Start anchors a new deadline remainingSec from now and begins ticking.
// Any previous run is cancelled first, so Start also re-anchors after a
// remote override.
func (c *Clock) Start(remainingSec int) {
	if remainingSec <= 0 {
		return
	}

	c.mu.Lock()
	c.stopLocked()
	cancel := make(chan struct{})
	c.cancel = cancel
	c.deadline = c.clk.Now().Add(time.Duration(remainingSec) * time.Second)
	deadline := c.deadline
	c.mu.Unlock()

	log.Debug().
		Time("deadline", deadline).
		Int("remaining_sec", remainingSec).
		Msg("clock started")

	go c.run(deadline, cancel)
}

// Stop cancels the current run. Safe to call repeatedly and while stopped.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Clock) stopLocked() {
	if c.cancel != nil {
		close(c.cancel)
		c.cancel = nil
	}
}

// Running reports whether a run is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// finish clears the run state if cancel is still the active run.
func (c *Clock) finish(cancel chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel == cancel {
		c.cancel = nil
	}
}

func (c *Clock) run(deadline time.Time, cancel chan struct{}) {
	now := c.clk.Now()
	remaining := secondsUntil(deadline, now)
	if remaining <= 0 {
		c.finish(cancel)
		c.driver.HandleTimeout()
		return
	}

	// Wake at whole-second boundaries measured off the deadline, not
	// "one second from now": remaining hits v exactly at deadline - v s.
	timer := c.clk.NewTimer(deadline.Add(-time.Duration(remaining-1) * time.Second).Sub(now))
	defer stopAndDrainTimer(timer)

	for {
		select {
		case <-timer.Chan():
			rem := secondsUntil(deadline, c.clk.Now())
			if rem <= 0 {
				c.finish(cancel)
				c.driver.HandleTimeout()
				return
			}
			pushDue := c.captain && rem%c.cfg.SyncEverySec == 0
			c.driver.HandleTick(rem, pushDue)

			next := deadline.Add(-time.Duration(rem-1) * time.Second)
			timer.Reset(next.Sub(c.clk.Now()))
		case <-cancel:
			return
		}
	}
}

// secondsUntil returns ceil(deadline-now) in whole seconds, never negative.
func secondsUntil(deadline, now time.Time) int {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// stopAndDrainTimer safely stops a timer and drains its channel, per the
// time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
