// Package tap resolves an undifferentiated stream of press events per
// control into distinct primary ("advance") and alternate actions, based
// on inter-tap timing. Each control keeps its own last-tap timestamp and
// its own cancelable pending timer.
package tap

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// ControlID keys one physical control point: the timer, or a player cell.
type ControlID string

// Policy selects how the first tap behaves.
type Policy int

const (
	// PolicyImmediate fires the primary action on the first tap right
	// away; only a second tap inside the window is intercepted and turned
	// into the alternate action. Used for the shared timer control, whose
	// pause/resume must feel instantaneous.
	PolicyImmediate Policy = iota

	// PolicyDeferred holds every primary action for the commit delay; a
	// second tap inside the window cancels it and fires the alternate
	// instead. Used for score cells, where a wrong score is costlier than
	// a one-second input lag.
	PolicyDeferred
)

// Config holds the timing parameters for one disambiguator.
type Config struct {
	Policy      Policy
	Window      time.Duration // double-tap disambiguation window
	CommitDelay time.Duration // deferred-primary delay (deferred policy)
}

// TimerConfig is the immediate policy used for the match clock control.
func TimerConfig() Config {
	return Config{Policy: PolicyImmediate, Window: 300 * time.Millisecond}
}

// PlayerCellConfig is the deferred policy used for player score cells.
// The window equals the commit delay, so a second tap always lands before
// the deferred advance commits.
func PlayerCellConfig() Config {
	return Config{Policy: PolicyDeferred, Window: time.Second, CommitDelay: time.Second}
}

// pendingAction is one scheduled deferred primary.
type pendingAction struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// Disambiguator turns taps into primary or alternate actions.
type Disambiguator struct {
	clk       clockwork.Clock
	cfg       Config
	primary   func(ControlID)
	alternate func(ControlID)

	mu      sync.Mutex
	last    map[ControlID]time.Time
	pending map[ControlID]*pendingAction
	closed  bool
}

// New builds a disambiguator. primary and alternate are invoked with the
// control the tap landed on; alternate runs synchronously inside Tap,
// deferred primaries run on their timer's goroutine.
func New(clk clockwork.Clock, cfg Config, primary, alternate func(ControlID)) *Disambiguator {
	return &Disambiguator{
		clk:       clk,
		cfg:       cfg,
		primary:   primary,
		alternate: alternate,
		last:      make(map[ControlID]time.Time),
		pending:   make(map[ControlID]*pendingAction),
	}
}

// Tap records one press on a control and resolves it per the policy.
func (d *Disambiguator) Tap(id ControlID) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}

	now := d.clk.Now()
	last, tapped := d.last[id]
	d.last[id] = now

	if tapped && now.Sub(last) < d.cfg.Window {
		// Second tap inside the window: alternate action, and any pending
		// deferred primary for this control dies with it.
		d.cancelPendingLocked(id)
		d.mu.Unlock()
		d.alternate(id)
		return
	}

	switch d.cfg.Policy {
	case PolicyImmediate:
		d.mu.Unlock()
		d.primary(id)
	case PolicyDeferred:
		d.schedulePrimaryLocked(id)
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		log.Warn().Int("policy", int(d.cfg.Policy)).Msg("unknown tap policy, dropping tap")
	}
}

// schedulePrimaryLocked arms the commit timer for a deferred primary,
// replacing any timer already pending on the same control.
func (d *Disambiguator) schedulePrimaryLocked(id ControlID) {
	d.cancelPendingLocked(id)

	p := &pendingAction{
		timer:  d.clk.NewTimer(d.cfg.CommitDelay),
		cancel: make(chan struct{}),
	}
	d.pending[id] = p

	go func() {
		select {
		case <-p.timer.Chan():
			d.mu.Lock()
			// Only fire if this pending action is still the current one.
			if d.pending[id] != p {
				d.mu.Unlock()
				return
			}
			delete(d.pending, id)
			d.mu.Unlock()
			d.primary(id)
		case <-p.cancel:
		}
	}()
}

// cancelPendingLocked stops and forgets the control's pending timer, if any.
// Canceling one control's timer never affects another's.
func (d *Disambiguator) cancelPendingLocked(id ControlID) {
	p, ok := d.pending[id]
	if !ok {
		return
	}
	delete(d.pending, id)
	close(p.cancel)
	stopAndDrainTimer(p.timer)
}

// Close cancels every pending timer. Called on view teardown so no stale
// mutation fires after navigation away.
func (d *Disambiguator) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id := range d.pending {
		d.cancelPendingLocked(id)
	}
}

func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
