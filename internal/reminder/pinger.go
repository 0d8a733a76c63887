package reminder

import (
	"context"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// PingSignal drives a Pinger's state machine.
type PingSignal int

const (
	SignalStart PingSignal = iota
	SignalStop
	SignalEnd
)

func (s PingSignal) String() string {
	switch s {
	case SignalStart:
		return "start"
	case SignalStop:
		return "stop"
	case SignalEnd:
		return "end"
	default:
		return "unknown"
	}
}

// PingStatus is a Pinger's observable state.
type PingStatus int

const (
	StatusStopped PingStatus = iota
	StatusActive
)

// Pinger is the per-recipient attention-getting loop. While active it
// keeps sending a transient mention and retracting it immediately, pacing
// itself by the shared active count so many simultaneous pingers don't
// burst the delivery rate limit.
//
// One Pinger exists per recipient; reminder jobs only ever send it
// signals, the registry owns lookup and lifetime.
type Pinger struct {
	recipient transport.Recipient
	delivery  transport.Delivery
	clock     Clock
	active    *activeCounter
	base      func() time.Duration
	bus       eventbus.Bus
	log       logx.Logger

	mu      sync.Mutex
	status  PingStatus
	ended   bool
	signals chan PingSignal
}

func newPinger(recipient transport.Recipient, delivery transport.Delivery, clock Clock, active *activeCounter, base func() time.Duration, bus eventbus.Bus, log logx.Logger) *Pinger {
	return &Pinger{
		recipient: recipient,
		delivery:  delivery,
		clock:     clock,
		active:    active,
		base:      base,
		bus:       bus,
		log:       log,
		signals:   make(chan PingSignal, 1),
	}
}

// Signal delivers a signal with latest-wins semantics: a signal that has
// not been consumed yet is replaced, never queued behind. Signalling an
// ended Pinger is a no-op, not an error.
func (p *Pinger) Signal(s PingSignal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return
	}
	for {
		select {
		case p.signals <- s:
			return
		default:
		}
		// Slot full: drop the stale value and retry.
		select {
		case <-p.signals:
		default:
		}
	}
}

// Status reports Active while the ping loop runs, Stopped otherwise
// (including after End).
func (p *Pinger) Status() PingStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Pinger) setStatus(st PingStatus) {
	p.mu.Lock()
	p.status = st
	p.mu.Unlock()
}

// end marks the Pinger absorbing and closes its mailbox. Guarded by the
// same mutex Signal takes, so no send can race the close.
func (p *Pinger) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return
	}
	p.status = StatusStopped
	p.ended = true
	close(p.signals)
}

// run is the coordinator goroutine. It exits on SignalEnd or context
// cancellation; Stop only pauses it back to the idle wait.
func (p *Pinger) run(ctx context.Context) {
	for {
		var s PingSignal
		select {
		case <-ctx.Done():
			p.end()
			return
		case s = <-p.signals:
		}

		switch s {
		case SignalStop:
			// Idempotent: stopping while stopped stays stopped.
			p.setStatus(StatusStopped)
		case SignalEnd:
			p.end()
			return
		case SignalStart:
			if !p.pingLoop(ctx) {
				p.end()
				return
			}
		}
	}
}

// pingLoop runs the ghost-ping cycle until a Stop (returns true) or an
// End/shutdown (returns false).
func (p *Pinger) pingLoop(ctx context.Context) bool {
	p.setStatus(StatusActive)
	p.active.inc()
	p.bus.Publish(eventbus.Event{Type: eventbus.TypePingStarted, Data: int64(p.recipient)})
	defer func() {
		p.active.dec()
		p.bus.Publish(eventbus.Event{Type: eventbus.TypePingStopped, Data: int64(p.recipient)})
	}()

	for {
		ref, err := p.delivery.SendTransientPing(ctx, p.recipient)
		if err != nil {
			// Recovered locally: the pacing wait below doubles as the retry
			// backoff, and the recipient is expected to become reachable.
			p.log.Debug("transient ping failed", logx.Err(err))
		} else {
			// Retraction is best-effort; a ping that stays visible is harmless.
			_ = p.delivery.Retract(ctx, ref)
		}

		n := p.active.get()
		if n < 1 {
			n = 1
		}
		pace := p.base() * time.Duration(n)

		timer := p.clock.NewTimer(pace)
		select {
		case <-timer.C():
		case s := <-p.signals:
			timer.Stop()
			switch s {
			case SignalStart:
				// Already active; restart the cycle immediately.
			case SignalStop:
				p.setStatus(StatusStopped)
				return true
			case SignalEnd:
				return false
			}
		case <-ctx.Done():
			timer.Stop()
			return false
		}
	}
}
