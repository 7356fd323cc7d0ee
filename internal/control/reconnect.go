package control

import (
	"log/slog"
	"time"
)

// DefaultReconnectDelay is the fixed wait before a reconnect attempt.
const DefaultReconnectDelay = 3 * time.Second

type pendingReconnect struct {
	timer Timer
}

// reconnector schedules one delayed reconnect attempt per unexpected
// disconnect. Attempts are not capped; each one runs the full connect flow
// and reports its own outcome. All methods run on the controller loop.
type reconnector struct {
	clock   Clock
	post    func(func()) bool
	delay   time.Duration
	ready   func() bool
	attempt func()

	pending  *pendingReconnect
	attempts int // since the last Ready
}

func newReconnector(clock Clock, post func(func()) bool, delay time.Duration, ready func() bool, attempt func()) *reconnector {
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	return &reconnector{clock: clock, post: post, delay: delay, ready: ready, attempt: attempt}
}

// OnUnexpectedDisconnect schedules an attempt unless one is pending or the
// controller is already Ready. It reports whether a timer was started.
func (r *reconnector) OnUnexpectedDisconnect() bool {
	if r.pending != nil || r.ready() {
		return false
	}
	p := &pendingReconnect{}
	p.timer = r.clock.AfterFunc(r.delay, func() {
		r.post(func() { r.fire(p) })
	})
	r.pending = p
	slog.Info("[BLE] reconnect scheduled", "delay", r.delay, "attempt", r.attempts+1)
	return true
}

// Pending reports whether an attempt is scheduled.
func (r *reconnector) Pending() bool {
	return r.pending != nil
}

// Attempts returns how many attempts fired since the last Reset.
func (r *reconnector) Attempts() int {
	return r.attempts
}

// Cancel drops the scheduled attempt, if any.
func (r *reconnector) Cancel() {
	if r.pending == nil {
		return
	}
	r.pending.timer.Stop()
	r.pending = nil
}

// Reset clears the attempt count after a successful connection.
func (r *reconnector) Reset() {
	r.attempts = 0
}

func (r *reconnector) fire(p *pendingReconnect) {
	if r.pending != p {
		return
	}
	r.pending = nil
	r.attempts++
	r.attempt()
}
