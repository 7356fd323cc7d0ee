package control

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chaz8081/carrito/internal/ble"
	"github.com/chaz8081/carrito/internal/ble/bletest"
	"github.com/chaz8081/carrito/internal/permission"
)

var maka = ble.Device{Name: "MAKA", Address: "AA:BB:CC:DD:EE:FF", RSSI: -45}

// fakeClock fires timers only when told to.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Active returns the number of armed timers with duration d (0 = any).
func (c *fakeClock) Active(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired && (d == 0 || t.d == d) {
			n++
		}
	}
	return n
}

// Fire runs every armed timer with duration d and returns how many fired.
func (c *fakeClock) Fire(d time.Duration) int {
	c.mu.Lock()
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.d == d {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

// fakePlatform holds permission requests until answered.
type fakePlatform struct {
	mu       sync.Mutex
	granted  bool
	requests int
	done     func(bool)
}

func (p *fakePlatform) Granted(permission.Permission) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

func (p *fakePlatform) Request(_ []permission.Permission, done func(bool)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests++
	p.done = done
	return nil
}

func (p *fakePlatform) setGranted(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted = granted
}

func (p *fakePlatform) answer(granted bool) {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.granted = granted
	p.mu.Unlock()
	done(granted)
}

func (p *fakePlatform) requestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

// fakeRadio holds power-on requests until answered.
type fakeRadio struct {
	mu       sync.Mutex
	present  bool
	powered  bool
	requests int
	done     func(bool)
}

func (r *fakeRadio) Present() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.present
}

func (r *fakeRadio) Powered() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powered, nil
}

func (r *fakeRadio) RequestPower(done func(bool)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	r.done = done
	return nil
}

func (r *fakeRadio) answer(on bool) {
	r.mu.Lock()
	done := r.done
	r.done = nil
	r.powered = on
	r.mu.Unlock()
	done(on)
}

type harness struct {
	t        *testing.T
	ctl      *Controller
	adapter  *bletest.Adapter
	clock    *fakeClock
	platform *fakePlatform
	radio    *fakeRadio

	mu       sync.Mutex
	statuses []Status
	drained  chan struct{}
}

func newHarness(t *testing.T, modify ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t: t,
		adapter: bletest.NewAdapter(bletest.Layout{
			ServiceUUID:        ble.ServiceUUID,
			CharacteristicUUID: ble.CharacteristicUUID,
		}),
		clock:    &fakeClock{},
		platform: &fakePlatform{granted: true},
		radio:    &fakeRadio{present: true, powered: true},
		drained:  make(chan struct{}),
	}
	opts := DefaultOptions()
	opts.Clock = h.clock
	opts.StatusBuffer = 256
	for _, m := range modify {
		m(&opts)
	}
	h.ctl = New(h.adapter, h.radio, permission.NewGate(permission.TierModern, h.platform), opts)

	go func() {
		defer close(h.drained)
		for st := range h.ctl.Statuses() {
			h.mu.Lock()
			h.statuses = append(h.statuses, st)
			h.mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		h.ctl.Close()
		<-h.drained
	})
	return h
}

func (h *harness) waitState(want State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.ctl.State() == want },
		time.Second, time.Millisecond, "state never became %s (is %s)", want, h.ctl.State())
}

func (h *harness) waitStatus(kind StatusKind) Status {
	h.t.Helper()
	var found Status
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		for _, st := range h.statuses {
			if st.Kind == kind {
				found = st
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond, "no %q status", kind)
	return found
}

func (h *harness) sawStatus(kind StatusKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, st := range h.statuses {
		if st.Kind == kind {
			return true
		}
	}
	return false
}

func (h *harness) waitScanning() {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.adapter.ActiveScans() == 1 },
		time.Second, time.Millisecond, "scan never started")
}

// connectReady drives the controller to Ready and returns the live link.
func (h *harness) connectReady() *bletest.Connection {
	h.t.Helper()
	h.ctl.RequestConnect()
	h.waitScanning()
	h.adapter.Advertise(maka)
	h.waitState(Ready)
	conn := h.adapter.LastConnection()
	require.NotNil(h.t, conn)
	return conn
}

// ephemeral reports which lifecycle objects exist, read on the loop.
func (h *harness) ephemeral() (scan, session, timer bool) {
	h.ctl.loop.call(func() {
		scan = h.ctl.scanner.Active()
		session = h.ctl.session.Ready()
		timer = h.ctl.reconnect.Pending()
	})
	return scan, session, timer
}

func (h *harness) writes(conn *bletest.Connection) []string {
	c := conn.Characteristic(ble.ServiceUUID, ble.CharacteristicUUID)
	if c == nil {
		return nil
	}
	return c.Writes()
}
