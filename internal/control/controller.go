// Package control drives the rover's BLE connection lifecycle: permission
// gating, name-filtered scanning, GATT session setup, command dispatch and
// automatic reconnection.
//
// Every transition runs on one loop goroutine per Controller. Driver work
// (scan, connect, discovery, writes) happens on other goroutines and is
// posted back tagged with the scan or link it belongs to, so results from a
// superseded attempt are dropped rather than applied.
package control

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/carrito/internal/ble"
	"github.com/chaz8081/carrito/internal/permission"
)

// Identity is the fixed identity of the peripheral to drive.
type Identity struct {
	Name               string
	ServiceUUID        string
	CharacteristicUUID string
}

// DefaultIdentity returns the rover firmware's identity.
func DefaultIdentity() Identity {
	return Identity{
		Name:               ble.DeviceName,
		ServiceUUID:        ble.ServiceUUID,
		CharacteristicUUID: ble.CharacteristicUUID,
	}
}

// Radio reports and changes the power state of the local BLE adapter.
type Radio interface {
	// Present reports whether BLE hardware exists at all.
	Present() bool
	// Powered reports whether the adapter is switched on.
	Powered() (bool, error)
	// RequestPower asks for the adapter to be switched on without blocking.
	// done is called once, on any goroutine, with the outcome.
	RequestPower(done func(on bool)) error
}

// AlwaysOnRadio is a Radio for platforms where the BLE stack reports power
// problems through Adapter.Enable instead.
type AlwaysOnRadio struct{}

func (AlwaysOnRadio) Present() bool { return true }

func (AlwaysOnRadio) Powered() (bool, error) { return true, nil }

func (AlwaysOnRadio) RequestPower(done func(bool)) error {
	go done(true)
	return nil
}

// Options configures a Controller. Zero fields take defaults.
type Options struct {
	Identity         Identity
	ScanTimeout      time.Duration
	ReconnectDelay   time.Duration
	DisableReconnect bool
	WireWords        map[Command]string // overrides of DefaultWireWords
	StatusBuffer     int
	Clock            Clock
}

// DefaultOptions returns the rover defaults.
func DefaultOptions() Options {
	return Options{
		Identity:       DefaultIdentity(),
		ScanTimeout:    DefaultScanTimeout,
		ReconnectDelay: DefaultReconnectDelay,
		StatusBuffer:   32,
	}
}

type awaiting int

const (
	awaitNothing awaiting = iota
	awaitGrant
	awaitPower
)

// Controller composes the permission gate, scanner, GATT session,
// reconnect supervisor and command router into one state machine.
// Its methods are safe for concurrent use.
type Controller struct {
	opts Options
	loop *loop

	gate      *permission.Gate
	radio     Radio
	scanner   *scanner
	session   *gattSession
	reconnect *reconnector
	router    *router

	// Owned by the loop.
	state    State
	awaiting awaiting

	current   atomic.Int32
	statuses  chan Status
	closeOnce sync.Once
}

// New creates a Controller in the Idle state. Call Close when done.
func New(adapter ble.Adapter, radio Radio, gate *permission.Gate, opts Options) *Controller {
	def := DefaultOptions()
	if opts.Identity == (Identity{}) {
		opts.Identity = def.Identity
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = def.ScanTimeout
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = def.ReconnectDelay
	}
	if opts.StatusBuffer <= 0 {
		opts.StatusBuffer = def.StatusBuffer
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}

	c := &Controller{
		opts:     opts,
		loop:     newLoop(),
		gate:     gate,
		radio:    radio,
		statuses: make(chan Status, opts.StatusBuffer),
	}
	post := c.loop.post
	c.scanner = newScanner(adapter, opts.Clock, post, opts.ScanTimeout)
	c.session = newGattSession(adapter, opts.Identity, post)
	c.reconnect = newReconnector(opts.Clock, post, opts.ReconnectDelay,
		func() bool { return c.state == Ready }, c.reconnectAttempt)
	c.router = newRouter(c.session, gate, post, opts.WireWords, c.deferredFailed)
	return c
}

// Identity returns the peripheral identity this controller looks for.
func (c *Controller) Identity() Identity {
	return c.opts.Identity
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.current.Load())
}

// Statuses returns the notification stream. It is closed by Close.
// Notifications are dropped if the consumer falls behind by more than
// Options.StatusBuffer.
func (c *Controller) Statuses() <-chan Status {
	return c.statuses
}

// RequestConnect starts the connect flow. While Ready it only reports
// "already connected"; while an attempt is running it starts nothing new.
// A pending reconnect is superseded.
func (c *Controller) RequestConnect() {
	c.loop.call(func() {
		if c.state == ReconnectPending {
			c.reconnect.Cancel()
			c.setState(Disconnected)
		}
		c.connect()
	})
}

// SendCommand writes cmd to the rover. It returns ErrNotConnected unless
// the controller is Ready. A write failure reported by the driver arrives
// later as a StatusWriteFailed notification.
func (c *Controller) SendCommand(cmd Command) error {
	err := ErrClosed
	c.loop.call(func() {
		err = c.router.Send(cmd)
		switch {
		case err == nil:
			if c.router.hasDeferred {
				c.emit(StatusPermissionRequested, nil)
			}
		case errors.Is(err, ErrNotConnected):
			c.emit(StatusNotConnected, err)
		case errors.Is(err, ErrPermissionDenied):
			c.emit(StatusPermissionDenied, err)
		case errors.Is(err, ErrWriteFailed):
			c.emit(StatusWriteFailed, err)
		}
	})
	return err
}

// Teardown closes the link, stops any scan, cancels any reconnect timer
// and permission interest, and returns to Idle. Idempotent.
func (c *Controller) Teardown() {
	c.loop.call(c.teardown)
}

// Close tears down, stops the loop and closes the status stream.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.loop.call(c.teardown)
		c.loop.stop()
		close(c.statuses)
	})
}

func (c *Controller) teardown() {
	c.session.Close()
	c.scanner.Stop()
	c.reconnect.Cancel()
	c.gate.Cancel()
	c.router.Drop()
	c.awaiting = awaitNothing
	if c.state != Idle {
		c.setState(Idle)
		c.emit(StatusIdle, nil)
	}
}

func (c *Controller) connect() {
	switch {
	case c.state == Ready:
		c.emit(StatusAlreadyConnected, nil)
		return
	case c.state.busy():
		c.emit(StatusInProgress, nil)
		return
	}

	switch c.gate.Authorize(func(granted bool) {
		c.loop.post(func() { c.permissionResult(granted) })
	}) {
	case permission.Denied:
		c.setState(Idle)
		c.emit(StatusPermissionDenied, ErrPermissionDenied)
		return
	case permission.PendingUserResponse:
		c.awaiting = awaitGrant
		c.setState(AwaitingPermission)
		c.emit(StatusPermissionRequested, nil)
		return
	}

	if !c.radio.Present() {
		c.setState(Idle)
		c.emit(StatusAdapterUnavailable, ErrAdapterUnavailable)
		return
	}
	if on, err := c.radio.Powered(); err != nil || !on {
		if err != nil {
			slog.Warn("[CTRL] read adapter power", "error", err)
		}
		if err := c.radio.RequestPower(func(on bool) {
			c.loop.post(func() { c.powerResult(on) })
		}); err != nil {
			c.setState(Idle)
			c.emit(StatusAdapterDisabled, fmt.Errorf("%w: %w", ErrAdapterDisabled, err))
			return
		}
		c.awaiting = awaitPower
		c.setState(AwaitingPermission)
		c.emit(StatusPowerRequested, nil)
		return
	}

	c.setState(Scanning)
	c.emit(StatusSearching, nil)
	c.scanner.Start(c.opts.Identity, c.deviceFound, c.scanTimedOut, c.scanFailed)
}

func (c *Controller) permissionResult(granted bool) {
	if c.awaiting != awaitGrant || c.state != AwaitingPermission {
		return
	}
	c.awaiting = awaitNothing
	c.setState(Idle)
	if !granted {
		c.emit(StatusPermissionDenied, ErrPermissionDenied)
		return
	}
	c.connect()
}

func (c *Controller) powerResult(on bool) {
	if c.awaiting != awaitPower || c.state != AwaitingPermission {
		return
	}
	c.awaiting = awaitNothing
	c.setState(Idle)
	if !on {
		c.emit(StatusAdapterDisabled, ErrAdapterDisabled)
		return
	}
	c.connect()
}

func (c *Controller) deviceFound(d ble.Device) {
	c.setState(Connecting)
	c.emitDevice(StatusConnecting, d, nil)
	c.session.Connect(d, sessionEvents{
		onLinkUp:         c.linkUp,
		onReady:          c.sessionReady,
		onServiceMissing: c.serviceMissing,
		onCharMissing:    c.charMissing,
		onDisconnected:   c.sessionDisconnected,
		onWriteError:     c.writeFailed,
	})
}

func (c *Controller) scanTimedOut() {
	c.setState(Idle)
	c.emit(StatusNotFound, ErrScanTimeout)
}

func (c *Controller) scanFailed(err error) {
	c.setState(Idle)
	c.emit(StatusScanFailed, err)
}

func (c *Controller) linkUp(d ble.Device) {
	c.setState(DiscoveringServices)
	c.emitDevice(StatusDiscovering, d, nil)
}

func (c *Controller) sessionReady(d ble.Device) {
	c.reconnect.Reset()
	c.setState(Ready)
	c.emitDevice(StatusReady, d, nil)
}

// A rover without the command characteristic cannot be driven, so the
// link is closed rather than kept.
func (c *Controller) serviceMissing(err error) {
	c.session.Close()
	c.setState(Idle)
	c.emit(StatusServiceMissing, err)
}

func (c *Controller) charMissing(err error) {
	c.session.Close()
	c.setState(Idle)
	c.emit(StatusCharacteristicMissing, err)
}

func (c *Controller) sessionDisconnected(wasReady bool) {
	c.setState(Disconnected)
	c.emit(StatusDisconnected, ErrUnexpectedDisconnect)
	if wasReady && !c.opts.DisableReconnect {
		c.reconnect.OnUnexpectedDisconnect()
	}
	if c.reconnect.Pending() {
		c.setState(ReconnectPending)
		return
	}
	c.setState(Idle)
}

func (c *Controller) writeFailed(err error) {
	c.emit(StatusWriteFailed, err)
}

func (c *Controller) reconnectAttempt() {
	if c.state != ReconnectPending {
		return
	}
	c.setState(Disconnected)
	c.emit(StatusReconnecting, nil)
	c.connect()
}

func (c *Controller) deferredFailed(cmd Command, err error) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		c.emit(StatusPermissionDenied, err)
	case errors.Is(err, ErrNotConnected):
		c.emit(StatusNotConnected, err)
	default:
		c.emit(StatusWriteFailed, fmt.Errorf("%s: %w", cmd, err))
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	slog.Debug("[CTRL] state", "from", c.state, "to", s)
	c.state = s
	c.current.Store(int32(s))
}

func (c *Controller) emit(kind StatusKind, err error) {
	c.emitDevice(kind, ble.Device{}, err)
}

func (c *Controller) emitDevice(kind StatusKind, d ble.Device, err error) {
	msg := kind.String()
	if kind == StatusConnecting && d.Name != "" {
		msg = fmt.Sprintf("connecting to %s...", d.Name)
	}
	st := Status{Kind: kind, State: c.state, Message: msg, Device: d, Err: err}
	select {
	case c.statuses <- st:
	default:
		slog.Warn("[CTRL] status dropped, consumer too slow", "status", msg)
	}
}
