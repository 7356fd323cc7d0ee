package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/carrito/internal/ble"
)

// writeBuffer bounds submitted-but-unwritten payloads per link.
const writeBuffer = 8

// linkState tracks one GATT link through connection and resolution.
type linkState int

const (
	linkDisconnected linkState = iota
	linkConnecting
	linkUp
	linkDiscovering
	linkReady
	linkServiceMissing
	linkCharMissing
)

func (s linkState) String() string {
	switch s {
	case linkDisconnected:
		return "disconnected"
	case linkConnecting:
		return "connecting"
	case linkUp:
		return "link-up"
	case linkDiscovering:
		return "discovering"
	case linkReady:
		return "ready"
	case linkServiceMissing:
		return "service-missing"
	case linkCharMissing:
		return "characteristic-missing"
	default:
		return fmt.Sprintf("linkState(%d)", int(s))
	}
}

// sessionEvents receives the outcome of a connect. Every callback runs on
// the controller loop.
type sessionEvents struct {
	onLinkUp         func(ble.Device)
	onReady          func(ble.Device)
	onServiceMissing func(error)
	onCharMissing    func(error)
	onDisconnected   func(wasReady bool)
	onWriteError     func(error)
}

// link is one connection attempt and, once resolved, the live session.
type link struct {
	device ble.Device
	events sessionEvents
	cancel context.CancelFunc
	state  linkState
	conn   ble.Connection
	char   ble.Characteristic
	writes chan []byte
}

// gattSession owns the single link to the rover. All methods run on the
// controller loop; driver calls run on their own goroutines and post back.
type gattSession struct {
	adapter  ble.Adapter
	identity Identity
	post     func(func()) bool

	cur *link
}

func newGattSession(adapter ble.Adapter, identity Identity, post func(func()) bool) *gattSession {
	return &gattSession{adapter: adapter, identity: identity, post: post}
}

// Connect closes any prior link and opens a new one to device.
func (s *gattSession) Connect(device ble.Device, events sessionEvents) {
	s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	l := &link{device: device, events: events, cancel: cancel, state: linkConnecting}
	s.cur = l

	slog.Info("[BLE] connecting", "name", device.Name, "address", device.Address)
	go func() {
		conn, err := s.adapter.Connect(ctx, device)
		if !s.post(func() { s.connected(l, conn, err) }) && conn != nil {
			_ = conn.Disconnect()
		}
	}()
}

// Ready reports whether a characteristic is resolved and writable.
func (s *gattSession) Ready() bool {
	return s.cur != nil && s.cur.state == linkReady
}

// State returns the current link state.
func (s *gattSession) State() linkState {
	if s.cur == nil {
		return linkDisconnected
	}
	return s.cur.state
}

// Write submits payload to the link's writer. It never blocks; a driver
// failure is reported later through onWriteError.
func (s *gattSession) Write(payload []byte) error {
	l := s.cur
	if l == nil || l.state != linkReady {
		return ErrNotReady
	}
	select {
	case l.writes <- payload:
		return nil
	default:
		return fmt.Errorf("%w: write buffer full", ErrWriteFailed)
	}
}

// Close tears down the link from any state. It does not fire
// onDisconnected. Idempotent.
func (s *gattSession) Close() {
	l := s.cur
	if l == nil {
		return
	}
	s.release(l)
	if l.conn != nil {
		if err := l.conn.Disconnect(); err != nil {
			slog.Debug("[BLE] disconnect", "error", err)
		}
	}
	slog.Info("[BLE] link closed", "address", l.device.Address)
}

// release forgets l so that anything it posts later is ignored.
func (s *gattSession) release(l *link) {
	l.cancel()
	if l.writes != nil {
		close(l.writes)
		l.writes = nil
	}
	l.char = nil
	l.state = linkDisconnected
	if s.cur == l {
		s.cur = nil
	}
}

func (s *gattSession) connected(l *link, conn ble.Connection, err error) {
	if s.cur != l {
		if conn != nil {
			_ = conn.Disconnect()
		}
		return
	}
	if err != nil {
		slog.Warn("[BLE] connect failed", "address", l.device.Address, "error", err)
		s.release(l)
		l.events.onDisconnected(false)
		return
	}

	l.conn = conn
	l.state = linkUp
	conn.OnDisconnect(func() {
		s.post(func() { s.linkDown(l) })
	})
	slog.Info("[BLE] link up, discovering services", "address", l.device.Address)
	l.events.onLinkUp(l.device)
	if s.cur != l {
		return
	}

	l.state = linkDiscovering
	id := s.identity
	go func() {
		char, charStage, err := resolve(conn, id)
		s.post(func() { s.resolved(l, char, charStage, err) })
	}()
}

// resolve looks up the service, then the characteristic within it.
// charStage reports whether the failure happened at the characteristic.
func resolve(conn ble.Connection, id Identity) (char ble.Characteristic, charStage bool, err error) {
	svc, err := conn.DiscoverService(id.ServiceUUID)
	if err != nil {
		if !errors.Is(err, ErrServiceNotFound) {
			err = fmt.Errorf("discover services: %w", err)
		}
		return nil, false, err
	}
	char, err = svc.DiscoverCharacteristic(id.CharacteristicUUID)
	if err != nil {
		if !errors.Is(err, ErrCharacteristicNotFound) {
			err = fmt.Errorf("discover characteristics: %w", err)
		}
		return nil, true, err
	}
	return char, false, nil
}

func (s *gattSession) resolved(l *link, char ble.Characteristic, charStage bool, err error) {
	if s.cur != l || l.state != linkDiscovering {
		return
	}
	if err != nil {
		// The link stays open; the caller decides what to do with it.
		if charStage {
			slog.Warn("[BLE] characteristic missing", "uuid", s.identity.CharacteristicUUID, "error", err)
			l.state = linkCharMissing
			l.events.onCharMissing(err)
		} else {
			slog.Warn("[BLE] service missing", "uuid", s.identity.ServiceUUID, "error", err)
			l.state = linkServiceMissing
			l.events.onServiceMissing(err)
		}
		return
	}

	l.char = char
	l.writes = make(chan []byte, writeBuffer)
	go s.writer(l, char, l.writes)
	l.state = linkReady
	slog.Info("[BLE] ready", "address", l.device.Address)
	l.events.onReady(l.device)
}

// writer performs the link's writes in submission order.
func (s *gattSession) writer(l *link, char ble.Characteristic, writes <-chan []byte) {
	for payload := range writes {
		if err := char.Write(payload); err != nil {
			s.post(func() { s.writeFailed(l, payload, err) })
		}
	}
}

func (s *gattSession) writeFailed(l *link, payload []byte, err error) {
	if s.cur != l {
		return
	}
	slog.Error("[BLE] write failed", "payload", string(payload), "error", err)
	l.events.onWriteError(fmt.Errorf("%w: %w", ErrWriteFailed, err))
}

func (s *gattSession) linkDown(l *link) {
	if s.cur != l {
		return
	}
	wasReady := l.state == linkReady
	slog.Warn("[BLE] link lost", "address", l.device.Address, "was_ready", wasReady)
	s.release(l)
	l.events.onDisconnected(wasReady)
}
