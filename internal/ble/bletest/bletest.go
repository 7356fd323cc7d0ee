// Package bletest provides in-memory fakes of the ble interfaces for tests.
// Advertisements are injected with Adapter.Advertise; link loss is simulated
// with Connection.SimulateDisconnect.
package bletest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chaz8081/carrito/internal/ble"
)

// Characteristic records writes.
type Characteristic struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
}

func (c *Characteristic) Write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

// FailWrites makes every later Write return err (nil restores success).
func (c *Characteristic) FailWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Writes returns the payloads written so far as strings.
func (c *Characteristic) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

// Service exposes a fixed set of characteristics keyed by lowercase UUID.
type Service struct {
	chars map[string]*Characteristic
}

func (s *Service) DiscoverCharacteristic(uuid string) (ble.Characteristic, error) {
	c, ok := s.chars[strings.ToLower(uuid)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ble.ErrCharacteristicNotFound, uuid)
	}
	return c, nil
}

// Connection simulates a BLE connection.
type Connection struct {
	Device ble.Device

	mu           sync.Mutex
	services     map[string]*Service
	discoverErr  error
	disconnectCb func()
	disconnected bool
}

func (c *Connection) DiscoverService(uuid string) (ble.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.discoverErr != nil {
		return nil, c.discoverErr
	}
	s, ok := c.services[strings.ToLower(uuid)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ble.ErrServiceNotFound, uuid)
	}
	return s, nil
}

func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *Connection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// Disconnected reports whether the link is down, by either side.
func (c *Connection) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

// SimulateDisconnect triggers the disconnect callback as a link loss would.
func (c *Connection) SimulateDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.disconnected = true
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

// Characteristic returns the fake characteristic at service/char, or nil.
func (c *Connection) Characteristic(serviceUUID, charUUID string) *Characteristic {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.services[strings.ToLower(serviceUUID)]
	if !ok {
		return nil
	}
	return s.chars[strings.ToLower(charUUID)]
}

// Layout controls what connections created by an Adapter expose.
type Layout struct {
	ServiceUUID        string
	CharacteristicUUID string
	MissingService     bool
	MissingChar        bool
	DiscoverErr        error
}

type activeScan struct {
	filter   ble.ScanFilter
	onResult func(ble.Device)
}

// Adapter simulates the BLE adapter.
type Adapter struct {
	mu          sync.Mutex
	layout      Layout
	enableErr   error
	scanErr     error
	connectErr  error
	holdConnect chan struct{}
	scans       map[*activeScan]struct{}
	scanCount   int
	filters     []ble.ScanFilter
	connections []*Connection
}

// NewAdapter returns an adapter whose peripherals expose layout.
func NewAdapter(layout Layout) *Adapter {
	return &Adapter{
		layout: layout,
		scans:  make(map[*activeScan]struct{}),
	}
}

// FailEnable makes Enable return err.
func (a *Adapter) FailEnable(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enableErr = err
}

// FailScan makes Scan return err immediately.
func (a *Adapter) FailScan(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanErr = err
}

// FailConnect makes Connect return err.
func (a *Adapter) FailConnect(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connectErr = err
}

// HoldConnect blocks Connect calls until the returned func is called.
func (a *Adapter) HoldConnect() (release func()) {
	ch := make(chan struct{})
	a.mu.Lock()
	a.holdConnect = ch
	a.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// SetLayout changes the layout of connections created from now on.
func (a *Adapter) SetLayout(layout Layout) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.layout = layout
}

func (a *Adapter) Enable() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enableErr
}

func (a *Adapter) Scan(ctx context.Context, filter ble.ScanFilter, onResult func(ble.Device)) error {
	a.mu.Lock()
	a.scanCount++
	a.filters = append(a.filters, filter)
	if a.scanErr != nil {
		err := a.scanErr
		a.mu.Unlock()
		return err
	}
	s := &activeScan{filter: filter, onResult: onResult}
	a.scans[s] = struct{}{}
	a.mu.Unlock()

	<-ctx.Done()

	a.mu.Lock()
	delete(a.scans, s)
	a.mu.Unlock()
	return nil
}

// Advertise delivers d to every active scan whose filter matches and
// returns how many scans received it.
func (a *Adapter) Advertise(d ble.Device) int {
	a.mu.Lock()
	var targets []*activeScan
	for s := range a.scans {
		if s.filter.Matches(d) {
			targets = append(targets, s)
		}
	}
	a.mu.Unlock()

	for _, s := range targets {
		s.onResult(d)
	}
	return len(targets)
}

// ActiveScans returns the number of scans currently running.
func (a *Adapter) ActiveScans() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.scans)
}

// ScanCount returns how many times Scan was called.
func (a *Adapter) ScanCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanCount
}

// LastFilter returns the filter of the most recent Scan call.
func (a *Adapter) LastFilter() ble.ScanFilter {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.filters) == 0 {
		return ble.ScanFilter{}
	}
	return a.filters[len(a.filters)-1]
}

func (a *Adapter) Connect(ctx context.Context, device ble.Device) (ble.Connection, error) {
	a.mu.Lock()
	hold := a.holdConnect
	a.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	conn := &Connection{
		Device:      device,
		services:    make(map[string]*Service),
		discoverErr: a.layout.DiscoverErr,
	}
	if !a.layout.MissingService {
		svc := &Service{chars: make(map[string]*Characteristic)}
		if !a.layout.MissingChar {
			svc.chars[strings.ToLower(a.layout.CharacteristicUUID)] = &Characteristic{}
		}
		conn.services[strings.ToLower(a.layout.ServiceUUID)] = svc
	}
	a.connections = append(a.connections, conn)
	return conn, nil
}

// Connections returns every connection created so far.
func (a *Adapter) Connections() []*Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Connection, len(a.connections))
	copy(out, a.connections)
	return out
}

// LastConnection returns the most recently created connection, or nil.
func (a *Adapter) LastConnection() *Connection {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.connections) == 0 {
		return nil
	}
	return a.connections[len(a.connections)-1]
}

// Compile-time interface checks.
var (
	_ ble.Adapter        = (*Adapter)(nil)
	_ ble.Connection     = (*Connection)(nil)
	_ ble.Service        = (*Service)(nil)
	_ ble.Characteristic = (*Characteristic)(nil)
)
