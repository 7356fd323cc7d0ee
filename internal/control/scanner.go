package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/carrito/internal/ble"
)

// DefaultScanTimeout bounds how long a scan looks for the device.
const DefaultScanTimeout = 10 * time.Second

// pendingScan is the single in-progress scan. Results posted for a scan
// that is no longer current are dropped.
type pendingScan struct {
	cancel    context.CancelFunc
	deadline  Timer
	name      string
	onFound   func(ble.Device)
	onTimeout func()
	onError   func(error)
}

// scanner runs at most one name-filtered, time-bounded scan. All methods
// run on the controller loop.
type scanner struct {
	adapter ble.Adapter
	clock   Clock
	post    func(func()) bool
	timeout time.Duration

	scan *pendingScan
}

func newScanner(adapter ble.Adapter, clock Clock, post func(func()) bool, timeout time.Duration) *scanner {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &scanner{adapter: adapter, clock: clock, post: post, timeout: timeout}
}

// Start begins scanning for id.Name. It is a no-op while a scan is active.
// Exactly one of onFound, onTimeout or onError fires per started scan,
// unless Stop is called first.
func (s *scanner) Start(id Identity, onFound func(ble.Device), onTimeout func(), onError func(error)) {
	if s.scan != nil {
		slog.Debug("[SCAN] already scanning")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingScan{
		cancel:    cancel,
		name:      id.Name,
		onFound:   onFound,
		onTimeout: onTimeout,
		onError:   onError,
	}
	s.scan = p

	filter := ble.ScanFilter{Name: id.Name, LowLatency: true}
	slog.Info("[SCAN] scanning", "name", id.Name, "timeout", s.timeout)
	go func() {
		err := s.adapter.Scan(ctx, filter, func(d ble.Device) {
			s.post(func() { s.found(p, d) })
		})
		if err != nil && ctx.Err() == nil {
			s.post(func() { s.failed(p, err) })
		}
	}()

	// Posted funcs run after Start returns, so deadline is set before any
	// result can be handled.
	p.deadline = s.clock.AfterFunc(s.timeout, func() {
		s.post(func() { s.expired(p) })
	})
}

// Stop cancels the active scan, if any. Safe to call at any time.
func (s *scanner) Stop() {
	if s.scan != nil {
		s.finish(s.scan)
	}
}

// Active reports whether a scan is in progress.
func (s *scanner) Active() bool {
	return s.scan != nil
}

func (s *scanner) found(p *pendingScan, d ble.Device) {
	if s.scan != p || d.Name != p.name {
		return
	}
	slog.Info("[SCAN] device found", "name", d.Name, "address", d.Address, "rssi", d.RSSI)
	s.finish(p)
	p.onFound(d)
}

func (s *scanner) expired(p *pendingScan) {
	if s.scan != p {
		return
	}
	slog.Info("[SCAN] device not found", "name", p.name, "timeout", s.timeout)
	s.finish(p)
	p.onTimeout()
}

func (s *scanner) failed(p *pendingScan, err error) {
	if s.scan != p {
		return
	}
	slog.Error("[SCAN] scan failed", "error", err)
	s.finish(p)
	p.onError(fmt.Errorf("%w: %w", ErrScanStartFailed, err))
}

func (s *scanner) finish(p *pendingScan) {
	if p.deadline != nil {
		p.deadline.Stop()
	}
	p.cancel()
	s.scan = nil
}
