// Package input drives the rover from the keyboard using a global key hook.
// Arrow keys drive while held and stop on release; o and p switch the LED.
package input

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
	"golang.org/x/time/rate"

	"github.com/chaz8081/carrito/internal/control"
)

// Sender accepts rover commands. *control.Controller satisfies it.
type Sender interface {
	SendCommand(control.Command) error
}

// Binding maps one key to the commands sent on press and, optionally, on
// release.
type Binding struct {
	Key     string
	Press   control.Command
	Release control.Command // empty for none
}

// DefaultBindings returns the arrow-key driving layout.
func DefaultBindings() []Binding {
	return []Binding{
		{Key: "up", Press: control.Forward, Release: control.Stop},
		{Key: "down", Press: control.Backward, Release: control.Stop},
		{Key: "left", Press: control.Left, Release: control.Stop},
		{Key: "right", Press: control.Right, Release: control.Stop},
		{Key: "space", Press: control.Stop},
		{Key: "o", Press: control.LEDOn},
		{Key: "p", Press: control.LEDOff},
	}
}

// Throttle limits key auto-repeat. A command that differs from the last one
// always passes; repeats of the same command pass at most at the limiter's
// rate.
type Throttle struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	last    control.Command
}

// NewThrottle allows perSecond repeats of the same command.
func NewThrottle(perSecond float64) *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// Allow reports whether cmd should be sent now.
func (t *Throttle) Allow(cmd control.Command) bool {
	return t.AllowAt(cmd, time.Now())
}

// AllowAt is Allow with an explicit clock reading.
func (t *Throttle) AllowAt(cmd control.Command, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cmd != t.last {
		t.last = cmd
		// Restart the bucket so the first repeat waits a full interval.
		t.limiter.AllowN(now, t.limiter.Burst())
		return true
	}
	return t.limiter.AllowN(now, 1)
}

// Listener turns global key events into rover commands.
type Listener struct {
	bindings []Binding
	sender   Sender
	throttle *Throttle

	done chan struct{}
	once sync.Once
}

// NewListener creates a Listener. repeatRate bounds repeated commands per
// second while a key is held.
func NewListener(sender Sender, bindings []Binding, repeatRate float64) *Listener {
	return &Listener{
		bindings: bindings,
		sender:   sender,
		throttle: NewThrottle(repeatRate),
		done:     make(chan struct{}),
	}
}

// Start begins listening for the bound keys.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	for _, b := range l.bindings {
		b := b
		hook.Register(hook.KeyDown, []string{b.Key}, func(hook.Event) {
			l.press(b)
		})
		if b.Release != "" {
			hook.Register(hook.KeyUp, []string{b.Key}, func(hook.Event) {
				l.release(b)
			})
		}
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	slog.Debug("[INPUT] key hook stopped")
}

// Stop terminates the listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}

func (l *Listener) press(b Binding) {
	if !l.throttle.Allow(b.Press) {
		return
	}
	l.send(b.Key, b.Press)
}

// Releases are never throttled; a missed stop leaves the rover moving.
func (l *Listener) release(b Binding) {
	l.throttle.Allow(b.Release)
	l.send(b.Key, b.Release)
}

func (l *Listener) send(key string, cmd control.Command) {
	err := l.sender.SendCommand(cmd)
	switch {
	case err == nil:
		slog.Debug("[INPUT] sent", "key", key, "command", cmd)
	case errors.Is(err, control.ErrNotConnected):
		// Reported on the status stream already.
	default:
		slog.Warn("[INPUT] send failed", "key", key, "command", cmd, "error", err)
	}
}
