package input

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chaz8081/carrito/internal/control"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []control.Command
	err  error
}

func (s *recordingSender) SendCommand(cmd control.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, cmd)
	return s.err
}

func (s *recordingSender) commands() []control.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]control.Command(nil), s.sent...)
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(10)
	t0 := time.Unix(1000, 0)

	if !th.AllowAt(control.Forward, t0) {
		t.Fatal("first command should pass")
	}
	if th.AllowAt(control.Forward, t0.Add(10*time.Millisecond)) {
		t.Error("immediate repeat should be throttled")
	}
	if !th.AllowAt(control.Forward, t0.Add(150*time.Millisecond)) {
		t.Error("repeat after the interval should pass")
	}
	if !th.AllowAt(control.Left, t0.Add(151*time.Millisecond)) {
		t.Error("a different command should always pass")
	}
	if !th.AllowAt(control.Forward, t0.Add(152*time.Millisecond)) {
		t.Error("switching back should pass")
	}
	if th.AllowAt(control.Forward, t0.Add(160*time.Millisecond)) {
		t.Error("repeat right after a switch should be throttled")
	}
}

func TestDefaultBindings(t *testing.T) {
	seen := make(map[string]bool)
	for _, b := range DefaultBindings() {
		if seen[b.Key] {
			t.Errorf("key %q bound twice", b.Key)
		}
		seen[b.Key] = true
		if !b.Press.Valid() {
			t.Errorf("key %q: invalid press command %q", b.Key, b.Press)
		}
		if b.Release != "" && !b.Release.Valid() {
			t.Errorf("key %q: invalid release command %q", b.Key, b.Release)
		}
	}
	for _, key := range []string{"up", "down", "left", "right", "o", "p"} {
		if !seen[key] {
			t.Errorf("key %q not bound", key)
		}
	}
}

func TestPressAndRelease(t *testing.T) {
	s := &recordingSender{}
	l := NewListener(s, DefaultBindings(), 10)
	up := DefaultBindings()[0]

	l.press(up)
	l.press(up) // auto-repeat, throttled
	l.release(up)

	got := s.commands()
	want := []control.Command{control.Forward, control.Stop}
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sent[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestReleaseNeverThrottled(t *testing.T) {
	s := &recordingSender{}
	l := NewListener(s, DefaultBindings(), 1)
	b := DefaultBindings()

	l.release(b[0])
	l.release(b[1])
	l.release(b[2])

	if n := len(s.commands()); n != 3 {
		t.Errorf("sent %d stops, want 3", n)
	}
}

func TestSendErrorDoesNotPanic(t *testing.T) {
	s := &recordingSender{err: errors.New("boom")}
	l := NewListener(s, DefaultBindings(), 10)

	l.press(Binding{Key: "o", Press: control.LEDOn})
	s.err = control.ErrNotConnected
	l.press(Binding{Key: "p", Press: control.LEDOff})

	if n := len(s.commands()); n != 2 {
		t.Errorf("sent %d, want 2", n)
	}
}

func TestStopIdempotent(t *testing.T) {
	l := NewListener(&recordingSender{}, nil, 10)
	l.Stop()
	l.Stop()
	select {
	case <-l.done:
	default:
		t.Error("done should be closed after Stop")
	}
}
