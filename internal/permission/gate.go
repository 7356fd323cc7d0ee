// Package permission decides whether the platform has granted what BLE
// scanning and connecting need, and asks for it when it has not.
package permission

import (
	"fmt"
	"log/slog"
	"sync"
)

// Permission is a platform capability needed for BLE.
type Permission string

const (
	Scan                 Permission = "bluetooth-scan"
	Connect              Permission = "bluetooth-connect"
	FineLocation         Permission = "fine-location"
	LegacyBluetooth      Permission = "bluetooth"
	LegacyBluetoothAdmin Permission = "bluetooth-admin"
)

// Tier selects which permission set applies on this platform.
type Tier int

const (
	// TierModern platforms split scanning and connecting into separate grants.
	TierModern Tier = iota
	// TierLegacy platforms gate BLE behind location access.
	TierLegacy
)

// ParseTier converts a config value ("modern" or "legacy") to a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "modern":
		return TierModern, nil
	case "legacy":
		return TierLegacy, nil
	default:
		return 0, fmt.Errorf("permission: unknown tier %q", s)
	}
}

func (t Tier) String() string {
	if t == TierLegacy {
		return "legacy"
	}
	return "modern"
}

// Required returns the permissions that must be granted.
func (t Tier) Required() []Permission {
	if t == TierLegacy {
		return []Permission{FineLocation}
	}
	return []Permission{Scan, Connect, FineLocation}
}

// Requested returns the permissions asked for when something is missing.
func (t Tier) Requested() []Permission {
	if t == TierLegacy {
		return []Permission{FineLocation, LegacyBluetooth, LegacyBluetoothAdmin}
	}
	return []Permission{Scan, Connect, FineLocation}
}

// Result is the outcome of Authorize.
type Result int

const (
	Authorized Result = iota
	Denied
	PendingUserResponse
)

func (r Result) String() string {
	switch r {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	case PendingUserResponse:
		return "pending"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Platform is the permission surface of the host OS.
type Platform interface {
	// Granted reports whether p is currently granted.
	Granted(p Permission) bool
	// Request asks for perms without blocking. done is called exactly once,
	// on any goroutine, with whether everything was granted. An error means
	// the request could not be issued at all.
	Request(perms []Permission, done func(granted bool)) error
}

// Gate checks and requests permissions for one tier. Safe for concurrent use.
type Gate struct {
	tier     Tier
	platform Platform

	mu      sync.Mutex
	request uint64 // outstanding request id, 0 when none
	seq     uint64
	waiters []func(granted bool)
}

// NewGate creates a Gate for the given tier.
func NewGate(tier Tier, platform Platform) *Gate {
	return &Gate{tier: tier, platform: platform}
}

// Tier returns the tier the gate was created with.
func (g *Gate) Tier() Tier {
	return g.tier
}

// Granted reports whether every required permission is held.
func (g *Gate) Granted() bool {
	for _, p := range g.tier.Required() {
		if !g.platform.Granted(p) {
			return false
		}
	}
	return true
}

// Authorize never blocks. When permissions are missing it issues one
// asynchronous request (joining an outstanding one if present) and returns
// PendingUserResponse; onResult is then called once with the outcome and
// the caller re-invokes its operation from there.
func (g *Gate) Authorize(onResult func(granted bool)) Result {
	if g.Granted() {
		return Authorized
	}

	g.mu.Lock()
	if onResult != nil {
		g.waiters = append(g.waiters, onResult)
	}
	if g.request != 0 {
		g.mu.Unlock()
		return PendingUserResponse
	}
	g.seq++
	id := g.seq
	g.request = id
	g.mu.Unlock()

	slog.Info("[PERM] requesting permissions", "tier", g.tier, "permissions", g.tier.Requested())
	err := g.platform.Request(g.tier.Requested(), func(granted bool) {
		g.complete(id, granted)
	})
	if err != nil {
		slog.Warn("[PERM] permission request failed", "error", err)
		g.mu.Lock()
		if g.request == id {
			g.request = 0
			g.waiters = nil
		}
		g.mu.Unlock()
		return Denied
	}
	return PendingUserResponse
}

// Pending reports whether a request is outstanding.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.request != 0
}

// Cancel forgets the outstanding request; its result will be ignored.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.request = 0
	g.waiters = nil
}

func (g *Gate) complete(id uint64, granted bool) {
	g.mu.Lock()
	if g.request != id {
		g.mu.Unlock()
		return
	}
	waiters := g.waiters
	g.waiters = nil
	g.request = 0
	g.mu.Unlock()

	slog.Info("[PERM] permission result", "granted", granted)
	for _, w := range waiters {
		w(granted)
	}
}

// AllGranted is a Platform where BLE access needs no runtime grant, such as
// macOS where CoreBluetooth prompts on first use.
type AllGranted struct{}

func (AllGranted) Granted(Permission) bool { return true }

func (AllGranted) Request(_ []Permission, done func(bool)) error {
	go done(true)
	return nil
}
