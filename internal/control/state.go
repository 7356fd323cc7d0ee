package control

import (
	"fmt"

	"github.com/chaz8081/carrito/internal/ble"
)

// State is the controller's connection lifecycle state.
type State int

const (
	Idle State = iota
	AwaitingPermission
	Scanning
	Connecting
	DiscoveringServices
	Ready
	Disconnected
	ReconnectPending
)

var stateNames = [...]string{
	Idle:                "idle",
	AwaitingPermission:  "awaiting-permission",
	Scanning:            "scanning",
	Connecting:          "connecting",
	DiscoveringServices: "discovering-services",
	Ready:               "ready",
	Disconnected:        "disconnected",
	ReconnectPending:    "reconnect-pending",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// busy reports whether a connect attempt is already under way.
func (s State) busy() bool {
	switch s {
	case AwaitingPermission, Scanning, Connecting, DiscoveringServices:
		return true
	}
	return false
}

// StatusKind classifies a status notification.
type StatusKind int

const (
	StatusSearching StatusKind = iota
	StatusConnecting
	StatusDiscovering
	StatusReady
	StatusAlreadyConnected
	StatusInProgress
	StatusNotFound
	StatusScanFailed
	StatusServiceMissing
	StatusCharacteristicMissing
	StatusDisconnected
	StatusReconnecting
	StatusPermissionRequested
	StatusPermissionDenied
	StatusPowerRequested
	StatusAdapterDisabled
	StatusAdapterUnavailable
	StatusWriteFailed
	StatusNotConnected
	StatusIdle
)

var statusMessages = map[StatusKind]string{
	StatusSearching:             "searching for device...",
	StatusConnecting:            "connecting...",
	StatusDiscovering:           "connected, discovering services...",
	StatusReady:                 "ready to drive",
	StatusAlreadyConnected:      "already connected",
	StatusInProgress:            "connection already in progress",
	StatusNotFound:              "device not found",
	StatusScanFailed:            "scan failed",
	StatusServiceMissing:        "service not found",
	StatusCharacteristicMissing: "characteristic not found",
	StatusDisconnected:          "disconnected",
	StatusReconnecting:          "trying to reconnect...",
	StatusPermissionRequested:   "requesting bluetooth permissions...",
	StatusPermissionDenied:      "required permissions not granted",
	StatusPowerRequested:        "asking to turn bluetooth on...",
	StatusAdapterDisabled:       "bluetooth must be turned on",
	StatusAdapterUnavailable:    "this device does not support bluetooth",
	StatusWriteFailed:           "failed to send command",
	StatusNotConnected:          "not connected to device",
	StatusIdle:                  "idle",
}

func (k StatusKind) String() string {
	if m, ok := statusMessages[k]; ok {
		return m
	}
	return fmt.Sprintf("StatusKind(%d)", int(k))
}

// Status is a human-readable notification for the presentation layer.
type Status struct {
	Kind    StatusKind
	State   State // controller state after the event
	Message string
	Device  ble.Device // set for device-specific statuses
	Err     error
}

// Fatal reports whether the hosting surface should shut down.
func (s Status) Fatal() bool {
	return s.Kind == StatusAdapterUnavailable
}

func (s Status) String() string {
	if s.Err != nil && s.Kind != StatusNotFound && s.Kind != StatusDisconnected {
		return fmt.Sprintf("%s (%v)", s.Message, s.Err)
	}
	return s.Message
}
