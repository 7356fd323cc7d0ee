package control

import (
	"errors"

	"github.com/chaz8081/carrito/internal/ble"
)

// Every error below is recovered into a Status; only ErrAdapterUnavailable
// is fatal to the hosting surface.
var (
	ErrPermissionDenied       = errors.New("control: bluetooth permissions not granted")
	ErrAdapterUnavailable     = ble.ErrAdapterUnavailable
	ErrAdapterDisabled        = errors.New("control: bluetooth adapter is disabled")
	ErrScanStartFailed        = errors.New("control: scan failed to start")
	ErrScanTimeout            = errors.New("control: device not found")
	ErrServiceNotFound        = ble.ErrServiceNotFound
	ErrCharacteristicNotFound = ble.ErrCharacteristicNotFound
	ErrWriteFailed            = errors.New("control: write failed")
	ErrUnexpectedDisconnect   = errors.New("control: device disconnected")
	ErrNotConnected           = errors.New("control: not connected to device")

	ErrNotReady       = errors.New("control: no characteristic resolved")
	ErrUnknownCommand = errors.New("control: unknown command")
	ErrClosed         = errors.New("control: controller closed")
)
