// Package ble abstracts the BLE central role used to drive the rover:
// name-filtered scanning, GATT connection, service and characteristic
// resolution, and writes. The platform implementation wraps
// tinygo-org/bluetooth; tests use the fakes in package bletest.
package ble

import (
	"context"
	"errors"
)

// Rover firmware defaults. Deployments may override them through config.
const (
	DeviceName         = "MAKA"
	ServiceUUID        = "0000faf0-0000-1000-8000-00805f9b34fb"
	CharacteristicUUID = "0000faf1-0000-1000-8000-00805f9b34fb"
)

var (
	// ErrAdapterUnavailable means there is no usable BLE hardware.
	ErrAdapterUnavailable = errors.New("ble: adapter unavailable")
	// ErrServiceNotFound is returned when the peripheral does not expose the service.
	ErrServiceNotFound = errors.New("ble: service not found")
	// ErrCharacteristicNotFound is returned when the service lacks the characteristic.
	ErrCharacteristicNotFound = errors.New("ble: characteristic not found")
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic without waiting for a response.
	Write(data []byte) error
}

// Service represents a discovered GATT service.
type Service interface {
	// DiscoverCharacteristic finds a characteristic by UUID within the service.
	DiscoverCharacteristic(uuid string) (Characteristic, error)
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// ScanFilter restricts which advertisements a scan reports.
type ScanFilter struct {
	Name       string // exact advertised local name; empty matches everything
	LowLatency bool   // request the most aggressive scan duty cycle, if supported
}

// Matches reports whether an advertisement from d passes the filter.
func (f ScanFilter) Matches(d Device) bool {
	return f.Name == "" || d.Name == f.Name
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverService runs service discovery and returns the service with the given UUID.
	DiscoverService(uuid string) (Service, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE stack.
	Enable() error
	// Scan reports advertisements matching filter until ctx is cancelled.
	// It returns an error only if the scan could not be run.
	Scan(ctx context.Context, filter ScanFilter, onResult func(Device)) error
	// Connect opens a direct (non auto-connect) link to the device.
	Connect(ctx context.Context, device Device) (Connection, error)
}
