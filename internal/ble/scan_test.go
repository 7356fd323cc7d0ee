package ble_test

import (
	"errors"
	"testing"
	"time"

	"github.com/chaz8081/carrito/internal/ble"
	"github.com/chaz8081/carrito/internal/ble/bletest"
)

func newAdapter() *bletest.Adapter {
	return bletest.NewAdapter(bletest.Layout{
		ServiceUUID:        ble.ServiceUUID,
		CharacteristicUUID: ble.CharacteristicUUID,
	})
}

// advertiseWhenScanning waits for a scan to start, then advertises devices.
func advertiseWhenScanning(t *testing.T, adapter *bletest.Adapter, devices ...ble.Device) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(time.Second)
		for adapter.ActiveScans() == 0 {
			if time.Now().After(deadline) {
				return
			}
			time.Sleep(time.Millisecond)
		}
		for _, d := range devices {
			adapter.Advertise(d)
		}
	}()
}

func TestScanForFiltersByName(t *testing.T) {
	adapter := newAdapter()
	advertiseWhenScanning(t, adapter,
		ble.Device{Name: "Headphones", Address: "11:22:33:44:55:66", RSSI: -70},
		ble.Device{Name: "MAKA", Address: "AA:BB:CC:DD:EE:FF", RSSI: -45},
	)

	result, err := ble.ScanFor(adapter, ble.ScanFilter{Name: "MAKA"}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("ScanFor() error = %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d devices, want 1", len(result))
	}
	if result[0].Name != "MAKA" {
		t.Errorf("Name = %q, want %q", result[0].Name, "MAKA")
	}
	if result[0].Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Address = %q, want %q", result[0].Address, "AA:BB:CC:DD:EE:FF")
	}
}

func TestScanForDeduplicatesAddresses(t *testing.T) {
	adapter := newAdapter()
	maka := ble.Device{Name: "MAKA", Address: "AA:BB:CC:DD:EE:FF", RSSI: -45}
	advertiseWhenScanning(t, adapter, maka, maka, maka)

	result, err := ble.ScanFor(adapter, ble.ScanFilter{Name: "MAKA"}, 200*time.Millisecond)
	if err != nil {
		t.Fatalf("ScanFor() error = %v", err)
	}
	if len(result) != 1 {
		t.Errorf("got %d devices, want 1", len(result))
	}
}

func TestScanForEmpty(t *testing.T) {
	adapter := newAdapter()
	result, err := ble.ScanFor(adapter, ble.ScanFilter{Name: "MAKA"}, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("ScanFor() error = %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("got %d devices, want 0", len(result))
	}
}

func TestScanForEnableError(t *testing.T) {
	adapter := newAdapter()
	adapter.FailEnable(ble.ErrAdapterUnavailable)

	_, err := ble.ScanFor(adapter, ble.ScanFilter{}, 20*time.Millisecond)
	if !errors.Is(err, ble.ErrAdapterUnavailable) {
		t.Errorf("ScanFor() error = %v, want ErrAdapterUnavailable", err)
	}
}

func TestScanForScanError(t *testing.T) {
	adapter := newAdapter()
	adapter.FailScan(errors.New("radio busy"))

	if _, err := ble.ScanFor(adapter, ble.ScanFilter{}, 20*time.Millisecond); err == nil {
		t.Error("ScanFor() should return the scan error")
	}
}

func TestScanFilterMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter ble.ScanFilter
		device ble.Device
		want   bool
	}{
		{"empty filter matches anything", ble.ScanFilter{}, ble.Device{Name: "x"}, true},
		{"exact name", ble.ScanFilter{Name: "MAKA"}, ble.Device{Name: "MAKA"}, true},
		{"different name", ble.ScanFilter{Name: "MAKA"}, ble.Device{Name: "MAKA-2"}, false},
		{"case sensitive", ble.ScanFilter{Name: "MAKA"}, ble.Device{Name: "maka"}, false},
		{"unnamed advertisement", ble.ScanFilter{Name: "MAKA"}, ble.Device{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.device); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
