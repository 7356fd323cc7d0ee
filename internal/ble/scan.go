package ble

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ScanFor scans for peripherals matching filter until timeout and returns
// each one once, in the order first seen.
func ScanFor(adapter Adapter, filter ScanFilter, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var mu sync.Mutex
	var devices []Device
	seen := make(map[string]bool)

	err := adapter.Scan(ctx, filter, func(d Device) {
		mu.Lock()
		defer mu.Unlock()
		if seen[d.Address] {
			return
		}
		seen[d.Address] = true
		devices = append(devices, d)
	})
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return devices, nil
}
