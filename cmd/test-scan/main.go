// Command test-scan is a manual test for BLE discovery.
// It scans for advertising peripherals and prints what it finds.
//
// Usage:
//
//	go run ./cmd/test-scan [--name MAKA] [--timeout 10s]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/chaz8081/carrito/internal/ble"
)

func main() {
	name := flag.String("name", "", "only report devices advertising this name (default: all)")
	timeout := flag.Duration("timeout", 10*time.Second, "how long to scan")
	flag.Parse()

	adapter := ble.NewTinyGoAdapter()

	if *name == "" {
		fmt.Printf("Scanning for %s...\n", *timeout)
	} else {
		fmt.Printf("Scanning for %q for %s...\n", *name, *timeout)
	}

	devices, err := ble.ScanFor(adapter, ble.ScanFilter{Name: *name, LowLatency: true}, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan failed: %v\n", err)
		os.Exit(1)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		os.Exit(1)
	}
	fmt.Printf("Found %d device(s):\n", len(devices))
	for _, d := range devices {
		label := d.Name
		if label == "" {
			label = "(unnamed)"
		}
		fmt.Printf("  %-20s %s  RSSI %d\n", label, d.Address, d.RSSI)
	}
}
