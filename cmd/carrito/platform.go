package main

import (
	"log"
	"runtime"
	"sync"

	"github.com/chaz8081/carrito/internal/bluez"
	"github.com/chaz8081/carrito/internal/control"
	"github.com/chaz8081/carrito/internal/permission"
)

// openPlatform returns the radio and permission backends for this OS.
// On Linux both come from BlueZ over D-Bus; elsewhere the BLE stack
// handles power and prompting itself.
func openPlatform(adapterName string) (control.Radio, permission.Platform, func()) {
	if runtime.GOOS != "linux" {
		return control.AlwaysOnRadio{}, permission.AllGranted{}, func() {}
	}

	client, err := bluez.Dial(adapterName)
	if err != nil {
		log.Printf("WARNING: BlueZ unavailable, skipping power and permission checks: %v", err)
		return control.AlwaysOnRadio{}, permission.AllGranted{}, func() {}
	}
	var once sync.Once
	return client, client, func() {
		once.Do(func() { _ = client.Close() })
	}
}
