// Command test-keys is a manual test for the keyboard bindings.
// Run it, then press the arrow keys, space, o or p to see the commands
// that would be sent. Nothing is sent over Bluetooth.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-keys [--rate 10]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/carrito/internal/control"
	"github.com/chaz8081/carrito/internal/input"
)

type printSender struct{}

func (printSender) SendCommand(cmd control.Command) error {
	fmt.Printf(">>> %-9s (wire %q)\n", cmd, control.DefaultWireWords[cmd])
	return nil
}

func main() {
	rate := flag.Float64("rate", 10, "max repeated commands per second while a key is held")
	flag.Parse()

	fmt.Println("Listening for driving keys...")
	fmt.Println("Press Ctrl+C to exit.")

	listener := input.NewListener(printSender{}, input.DefaultBindings(), *rate)

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
