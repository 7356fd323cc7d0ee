package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chaz8081/carrito/internal/ble"
	"github.com/chaz8081/carrito/internal/config"
	"github.com/chaz8081/carrito/internal/control"
	"github.com/chaz8081/carrito/internal/input"
	"github.com/chaz8081/carrito/internal/permission"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/carrito/config.yaml)")
	initConfig := flag.Bool("init", false, "write the default config file and exit")
	noConnect := flag.Bool("no-connect", false, "do not connect on startup")
	flag.Parse()

	if *initConfig {
		path, err := config.WriteDefault()
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if path == "" {
			log.Printf("Config already exists at %s", config.DefaultConfigPath())
			return
		}
		log.Printf("Wrote default config to %s", path)
		return
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	setupLogging(cfg.LogLevel)
	printBanner(cfg)

	// Initialize the BLE stack
	adapter := ble.NewTinyGoAdapter()
	if err := adapter.Enable(); err != nil {
		log.Fatalf("This device does not support Bluetooth LE: %v", err)
	}
	log.Println("Bluetooth adapter ready")

	tier, _ := permission.ParseTier(cfg.Permissions.Tier)
	radio, platform, closePlatform := openPlatform(cfg.Device.Adapter)
	defer closePlatform()

	ctl := control.New(adapter, radio, permission.NewGate(tier, platform), cfg.ControllerOptions())

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	quit := make(chan struct{})

	var console *Console
	out := os.Stdout
	if cfg.Input.Console {
		console, err = NewConsole(ctl)
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
		log.SetOutput(console.Stderr())
	}

	var listener *input.Listener
	if cfg.Input.Keyboard {
		listener = input.NewListener(ctl, input.DefaultBindings(), cfg.Input.RepeatRate)
		go listener.Start()
		log.Println("Keyboard driving enabled (arrows drive, space stops, o/p toggle LED)")
	}

	go func() {
		for st := range ctl.Statuses() {
			if console != nil {
				console.Printf("[%s] %s\n", st.State, st)
			} else {
				fmt.Fprintf(out, "[%s] %s\n", st.State, st)
			}
			if st.Fatal() {
				log.Printf("Fatal: %s", st)
				select {
				case sigCh <- syscall.SIGTERM:
				default:
				}
				return
			}
		}
	}()

	if !*noConnect {
		ctl.RequestConnect()
	}

	if console != nil {
		go func() {
			console.Run()
			close(quit)
		}()
	}

	select {
	case sig := <-sigCh:
		log.Printf("Received %s, shutting down...", sig)
	case <-quit:
	}

	ctl.Close()
	if console != nil {
		console.Close()
	}
	log.Println("Goodbye!")
	if listener != nil {
		// Exit directly to avoid gohook's C cleanup crash.
		// The OS reclaims the event hook on process exit.
		closePlatform()
		os.Exit(0)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	// Try default config path
	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	// No config file, use defaults
	log.Println("No config file found, using defaults")
	return config.Default(), nil
}

func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetLogLoggerLevel(l)
}

// printBanner displays the startup configuration summary.
func printBanner(cfg *config.Config) {
	reconnect := "off"
	if cfg.Reconnect.Enabled {
		reconnect = "after " + cfg.Reconnect.Delay.String()
	}
	fmt.Println("=== carrito ===")
	fmt.Printf("  Device:     %s\n", cfg.Device.Name)
	fmt.Printf("  Service:    %s\n", cfg.Device.ServiceUUID)
	fmt.Printf("  Char:       %s\n", cfg.Device.CharacteristicUUID)
	fmt.Printf("  Scan:       %s\n", cfg.Scan.Timeout)
	fmt.Printf("  Reconnect:  %s\n", reconnect)
	fmt.Printf("  Perms:      %s\n", cfg.Permissions.Tier)
	fmt.Printf("  Keyboard:   %t\n", cfg.Input.Keyboard)
	fmt.Printf("  Log:        %s\n", cfg.LogLevel)
	fmt.Println("===============")
}
