package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/chaz8081/carrito/internal/control"
)

// Console is the interactive prompt for driving the rover by hand.
type Console struct {
	ctl *control.Controller
	rl  *readline.Instance
}

// NewConsole creates a Console bound to ctl.
func NewConsole(ctl *control.Controller) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "carrito> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{ctl: ctl, rl: rl}, nil
}

func completer() *readline.PrefixCompleter {
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("connect"),
		readline.PcItem("disconnect"),
		readline.PcItem("status"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	}
	for _, c := range control.Commands {
		items = append(items, readline.PcItem(string(c)))
	}
	return readline.NewPrefixCompleter(items...)
}

// Stderr returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Printf writes above the prompt.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.rl.Stdout(), format, args...)
}

// Close releases the terminal.
func (c *Console) Close() {
	_ = c.rl.Close()
}

// Run reads commands until quit, EOF or Close.
func (c *Console) Run() {
	c.printHelp()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if !c.handle(strings.ToLower(strings.Fields(input)[0])) {
			return
		}
	}
}

// handle runs one console word and reports whether to keep reading.
func (c *Console) handle(word string) bool {
	switch word {
	case "help", "?":
		c.printHelp()

	case "connect", "c":
		c.ctl.RequestConnect()

	case "disconnect", "d":
		c.ctl.Teardown()

	case "status", "s":
		id := c.ctl.Identity()
		c.Printf("%s: %s\n", id.Name, c.ctl.State())

	case "quit", "exit", "q":
		fmt.Fprintln(c.rl.Stdout(), "Exiting...")
		return false

	default:
		cmd, err := control.ParseCommand(word)
		if err != nil {
			c.Printf("Unknown command: %s (type 'help' for commands)\n", word)
			return true
		}
		// Failures are reported on the status stream.
		_ = c.ctl.SendCommand(cmd)
	}
	return true
}

func (c *Console) printHelp() {
	var words []string
	for _, cmd := range control.Commands {
		words = append(words, string(cmd))
	}
	fmt.Fprintf(c.rl.Stdout(), `
carrito commands:
  Connection:
    connect            - Find and connect to the rover
    disconnect         - Close the link and stop reconnecting
    status             - Show the connection state

  Driving:
    %s

  help                 - Show this help
  quit                 - Exit
`, strings.Join(words, " | "))
}
