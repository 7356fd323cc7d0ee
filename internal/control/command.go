package control

import (
	"fmt"
	"strings"
)

// Command is one of the fixed logical commands the rover understands.
type Command string

const (
	Forward  Command = "forward"
	Backward Command = "backward"
	Left     Command = "left"
	Right    Command = "right"
	Stop     Command = "stop"
	LEDOn    Command = "led_on"
	LEDOff   Command = "led_off"
)

// Commands lists every valid command.
var Commands = []Command{Forward, Backward, Left, Right, Stop, LEDOn, LEDOff}

// DefaultWireWords maps commands to the words the rover firmware parses.
var DefaultWireWords = map[Command]string{
	Forward:  "adelante",
	Backward: "atras",
	Left:     "izquierda",
	Right:    "derecha",
	Stop:     "alto",
	LEDOn:    "led_on",
	LEDOff:   "led_off",
}

// Valid reports whether c is in the closed command set.
func (c Command) Valid() bool {
	_, ok := DefaultWireWords[c]
	return ok
}

// ParseCommand accepts a command name or its default wire word,
// case-insensitively.
func ParseCommand(s string) (Command, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c := Command(s); c.Valid() {
		return c, nil
	}
	for c, w := range DefaultWireWords {
		if w == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// wireWords resolves overrides on top of the defaults.
func wireWords(overrides map[Command]string) map[Command]string {
	words := make(map[Command]string, len(DefaultWireWords))
	for c, w := range DefaultWireWords {
		words[c] = w
	}
	for c, w := range overrides {
		if c.Valid() && w != "" {
			words[c] = w
		}
	}
	return words
}
