package bluez

import (
	"errors"
	"fmt"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestIsAccessDenied(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"value error", dbus.Error{Name: errAccessDenied}, true},
		{"pointer error", &dbus.Error{Name: errAccessDenied}, true},
		{"wrapped", fmt.Errorf("get: %w", dbus.Error{Name: errAccessDenied}), true},
		{"other dbus error", dbus.Error{Name: "org.bluez.Error.NotReady"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAccessDenied(tt.err); got != tt.want {
				t.Errorf("isAccessDenied(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
