// Package bluez talks to the BlueZ daemon over the system D-Bus for what
// the BLE driver does not cover: whether an adapter exists, whether it is
// powered, powering it on, and whether this user may use it at all.
package bluez

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/godbus/dbus/v5"

	"github.com/chaz8081/carrito/internal/permission"
)

const (
	busName      = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	propsIface   = "org.freedesktop.DBus.Properties"

	errAccessDenied = "org.freedesktop.DBus.Error.AccessDenied"
)

// Client wraps a system D-Bus connection scoped to one BlueZ adapter.
// It implements control.Radio and permission.Platform.
type Client struct {
	conn    *dbus.Conn
	adapter dbus.ObjectPath
}

// Dial connects to the system bus. adapterName is the HCI name, e.g. "hci0".
func Dial(adapterName string) (*Client, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("bluez: connect to system bus: %w", err)
	}
	if adapterName == "" {
		adapterName = "hci0"
	}
	return &Client{
		conn:    conn,
		adapter: dbus.ObjectPath("/org/bluez/" + adapterName),
	}, nil
}

// Close releases the bus connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Present reports whether BlueZ is running and exposes the adapter.
func (c *Client) Present() bool {
	var names []string
	if err := c.conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		slog.Warn("[BLUEZ] list bus names", "error", err)
		return false
	}
	if !slices.Contains(names, busName) {
		return false
	}
	// An access-denied adapter still exists; the permission probe reports it.
	if _, err := c.getProp(c.adapter, adapterIface, "Address"); err != nil && !isAccessDenied(err) {
		return false
	}
	return true
}

// Powered reports the adapter's Powered property.
func (c *Client) Powered() (bool, error) {
	return c.getBool(c.adapter, adapterIface, "Powered")
}

// RequestPower asks BlueZ to power the adapter on. done receives whether the
// adapter ended up powered. Set fails when rfkill blocks the radio, which
// is the desktop equivalent of the user refusing.
func (c *Client) RequestPower(done func(on bool)) error {
	go func() {
		if err := c.setProp(c.adapter, adapterIface, "Powered", true); err != nil {
			slog.Warn("[BLUEZ] power on adapter", "adapter", c.adapter, "error", err)
			done(false)
			return
		}
		on, err := c.Powered()
		done(err == nil && on)
	}()
	return nil
}

// Granted probes the adapter property that the operation behind p needs.
// BlueZ enforces access through D-Bus policy, so a denied property read
// means the user lacks the grant. Location permissions do not exist here.
func (c *Client) Granted(p permission.Permission) bool {
	var prop string
	switch p {
	case permission.Scan, permission.LegacyBluetoothAdmin:
		prop = "Discovering"
	case permission.Connect, permission.LegacyBluetooth:
		prop = "Powered"
	default:
		return true
	}
	_, err := c.getProp(c.adapter, adapterIface, prop)
	if err != nil && isAccessDenied(err) {
		return false
	}
	return true
}

// Request re-probes perms asynchronously. There is no consent dialog on
// BlueZ; group membership or polkit rules decide.
func (c *Client) Request(perms []permission.Permission, done func(granted bool)) error {
	if c.conn == nil {
		return errors.New("bluez: not connected")
	}
	go func() {
		for _, p := range perms {
			if !c.Granted(p) {
				done(false)
				return
			}
		}
		done(true)
	}()
	return nil
}

var _ permission.Platform = (*Client)(nil)

// --- property helpers ---

func (c *Client) getProp(path dbus.ObjectPath, iface, prop string) (dbus.Variant, error) {
	obj := c.conn.Object(busName, path)
	var v dbus.Variant
	err := obj.Call(propsIface+".Get", 0, iface, prop).Store(&v)
	return v, err
}

func (c *Client) setProp(path dbus.ObjectPath, iface, prop string, val interface{}) error {
	obj := c.conn.Object(busName, path)
	return obj.Call(propsIface+".Set", 0, iface, prop, dbus.MakeVariant(val)).Err
}

func (c *Client) getBool(path dbus.ObjectPath, iface, prop string) (bool, error) {
	v, err := c.getProp(path, iface, prop)
	if err != nil {
		return false, fmt.Errorf("bluez: get %s.%s: %w", iface, prop, err)
	}
	val, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("bluez: property %s is not bool", prop)
	}
	return val, nil
}

func isAccessDenied(err error) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == errAccessDenied
	}
	var dbusErrPtr *dbus.Error
	if errors.As(err, &dbusErrPtr) {
		return dbusErrPtr.Name == errAccessDenied
	}
	return false
}
