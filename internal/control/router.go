package control

import (
	"log/slog"

	"github.com/chaz8081/carrito/internal/permission"
)

// router turns logical commands into writes on a ready session. It holds
// at most one command deferred behind a permission request; a newer one
// replaces it. All methods run on the controller loop.
type router struct {
	session *gattSession
	gate    *permission.Gate
	post    func(func()) bool
	words   map[Command]string

	deferred    Command
	hasDeferred bool

	// report receives failures of deferred sends, which have no caller.
	report func(Command, error)
}

func newRouter(session *gattSession, gate *permission.Gate, post func(func()) bool, words map[Command]string, report func(Command, error)) *router {
	return &router{
		session: session,
		gate:    gate,
		post:    post,
		words:   wireWords(words),
		report:  report,
	}
}

// Send writes cmd's wire word. Permissions are re-checked every time since
// they can be revoked between sends.
func (r *router) Send(cmd Command) error {
	if !cmd.Valid() {
		return ErrUnknownCommand
	}
	if !r.session.Ready() {
		return ErrNotConnected
	}

	switch r.gate.Authorize(func(granted bool) {
		r.post(func() { r.permissionResult(granted) })
	}) {
	case permission.Denied:
		return ErrPermissionDenied
	case permission.PendingUserResponse:
		slog.Info("[CMD] deferred until permissions are granted", "command", cmd)
		r.deferred = cmd
		r.hasDeferred = true
		return nil
	}

	payload := []byte(r.words[cmd])
	slog.Debug("[CMD] send", "command", cmd, "payload", string(payload))
	return r.session.Write(payload)
}

// Payload returns the bytes written for cmd.
func (r *router) Payload(cmd Command) []byte {
	return []byte(r.words[cmd])
}

// Drop forgets a deferred command.
func (r *router) Drop() {
	r.deferred = ""
	r.hasDeferred = false
}

func (r *router) permissionResult(granted bool) {
	if !r.hasDeferred {
		return
	}
	cmd := r.deferred
	r.Drop()
	if !granted {
		slog.Warn("[CMD] permissions denied, dropping command", "command", cmd)
		r.report(cmd, ErrPermissionDenied)
		return
	}
	if err := r.Send(cmd); err != nil {
		slog.Warn("[CMD] deferred send failed", "command", cmd, "error", err)
		r.report(cmd, err)
	}
}
