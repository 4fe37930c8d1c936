package logger

import "log/slog"

// Standard field keys for structured logging, for the RPMsg socket
// transport: connection identity, credit/byte counts, frame kinds, and
// errors. KeyCredit/KeyFrame and their constructors are defined, but no
// log statement in the transport uses them. Use these keys consistently
// across log statements so aggregation/querying stays uniform.
const (
	// KeyLocal/KeyRemote/KeyRole identify a Connection in a log line, the
	// same triple every rpmsgsock debug log carries.
	KeyLocal  = "local"
	KeyRemote = "remote"
	KeyRole   = "role"

	// KeyBytes is a generic byte count: ring writes, overflow drops, frame
	// payload sizes.
	KeyBytes = "bytes"

	// KeyCredit is the sender's current flow-control window.
	KeyCredit = "credit"

	// KeyFrame names the wire frame kind a log line concerns (sync, data,
	// credit_refund).
	KeyFrame = "frame"

	// KeyError carries an error's message.
	KeyError = "error"
)

// Local returns a slog.Attr for a connection's local address.
func Local(addr string) slog.Attr {
	return slog.String(KeyLocal, addr)
}

// Remote returns a slog.Attr for a connection's remote address.
func Remote(addr string) slog.Attr {
	return slog.String(KeyRemote, addr)
}

// Role returns a slog.Attr for a connection's role.
func Role(role string) slog.Attr {
	return slog.String(KeyRole, role)
}

// Bytes returns a slog.Attr for a byte count.
func Bytes(n int) slog.Attr {
	return slog.Int(KeyBytes, n)
}

// Credit returns a slog.Attr for a flow-control credit value.
func Credit(n uint32) slog.Attr {
	return slog.Uint64(KeyCredit, uint64(n))
}

// Frame returns a slog.Attr naming a wire frame kind.
func Frame(kind string) slog.Attr {
	return slog.String(KeyFrame, kind)
}

// Err returns a slog.Attr for an error; nil yields an empty attr that slog
// drops from the output.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
