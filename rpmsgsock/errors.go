package rpmsgsock

import "errors"

// Errors are categorical, matching their POSIX errno counterparts. Callers
// compare with errors.Is; the transport never returns ad-hoc wrapped text
// for these conditions so scenario tests can assert on them directly.
var (
	// ErrInvalid covers a bad address family/length, listen without bind, or
	// a non-positive listen backlog.
	ErrInvalid = errors.New("rpmsgsock: invalid argument")

	// ErrNoMem is returned by a stream Send when the bus's TX buffer has no
	// room for payload after the DATA header. Connection setup and the
	// server-side name-service bind never return it.
	ErrNoMem = errors.New("rpmsgsock: cannot allocate connection")

	// ErrIsConn is returned by Connect on an already-connected socket, and by
	// Recv when called on a socket that was never connected.
	ErrIsConn = errors.New("rpmsgsock: already connected")

	// ErrNotConn is returned by Send when the socket is not connected and no
	// destination address was supplied.
	ErrNotConn = errors.New("rpmsgsock: not connected")

	// ErrInProgress is returned by a non-blocking Connect once the device
	// watch has been armed but the SYNC handshake has not yet completed.
	ErrInProgress = errors.New("rpmsgsock: connect in progress")

	// ErrAgain is returned for non-blocking operations that would otherwise
	// block: no data, no credit, or an empty accept queue.
	ErrAgain = errors.New("rpmsgsock: resource temporarily unavailable")

	// ErrConnReset covers every way the peer or listener disappears out from
	// under an in-progress operation: listener closed during accept, peer
	// gone during a wait, or the endpoint destroyed mid-send/recv.
	ErrConnReset = errors.New("rpmsgsock: connection reset by peer")

	// ErrTooBig is returned when a datagram does not fit the peer's
	// advertised send window.
	ErrTooBig = errors.New("rpmsgsock: message too large for peer window")

	// ErrNotSupported is returned by Listen on a datagram socket.
	ErrNotSupported = errors.New("rpmsgsock: operation not supported")

	// ErrBadIoctl is returned for an unrecognized ioctl request.
	ErrBadIoctl = errors.New("rpmsgsock: inappropriate ioctl for device")

	// ErrNoProtoOpt is returned by GetSockOpt for anything but SO_PEERCRED.
	ErrNoProtoOpt = errors.New("rpmsgsock: protocol not available")
)
