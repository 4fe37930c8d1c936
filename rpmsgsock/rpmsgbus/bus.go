// Package rpmsgbus declares the external collaborator surface the transport
// core depends on: RPMsg endpoint lifecycle, zero-copy sends, and
// name-service discovery. None of it is implemented
// here for a real device — a real build supplies an implementation backed
// by the kernel/firmware RPMsg character device; subpackage simbus supplies
// an in-process fake used by the test suite and the demo CLI.
package rpmsgbus

// Addr names one endpoint on the bus: the CPU it lives on plus its local
// RPMsg endpoint name (already including any client suffix).
type Addr struct {
	CPU  string
	Name string
}

func (a Addr) String() string {
	return a.CPU + ":" + a.Name
}

// TXBuffer is a zero-copy payload buffer acquired from the bus for exactly
// one outbound frame. Bytes returns the full addressable region (length
// equal to the bus's MaxPayloadSize); the caller writes its header and
// payload into a prefix of it and passes the number of meaningful bytes to
// SendNoCopy.
type TXBuffer interface {
	Bytes() []byte
}

// FrameHandler is invoked by the bus for every inbound frame on an
// endpoint. The bus guarantees serial, non-blocking delivery:
// implementations must not suspend and must not call back into the bus
// while holding a transport lock acquired higher in the same call stack.
type FrameHandler func(data []byte)

// UnbindHandler is invoked at most once, when the remote peer unbinds
// (ns-unbind). The endpoint handle remains valid until this side closes it.
type UnbindHandler func()

// BoundHandler is invoked at most once, when the endpoint has a live peer
// and is ready to exchange frames — immediately after creation for a
// directly-addressed client endpoint, or once its announcement has been
// matched, for a server-created one.
type BoundHandler func()

// Endpoint is one live, named RPMsg endpoint.
type Endpoint interface {
	LocalAddr() Addr

	// GetTXBuffer acquires a zero-copy send buffer. Callers must either
	// SendNoCopy or ReleaseTXBuffer it, never both, never neither.
	GetTXBuffer() (TXBuffer, error)

	// SendNoCopy submits the first n bytes of buf (previously obtained from
	// GetTXBuffer) as one frame. Ownership of buf transfers to the bus.
	SendNoCopy(buf TXBuffer, n int) error

	// ReleaseTXBuffer returns an unsent buffer to the bus without sending.
	ReleaseTXBuffer(buf TXBuffer)

	// Destroy tears the endpoint down. Idempotent; safe to call more than
	// once and from any goroutine.
	Destroy()
}

// NameServiceMatch reports whether an announced name should be accepted by a
// listener's WatchNameService registration.
type NameServiceMatch func(announcedName string) bool

// NameServiceBind is invoked once per accepted announcement. It runs
// synchronously on a bus-internal goroutine and must not block.
type NameServiceBind func(remote Addr, announcedName string)

// Bus is the RPMsg message bus abstraction the transport core is built
// against. A production implementation is a thin wrapper over the RPMsg
// character device; see simbus for the in-process fake used in tests.
type Bus interface {
	// LocalCPU returns this node's own CPU name. The rpmsgsock core does not
	// call it: it takes its own CPU name from its Config.LocalCPU.
	LocalCPU() string

	// MaxPayloadSize returns the bus's native zero-copy TX buffer size: the
	// maximum bytes (header + payload) a single frame may occupy.
	MaxPayloadSize() int

	// CreateEndpoint creates and binds a local endpoint under name. If dest
	// is non-zero, frames sent through the returned Endpoint are routed
	// there and creation itself announces name to dest.CPU's name service.
	// fh, uh, bh may be nil.
	CreateEndpoint(name string, dest Addr, fh FrameHandler, uh UnbindHandler, bh BoundHandler) (Endpoint, error)

	// WatchDeviceCreated registers handler to fire every time cpu's RPMsg
	// device (i.e. any endpoint originating from that CPU) becomes visible.
	// Returns a cancel function.
	WatchDeviceCreated(cpu string, handler func(remote Addr)) (cancel func())

	// WatchDeviceDestroyed mirrors WatchDeviceCreated for device loss.
	WatchDeviceDestroyed(cpu string, handler func(remote Addr)) (cancel func())

	// WatchNameService registers a server-side matcher+binder pair: every
	// announcement from a CPU matching cpuFilter (empty = any) whose name
	// satisfies match invokes bind. Returns a cancel function.
	WatchNameService(cpuFilter string, match NameServiceMatch, bind NameServiceBind) (cancel func())
}
