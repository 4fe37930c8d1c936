package rpmsgsock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/rpmsgsock/internal/logger"
	"github.com/marmos91/rpmsgsock/rpmsgsock/metrics"
	"github.com/marmos91/rpmsgsock/rpmsgsock/pollset"
	"github.com/marmos91/rpmsgsock/rpmsgsock/ring"
	"github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus"
	"github.com/marmos91/rpmsgsock/rpmsgsock/waitable"
)

// Role is the tagged variant replacing the reference design's overloaded
// backlog integer: each Connection is in exactly one of these roles, and
// role-specific data (the accept queue, the configured backlog) only
// makes sense in the roles that carry it.
type Role int

const (
	RoleUnbound Role = iota
	RoleClient
	RoleListener
	RoleListenerClosed
	RoleAccepted
)

func (r Role) String() string {
	switch r {
	case RoleUnbound:
		return "unbound"
	case RoleClient:
		return "client"
	case RoleListener:
		return "listener"
	case RoleListenerClosed:
		return "listener-closed"
	case RoleAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}

// Credentials are the peer's pid/uid/gid, learned from its SYNC frame and
// surfaced via GetSockOpt(SO_PEERCRED).
type Credentials struct {
	PID uint32
	UID uint32
	GID uint32
}

// directTarget is the one-shot rendezvous slot a blocked reader arms so the
// next inbound DATA frame is copied straight into its buffer instead of the
// ring. Redesigned here as a typed slot rather than a raw pointer+length
// pair; recvMu guards every access.
type directTarget struct {
	buf  []byte
	n    int  // bytes copied in, set by the callback
	done bool // set once the callback has filled buf
}

// Connection is one open RPMsg socket endpoint, in one of the Role values
// above. It is the sole stateful type in this package; everything else is
// a pure helper or an external-collaborator interface.
type Connection struct {
	bus    rpmsgbus.Bus
	cfg    Config
	sockType SockType

	// --- role & addressing; recvMu-protected except where noted ---
	recvMu     sync.Mutex // "recvlock": recvbuf, recvpos*, recvTarget, accept queue, role, SYNC-phase peerCred write (sendSize itself is atomic)
	role       Role
	backlog    int // configured capacity, meaningful only when role == RoleListener
	localAddr  Addr
	remoteAddr Addr
	peerCred   Credentials
	recvBuf    *ring.Buffer
	recvTarget *directTarget
	acceptQ    []*Connection // listener's FIFO of unaccepted children

	// --- endpoint / liveness ---
	ept    rpmsgbus.Endpoint
	unbind atomic.Bool
	watchCancels []func()

	// dgramListening marks a bound-but-unconnected SOCK_DGRAM socket that has
	// already registered its name-service watcher for the server-less
	// datagram pattern (§4.4): guards against Recv re-arming it on every call.
	dgramListening bool

	// --- send / credit state ---
	sendMu   sync.Mutex // "sendlock": sendpos, ackpos writes; TX-fill+submit atomicity
	sendSize atomic.Uint32 // peer's advertised RX capacity; 0 until SYNC
	sendPos  uint64
	ackPos   uint64

	// recvPos/lastPos are written from both recvMu (recv path, direct-copy
	// completion) and sendMu (stream send piggybacks pos=recvPos onto an
	// outbound DATA frame) call sites, so — unlike sendPos/ackPos, which only ever move under
	// sendMu — they are atomics to avoid a cross-lock data race the
	// reference design left to incidental memory-barrier behavior of its
	// semaphore primitives (see DESIGN.md).
	recvPos atomic.Uint64
	lastPos atomic.Uint64

	// --- waiters ---
	sendSem *waitable.Gate
	recvSem *waitable.Gate
	polls   *pollset.Table
	hup     atomic.Bool // sticky POLLHUP latch

	// --- lifecycle ---
	nonblock   atomic.Bool
	sendTimeout atomic.Int64 // nanoseconds; 0 = block forever
	recvTimeout atomic.Int64
	crefs      atomic.Int32
	closeOnce  sync.Once

	metrics *metrics.Collectors
}

// SetMetrics attaches a Collectors instance; nil is valid and disables
// metrics (each Observe*/Set* call on a nil *Collectors is a no-op).
func (c *Connection) SetMetrics(m *metrics.Collectors) {
	c.metrics = m
}

// newConnection allocates a Connection in RoleUnbound, sized from cfg.
func newConnection(bus rpmsgbus.Bus, cfg Config, sockType SockType) *Connection {
	cfg = cfg.withDefaults()
	c := &Connection{
		bus:      bus,
		cfg:      cfg,
		sockType: sockType,
		role:     RoleUnbound,
		recvBuf:  ring.New(cfg.RingCapacity),
		sendSem:  waitable.NewGate(),
		recvSem:  waitable.NewGate(),
		polls:    pollset.New(cfg.PollWaiters),
	}
	c.crefs.Store(1)
	return c
}

// AddRef increments the reference count for a duplicated descriptor: the
// connection is freed only once every referent has closed.
func (c *Connection) AddRef() {
	c.crefs.Add(1)
}

// SetNonblock toggles O_NONBLOCK semantics for this socket.
func (c *Connection) SetNonblock(nb bool) {
	c.nonblock.Store(nb)
}

func (c *Connection) isNonblock() bool { return c.nonblock.Load() }

// SetSendTimeout/SetRecvTimeout implement SO_SNDTIMEO/SO_RCVTIMEO. A zero
// duration means block forever.
func (c *Connection) SetSendTimeout(d time.Duration) { c.sendTimeout.Store(int64(d)) }
func (c *Connection) SetRecvTimeout(d time.Duration) { c.recvTimeout.Store(int64(d)) }

func (c *Connection) sendTimeoutDur() time.Duration { return time.Duration(c.sendTimeout.Load()) }
func (c *Connection) recvTimeoutDur() time.Duration { return time.Duration(c.recvTimeout.Load()) }

// connected reports whether the SYNC handshake has completed in either
// direction enough to carry data: sendSize becomes non-zero only once
// this side has received the peer's SYNC — zero is the "not yet
// connected" sentinel.
func (c *Connection) connected() bool {
	return c.sendSize.Load() > 0
}

// peerGone reports whether the endpoint is unusable: destroyed locally or
// unbound by the peer.
func (c *Connection) peerGone() bool {
	return c.ept == nil || c.unbind.Load()
}

// creditLocked returns the sender's currently available flow-control window:
// sendSize - (sendPos - ackPos). Caller must hold sendMu.
func (c *Connection) creditLocked() uint32 {
	size := c.sendSize.Load()
	if size == 0 {
		return 0
	}
	inflight := c.sendPos - c.ackPos
	if inflight >= uint64(size) {
		return 0
	}
	return size - uint32(inflight)
}

// GetSockName returns this connection's local address, with CPU set to this
// node's own CPU name (Config.LocalCPU).
func (c *Connection) GetSockName() Addr {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	return Addr{CPU: c.cfg.LocalCPU, Name: c.localAddr.Name}
}

// GetConnName returns the remote peer's address (getconnname).
func (c *Connection) GetConnName() Addr {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	return c.remoteAddr
}

// GetPeerCredentials implements SO_PEERCRED: the peer's pid/uid/gid as
// learned from its SYNC frame. Zero-valued until SYNC arrives.
func (c *Connection) GetPeerCredentials() Credentials {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	return c.peerCred
}

// Role reports the connection's current role (debug/test use).
func (c *Connection) Role() Role {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	return c.role
}

func (c *Connection) logFields() []any {
	return []any{
		logger.Local(c.localAddr.String()),
		logger.Remote(c.remoteAddr.String()),
		logger.Role(c.role.String()),
	}
}

func (c *Connection) debugf(msg string, kv ...any) {
	logger.Debug(msg, append(c.logFields(), kv...)...)
}
