package rpmsgsock

import (
	"context"
	"os"

	"github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus"
)

// Connect resolves name on remoteCPU and establishes a Client connection.
// It registers device-created/device-destroyed watchers on the bus; the
// RPMsg endpoint itself is only created once the peer's CPU actually
// appears on the bus.
//
// If the socket is non-blocking, Connect returns ErrInProgress immediately
// after the watchers are registered, matching the reference design's
// EINPROGRESS contract: the caller learns the outcome via poll (POLLOUT).
// A blocking Connect waits on the send-gate, bounded by the send timeout,
// until the peer's SYNC arrives.
func Connect(ctx context.Context, bus rpmsgbus.Bus, cfg Config, sockType SockType, remoteCPU, name string) (*Connection, error) {
	c := newConnection(bus, cfg, sockType)
	if err := c.doConnect(ctx, remoteCPU, name); err != nil {
		return c, err
	}
	return c, nil
}

// doConnect drives an Unbound connection into RoleClient against
// remoteCPU/name: the shared core of the package-level Connect and of
// SendTo's implicit-connect-on-send (§4.3) — "if the socket is not
// connected and a destination address is supplied, sendmsg performs
// connect before sending".
func (c *Connection) doConnect(ctx context.Context, remoteCPU, name string) error {
	c.recvMu.Lock()
	if c.role != RoleUnbound {
		c.recvMu.Unlock()
		return ErrIsConn
	}
	clientName := name + nextClientSuffix()
	wire := rpmsgWireName(clientName)
	if err := validateWireName(wire); err != nil {
		c.recvMu.Unlock()
		return err
	}
	c.recvBuf.Resize(c.cfg.RingCapacity)
	c.localAddr = Addr{CPU: c.cfg.LocalCPU, Name: clientName}
	c.role = RoleClient
	c.recvMu.Unlock()

	destSpeculative := rpmsgbus.Addr{CPU: remoteCPU, Name: wire}

	createEndpoint := func(rpmsgbus.Addr) {
		c.recvMu.Lock()
		if c.ept != nil {
			c.recvMu.Unlock()
			return
		}
		c.recvMu.Unlock()

		ept, err := c.bus.CreateEndpoint(wire, destSpeculative, c.onFrame, c.onUnbind, c.onBound)
		if err != nil {
			return
		}
		c.recvMu.Lock()
		c.ept = ept
		c.remoteAddr = Addr{CPU: remoteCPU, Name: name}
		c.recvMu.Unlock()
	}

	cancelCreated := c.bus.WatchDeviceCreated(remoteCPU, createEndpoint)
	cancelDestroyed := c.bus.WatchDeviceDestroyed(remoteCPU, func(rpmsgbus.Addr) { c.onUnbind() })
	c.recvMu.Lock()
	c.watchCancels = append(c.watchCancels, cancelCreated, cancelDestroyed)
	c.recvMu.Unlock()

	if c.isNonblock() {
		return ErrInProgress
	}

	if err := c.sendSem.Wait(ctx, c.sendTimeoutDur()); err != nil {
		if c.peerGone() {
			return ErrConnReset
		}
		return err
	}
	if c.peerGone() {
		return ErrConnReset
	}
	return nil
}

// NewSocket allocates an unconnected socket of sockType, suitable for
// SendTo's implicit-connect-on-send path or for Bind.
func NewSocket(bus rpmsgbus.Bus, cfg Config, sockType SockType) *Connection {
	return newConnection(bus, cfg, sockType)
}

// SendTo implements §4.3's implicit connect on send: if the socket is not
// yet connected, it is connected to dest first — synchronously, subject to
// the usual blocking/timeout/non-blocking rules of Connect — and only then
// is p sent. A socket already connected ignores dest and behaves like Send,
// matching sendmsg(2)'s EISCONN-avoidance semantics for connection-mode
// destinations.
func (c *Connection) SendTo(ctx context.Context, p []byte, dest Addr) (int, error) {
	c.recvMu.Lock()
	unbound := c.role == RoleUnbound
	c.recvMu.Unlock()
	if unbound {
		if err := c.doConnect(ctx, dest.CPU, dest.Name); err != nil {
			return 0, err
		}
	}
	return c.Send(ctx, p)
}

// onBound is the RPMsg bus's ns_bound hook: fired once this client's
// endpoint and the server's mirror endpoint both exist. It emits this
// side's SYNC frame.
func (c *Connection) onBound() {
	c.recvMu.Lock()
	ept := c.ept
	c.recvMu.Unlock()
	if ept == nil {
		return
	}
	_ = c.sendSyncFrame(ept, uint32(c.cfg.RingCapacity))
}

func (c *Connection) sendSyncFrame(ept rpmsgbus.Endpoint, size uint32) error {
	tb, err := ept.GetTXBuffer()
	if err != nil {
		return err
	}
	header := encodeSync(syncHeader{
		size: size,
		pid:  uint32(os.Getpid()),
		uid:  uint32(os.Getuid()),
		gid:  uint32(os.Getgid()),
	})
	copy(tb.Bytes(), header)
	if err := ept.SendNoCopy(tb, len(header)); err != nil {
		ept.ReleaseTXBuffer(tb)
		return err
	}
	c.metrics.ObserveFrameSent("sync")
	return nil
}
