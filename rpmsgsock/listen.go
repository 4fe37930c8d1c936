package rpmsgsock

import (
	"context"
	"strings"

	"github.com/marmos91/rpmsgsock/rpmsgsock/pollset"
	"github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus"
)

// Bind records the address a subsequent Listen will register with the name
// service. No suffix is appended: a listener's name is exactly the logical
// name given.
func Bind(bus rpmsgbus.Bus, cfg Config, sockType SockType, cpuFilter, name string) (*Connection, error) {
	c := newConnection(bus, cfg, sockType)
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.role != RoleUnbound {
		return nil, ErrIsConn
	}
	c.localAddr = Addr{CPU: cpuFilter, Name: name}
	return c, nil
}

// Listen switches a bound Connection into RoleListener with the given
// backlog. backlog must be > 0. Datagram sockets cannot listen (ENOSYS).
func (c *Connection) Listen(backlog int) error {
	if c.sockType == SockDgram {
		return ErrNotSupported
	}
	if backlog <= 0 {
		return ErrInvalid
	}

	c.recvMu.Lock()
	if c.role != RoleUnbound || c.localAddr.Name == "" {
		c.recvMu.Unlock()
		return ErrInvalid
	}
	if max := c.cfg.MaxBacklog; max > 0 && backlog > max {
		backlog = max
	}
	c.role = RoleListener
	c.backlog = backlog
	prefix := rpmsgNamePrefix + c.localAddr.Name
	cpuFilter := c.localAddr.CPU
	c.recvMu.Unlock()

	match := func(announced string) bool {
		return strings.HasPrefix(announced, prefix)
	}
	bind := func(remote rpmsgbus.Addr, announced string) {
		c.onNameServiceBind(remote, announced)
	}
	cancel := c.bus.WatchNameService(cpuFilter, match, bind)
	c.recvMu.Lock()
	c.watchCancels = append(c.watchCancels, cancel)
	c.recvMu.Unlock()
	return nil
}

// onNameServiceBind runs when some client's announced endpoint name matches
// this listener's prefix: allocate a child Connection, create its
// mirror endpoint, emit SYNC immediately, then enqueue it (or reject if the
// backlog is full).
func (c *Connection) onNameServiceBind(remote rpmsgbus.Addr, announced string) {
	c.recvMu.Lock()
	if c.role != RoleListener {
		c.recvMu.Unlock()
		return
	}
	localCPU := c.cfg.LocalCPU
	cfg := c.cfg
	sockType := c.sockType
	c.recvMu.Unlock()

	// No early backlog check here: §4.2 always creates the mirror endpoint
	// and emits SYNC first, then rejects based on the queue depth at
	// enqueue time below. Bailing out before creating the endpoint would
	// leave an over-backlog client's own endpoint with no peer ever
	// destroyed at its destination address, so it would never observe the
	// reject (see simbus's unregisterEndpoint, which surfaces that as an
	// ns-unbind on the client side).
	child := newConnection(c.bus, cfg, sockType)
	child.metrics = c.metrics
	child.recvMu.Lock()
	child.role = RoleAccepted
	logical := stripWirePrefix(announced)
	child.localAddr = Addr{CPU: localCPU, Name: logical}
	child.remoteAddr = Addr{CPU: remote.CPU, Name: stripWirePrefix(remote.Name)}
	child.recvBuf.Resize(cfg.RingCapacity)
	child.recvMu.Unlock()

	ept, err := c.bus.CreateEndpoint(announced, remote, child.onFrame, child.onUnbind, nil)
	if err != nil {
		return
	}
	child.recvMu.Lock()
	child.ept = ept
	child.recvMu.Unlock()

	if err := child.sendSyncFrame(ept, uint32(cfg.RingCapacity)); err != nil {
		ept.Destroy()
		return
	}

	c.recvMu.Lock()
	if c.role != RoleListener || len(c.acceptQ) >= c.backlog {
		c.recvMu.Unlock()
		ept.Destroy()
		return
	}
	c.acceptQ = append(c.acceptQ, child)
	depth := len(c.acceptQ)
	listenerName := c.localAddr.Name
	c.recvMu.Unlock()

	c.metrics.SetAcceptQueueDepth(listenerName, depth)
	c.recvSem.Notify()
	c.polls.Notify(pollset.In)
}

// ensureDgramListener implements the bind side of §4.4's "server-less
// datagram pattern": a SOCK_DGRAM socket that was Bind'd but never
// Listen'd or Connect'd watches the name service for the first peer that
// addresses its bound name, and implicitly connects to it — with no
// accept queue, since the datagram socket itself becomes the endpoint.
func (c *Connection) ensureDgramListener() {
	c.recvMu.Lock()
	if c.sockType != SockDgram || c.role != RoleUnbound || c.localAddr.Name == "" || c.dgramListening {
		c.recvMu.Unlock()
		return
	}
	c.dgramListening = true
	prefix := rpmsgNamePrefix + c.localAddr.Name
	cpuFilter := c.localAddr.CPU
	c.recvMu.Unlock()

	match := func(announced string) bool {
		return strings.HasPrefix(announced, prefix)
	}
	bind := func(remote rpmsgbus.Addr, announced string) {
		c.onDatagramPeerBind(remote, announced)
	}
	cancel := c.bus.WatchNameService(cpuFilter, match, bind)
	c.recvMu.Lock()
	c.watchCancels = append(c.watchCancels, cancel)
	c.recvMu.Unlock()
}

// onDatagramPeerBind is ensureDgramListener's name-service hook: the first
// matching peer wins the implicit connect, becoming this socket's sole
// correspondent exactly as if Connect had been called against it.
func (c *Connection) onDatagramPeerBind(remote rpmsgbus.Addr, announced string) {
	c.recvMu.Lock()
	if c.role != RoleUnbound || c.ept != nil {
		c.recvMu.Unlock()
		return
	}
	cfg := c.cfg
	c.role = RoleClient
	c.remoteAddr = Addr{CPU: remote.CPU, Name: stripWirePrefix(remote.Name)}
	c.recvMu.Unlock()

	ept, err := c.bus.CreateEndpoint(announced, remote, c.onFrame, c.onUnbind, nil)
	if err != nil {
		c.recvMu.Lock()
		c.role = RoleUnbound
		c.remoteAddr = Addr{}
		c.recvMu.Unlock()
		return
	}
	c.recvMu.Lock()
	c.ept = ept
	c.recvMu.Unlock()

	if err := c.sendSyncFrame(ept, uint32(cfg.RingCapacity)); err != nil {
		ept.Destroy()
	}
	c.recvSem.Notify()
	c.polls.Notify(pollset.In | pollset.Out)
}

// Accept waits for and removes the head of the listener's accept queue.
// On success, the returned Connection registers its own
// device-destroyed watcher so it learns of peer loss independently of the
// parent listener.
func (c *Connection) Accept(ctx context.Context) (*Connection, error) {
	for {
		c.recvMu.Lock()
		if c.role == RoleListenerClosed {
			c.recvMu.Unlock()
			return nil, ErrConnReset
		}
		if c.role != RoleListener {
			c.recvMu.Unlock()
			return nil, ErrInvalid
		}
		if len(c.acceptQ) > 0 {
			child := c.acceptQ[0]
			c.acceptQ = c.acceptQ[1:]
			depth := len(c.acceptQ)
			listenerName := c.localAddr.Name
			c.recvMu.Unlock()
			c.metrics.SetAcceptQueueDepth(listenerName, depth)
			return c.finishAccept(ctx, child)
		}
		if c.isNonblock() {
			c.recvMu.Unlock()
			return nil, ErrAgain
		}
		c.recvSem.Reset()
		c.recvMu.Unlock()

		if err := c.recvSem.Wait(ctx, c.recvTimeoutDur()); err != nil {
			return nil, err
		}
	}
}

func (c *Connection) finishAccept(ctx context.Context, child *Connection) (*Connection, error) {
	remoteCPU := child.GetConnName().CPU
	cancel := child.bus.WatchDeviceDestroyed(remoteCPU, func(rpmsgbus.Addr) { child.onUnbind() })
	child.recvMu.Lock()
	child.watchCancels = append(child.watchCancels, cancel)
	child.recvMu.Unlock()

	if !child.connected() {
		if err := child.sendSem.Wait(ctx, child.sendTimeoutDur()); err != nil {
			if child.peerGone() {
				return child, ErrConnReset
			}
			return child, err
		}
	}
	return child, nil
}
