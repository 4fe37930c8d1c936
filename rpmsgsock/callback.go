package rpmsgsock

import (
	"github.com/marmos91/rpmsgsock/internal/logger"
	"github.com/marmos91/rpmsgsock/rpmsgsock/pollset"
)

// onFrame is the RPMsg endpoint callback: invoked by the bus, once per
// inbound frame, serially per endpoint (a documented precondition — see
// DESIGN.md). It must never block: only post gates and notify poll.
func (c *Connection) onFrame(data []byte) {
	cmd, ok := frameCmd(data)
	if !ok {
		logger.Warn("dropping malformed frame", append(c.logFields(), logger.Bytes(len(data)))...)
		return
	}
	switch cmd {
	case cmdSync:
		c.metrics.ObserveFrameReceived("sync")
		c.handleSync(data)
	case cmdData:
		c.metrics.ObserveFrameReceived("data")
		c.handleData(data)
	default:
		logger.Warn("dropping frame with unknown command", append(c.logFields(), logger.Bytes(len(data)))...)
	}
}

func (c *Connection) handleSync(data []byte) {
	h, ok := decodeSync(data)
	if !ok {
		return
	}
	c.recvMu.Lock()
	c.peerCred = Credentials{PID: h.pid, UID: h.uid, GID: h.gid}
	c.recvMu.Unlock()

	c.sendSize.Store(h.size)
	c.sendSem.Notify()
	c.polls.Notify(pollset.Out)
}

func (c *Connection) handleData(data []byte) {
	h, ok := decodeDataHeader(data)
	if !ok {
		return
	}

	// Credit half, under sendMu.
	c.sendMu.Lock()
	c.ackPos = uint64(h.pos)
	credit := c.creditLocked()
	c.sendMu.Unlock()
	if credit > 0 {
		c.sendSem.Notify()
		c.polls.Notify(pollset.Out)
	}

	if len(data) <= dataHeaderLen {
		return // pure credit update, no payload half
	}
	payload := data[dataHeaderLen:]
	c.deliverPayload(payload, h)
}

// deliverPayload delivers an inbound DATA frame's payload: direct-copy to
// a blocked reader if one is armed, otherwise append to the ring; either
// way notify POLLIN afterward.
func (c *Connection) deliverPayload(payload []byte, h dataHeader) {
	c.recvMu.Lock()

	target := c.recvTarget
	if target != nil {
		c.recvTarget = nil
		switch c.sockType {
		case SockStream:
			n := min(len(target.buf), int(h.len))
			if n > len(payload) {
				n = len(payload)
			}
			copy(target.buf, payload[:n])
			target.n = n
			target.done = true
			c.recvPos.Add(uint64(n))

			remaining := payload[n:]
			if len(remaining) > 0 {
				if err := c.recvBuf.Write(remaining); err != nil {
					c.debugf("rx ring overflow dropping bytes", logger.Bytes(len(remaining)))
					c.metrics.ObserveRXRingOverflow(len(remaining))
				}
			}
		case SockDgram:
			body := payload
			if len(body) >= datagramPrefixLen {
				body = body[datagramPrefixLen:]
			}
			n := min(len(target.buf), len(body))
			copy(target.buf, body[:n])
			target.n = n
			target.done = true
			c.recvPos.Add(uint64(len(payload)))
		}
		c.recvSem.Notify()
		c.recvMu.Unlock()
		c.polls.Notify(pollset.In)
		return
	}

	if err := c.recvBuf.Write(payload); err != nil {
		c.debugf("rx ring overflow dropping frame", logger.Bytes(len(payload)))
		c.metrics.ObserveRXRingOverflow(len(payload))
	}
	occupied := c.recvBuf.Len()
	local := c.localAddr.String()
	c.recvMu.Unlock()
	c.metrics.SetRXRingOccupancy(local, occupied)
	c.polls.Notify(pollset.In)
}

// onUnbind is fired when the bus reports the peer gone, either via the
// endpoint's own unbind hook (client/listener-child path) or a
// device-destroyed watcher.
func (c *Connection) onUnbind() {
	c.unbind.Store(true)
	c.sendSem.Notify()
	c.recvSem.Notify()
	c.hup.Store(true)
	c.polls.Notify(pollset.In | pollset.Out | pollset.Hup)
}
