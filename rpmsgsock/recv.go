package rpmsgsock

import (
	"context"
	"encoding/binary"
)

// Recv reads into buf from a connected socket. It returns the
// address the data arrived from (meaningful mainly for accepted/connected
// datagram sockets) alongside the byte count.
//
// A SOCK_DGRAM socket that was Bind'd but never Listen'd or Connect'd
// implicitly connects to the first peer that addresses it (§4.4). A socket
// that was never bound or connected at all has no path to ever receive
// anything and returns ErrIsConn immediately, per errors.go's documented
// contract.
//
// A datagram longer than buf is silently truncated: the excess bytes are
// discarded and no truncation indicator is returned.
func (c *Connection) Recv(ctx context.Context, buf []byte) (int, Addr, error) {
	if c.sockType == SockDgram {
		c.ensureDgramListener()
	}

	c.recvMu.Lock()
	role := c.role
	bound := c.localAddr.Name != ""
	c.recvMu.Unlock()
	if role == RoleUnbound && !(c.sockType == SockDgram && bound) {
		return 0, Addr{}, ErrIsConn
	}

	for {
		c.recvMu.Lock()
		if n, ok := c.drainRingLocked(buf); ok {
			from := c.remoteAddr
			c.recvMu.Unlock()
			c.maybeSendCreditRefund()
			return n, from, nil
		}

		gone := c.recvGoneLocked()
		if gone {
			c.recvMu.Unlock()
			return 0, Addr{}, nil // EOF
		}
		if c.isNonblock() {
			c.recvMu.Unlock()
			return 0, Addr{}, ErrAgain
		}

		target := &directTarget{buf: buf}
		c.recvTarget = target
		c.recvSem.Reset()
		c.recvMu.Unlock()

		waitErr := c.recvSem.Wait(ctx, c.recvTimeoutDur())

		c.recvMu.Lock()
		if target.done {
			from := c.remoteAddr
			c.recvMu.Unlock()
			c.maybeSendCreditRefund()
			return target.n, from, nil
		}
		if c.recvTarget == target {
			c.recvTarget = nil
		}
		c.recvMu.Unlock()

		if waitErr != nil {
			if c.unbind.Load() {
				return 0, Addr{}, ErrConnReset
			}
			return 0, Addr{}, waitErr
		}
		if c.unbind.Load() {
			return 0, Addr{}, ErrConnReset
		}
		// Spurious wake (e.g. a credit-only DATA frame raced the arm, or
		// ensureDgramListener's watcher just connected us): loop and retry
		// the ring drain.
	}
}

// recvGoneLocked reports whether Recv should stop waiting and return EOF:
// the peer explicitly unbound, or this is a once-connected socket whose
// endpoint is gone. A bound-but-not-yet-connected datagram socket (role
// still RoleUnbound, ept nil, waiting on ensureDgramListener's watcher) is
// not "gone" — it simply hasn't connected yet. Caller must hold recvMu.
func (c *Connection) recvGoneLocked() bool {
	if c.unbind.Load() {
		return true
	}
	return c.role != RoleUnbound && c.ept == nil
}

// drainRingLocked implements the "try to drain from the ring" half of a
// recv. Caller must hold recvMu.
func (c *Connection) drainRingLocked(buf []byte) (int, bool) {
	if c.sockType == SockDgram {
		return c.drainDatagramLocked(buf)
	}
	if c.recvBuf.Len() == 0 {
		return 0, false
	}
	n := c.recvBuf.Read(buf)
	c.recvPos.Add(uint64(n))
	return n, true
}

func (c *Connection) drainDatagramLocked(buf []byte) (int, bool) {
	if c.recvBuf.Len() < datagramPrefixLen {
		return 0, false
	}
	var prefix [datagramPrefixLen]byte
	c.recvBuf.Peek(prefix[:])
	dataLen := int(binary.LittleEndian.Uint32(prefix[:]))
	if c.recvBuf.Len() < datagramPrefixLen+dataLen {
		return 0, false // whole datagram hasn't arrived yet
	}
	c.recvBuf.Skip(datagramPrefixLen)

	full := make([]byte, dataLen)
	c.recvBuf.Read(full)
	n := min(len(buf), dataLen)
	copy(buf, full[:n])
	// excess bytes beyond len(buf) are already consumed from the ring and
	// simply dropped here: datagram truncation, no indicator.

	c.recvPos.Add(uint64(datagramPrefixLen + dataLen))
	return n, true
}
