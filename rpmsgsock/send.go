package rpmsgsock

import (
	"context"
	"encoding/binary"

	"github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus"
)

// Send writes p to a connected socket. Streams may return a partial
// count; datagrams are all-or-nothing.
func (c *Connection) Send(ctx context.Context, p []byte) (int, error) {
	if !c.connected() {
		return 0, ErrNotConn
	}
	switch c.sockType {
	case SockDgram:
		return c.sendSingle(ctx, p)
	default:
		return c.sendContinuous(ctx, p)
	}
}

// sendContinuous implements the stream send path: loops, splitting the
// payload across as many DATA frames as the credit window and the bus's
// native frame size require.
func (c *Connection) sendContinuous(ctx context.Context, p []byte) (int, error) {
	var written int
	for written < len(p) {
		c.sendMu.Lock()
		remaining := len(p) - written
		block := min(remaining, int(c.creditLocked()))
		ept := c.ept
		if block == 0 {
			// Reset must happen before sendMu is released: otherwise a
			// concurrent handleData credit update + Notify landing between
			// the unlock and this Reset would be silently wiped, and this
			// wait would hang past the point credit actually arrived.
			c.sendSem.Reset()
		}
		c.sendMu.Unlock()

		if block == 0 {
			if c.peerGone() {
				if written > 0 {
					return written, nil
				}
				return 0, ErrConnReset
			}
			if c.isNonblock() {
				if written > 0 {
					return written, nil
				}
				return 0, ErrAgain
			}
			if err := c.sendSem.Wait(ctx, c.sendTimeoutDur()); err != nil {
				if written > 0 {
					return written, nil
				}
				if c.peerGone() {
					return 0, ErrConnReset
				}
				return 0, err
			}
			continue
		}

		if ept == nil {
			if written > 0 {
				return written, nil
			}
			return 0, ErrConnReset
		}
		tb, err := ept.GetTXBuffer()
		if err != nil {
			if written > 0 {
				return written, nil
			}
			return 0, err
		}

		c.sendMu.Lock()
		block = min(block, len(tb.Bytes())-dataHeaderLen)
		if block <= 0 {
			c.sendMu.Unlock()
			ept.ReleaseTXBuffer(tb)
			if written > 0 {
				return written, nil
			}
			return 0, ErrNoMem
		}
		pos := c.recvPos.Load()
		encodeDataHeader(tb.Bytes(), dataHeader{pos: uint32(pos), len: uint32(block)})
		copy(tb.Bytes()[dataHeaderLen:], p[written:written+block])
		c.lastPos.Store(pos)
		c.sendPos += uint64(block)
		submitErr := ept.SendNoCopy(tb, dataHeaderLen+block)
		c.sendMu.Unlock()

		if submitErr != nil {
			ept.ReleaseTXBuffer(tb)
			if written > 0 {
				return written, nil
			}
			return 0, submitErr
		}
		c.metrics.ObserveFrameSent("data")
		written += block
	}
	return written, nil
}

// sendSingle implements the datagram send path: a whole datagram goes out
// in one DATA frame, or not at all.
func (c *Connection) sendSingle(ctx context.Context, p []byte) (int, error) {
	need := dataHeaderLen + datagramPrefixLen + len(p)
	if need > int(c.sendSize.Load()) {
		return 0, ErrTooBig
	}

	var ept rpmsgbus.Endpoint
	for {
		c.sendMu.Lock()
		credit := c.creditLocked()
		ept = c.ept
		ready := int(credit) >= dataHeaderLen+datagramPrefixLen+len(p)
		if !ready {
			// See sendContinuous: Reset must happen in the same sendMu
			// critical section as the credit check, or a concurrent
			// handleData Notify between unlock and Reset is lost.
			c.sendSem.Reset()
		}
		c.sendMu.Unlock()
		if ready {
			break
		}
		if c.peerGone() {
			return 0, ErrConnReset
		}
		if c.isNonblock() {
			return 0, ErrAgain
		}
		if err := c.sendSem.Wait(ctx, c.sendTimeoutDur()); err != nil {
			if c.peerGone() {
				return 0, ErrConnReset
			}
			return 0, err
		}
	}

	if ept == nil {
		return 0, ErrConnReset
	}
	tb, err := ept.GetTXBuffer()
	if err != nil {
		return 0, err
	}
	if dataHeaderLen+datagramPrefixLen+len(p) > len(tb.Bytes()) {
		ept.ReleaseTXBuffer(tb)
		return 0, ErrTooBig
	}

	c.sendMu.Lock()
	pos := c.recvPos.Load()
	encodeDataHeader(tb.Bytes(), dataHeader{pos: uint32(pos), len: uint32(len(p))})
	buf := tb.Bytes()
	binary.LittleEndian.PutUint32(buf[dataHeaderLen:], uint32(len(p)))
	copy(buf[dataHeaderLen+datagramPrefixLen:], p)
	c.lastPos.Store(pos)
	c.sendPos += uint64(datagramPrefixLen + len(p))
	submitErr := ept.SendNoCopy(tb, dataHeaderLen+datagramPrefixLen+len(p))
	c.sendMu.Unlock()

	if submitErr != nil {
		ept.ReleaseTXBuffer(tb)
		return 0, submitErr
	}
	c.metrics.ObserveFrameSent("data")
	return len(p), nil
}
