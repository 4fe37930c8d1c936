package rpmsgsock

import "github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus"

// refundThreshold is the "more than half the ring drained since the last
// refund" trigger: amortises refund frames while still returning credit
// well before the sender could stall.
func (c *Connection) refundThreshold() uint64 {
	return uint64(c.recvBuf.Cap() / 2)
}

// maybeSendCreditRefund issues a zero-payload DATA frame carrying the
// current recvpos if the consumer has drained more than half the ring
// since the last refund. Called after the caller has released recvMu; it
// re-takes recvMu itself to snapshot recvpos and advance lastpos.
func (c *Connection) maybeSendCreditRefund() {
	c.recvMu.Lock()
	pos := c.recvPos.Load()
	last := c.lastPos.Load()
	ept := c.ept
	due := pos-last > c.refundThreshold()
	if due {
		c.lastPos.Store(pos)
	}
	c.recvMu.Unlock()

	if !due || ept == nil {
		return
	}
	c.sendCreditFrame(ept, pos)
}

// sendCreditFrame submits a zero-payload DATA frame with pos set to the
// given snapshot of recvpos.
func (c *Connection) sendCreditFrame(ept rpmsgbus.Endpoint, pos uint64) {
	tb, err := ept.GetTXBuffer()
	if err != nil {
		return
	}
	encodeDataHeader(tb.Bytes(), dataHeader{pos: uint32(pos), len: 0})
	if err := ept.SendNoCopy(tb, dataHeaderLen); err != nil {
		ept.ReleaseTXBuffer(tb)
		return
	}
	c.metrics.ObserveFrameSent("credit_refund")
	c.metrics.ObserveCreditRefund()
}
