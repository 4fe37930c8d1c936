package rpmsgsock

import "github.com/marmos91/rpmsgsock/rpmsgsock/pollset"

// PollRegister implements poll(setup=true): register w in a free poll-fd
// slot and return the slot handle plus the connection's current
// readiness, computed without waiting for a future notification.
func (c *Connection) PollRegister(w pollset.Waiter) (int, pollset.Events, error) {
	slot, err := c.polls.Register(w)
	if err != nil {
		return -1, 0, err
	}
	return slot, c.computeEvents(), nil
}

// PollUnregister implements poll(setup=false).
func (c *Connection) PollUnregister(slot int) {
	c.polls.Unregister(slot)
}

// computeEvents derives the current readiness mask. It never blocks.
func (c *Connection) computeEvents() pollset.Events {
	c.recvMu.Lock()
	role := c.role
	queued := len(c.acceptQ)
	ringReady := c.recvBuf.Len() > 0
	gone := c.recvGoneLocked()
	c.recvMu.Unlock()

	if c.hup.Load() {
		return pollset.Hup
	}

	switch role {
	case RoleListener:
		var ev pollset.Events
		if queued > 0 {
			ev |= pollset.In
		}
		return ev
	case RoleListenerClosed:
		return pollset.Err
	}

	// RoleUnbound here means a Bind-only SOCK_DGRAM socket still waiting on
	// its first peer (§4.4): not yet readable/writable, but not hung up.
	if role == RoleUnbound {
		return 0
	}
	if gone {
		return pollset.Hup
	}

	var ev pollset.Events
	c.sendMu.Lock()
	if c.creditLocked() > 0 {
		ev |= pollset.Out
	}
	c.sendMu.Unlock()
	if ringReady {
		ev |= pollset.In
	}
	return ev
}
