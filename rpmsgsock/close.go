package rpmsgsock

import "github.com/marmos91/rpmsgsock/rpmsgsock/pollset"

// Close implements the connection's teardown ordering: decrement the
// reference count; only the referent that drives it to zero actually
// tears anything down. Unregisters whichever bus watchers this role installed, destroys
// the endpoint (or, for a listener, every still-queued child), wakes any
// blocked waiter with the closed state, and moves a listener to
// RoleListenerClosed (other roles keep their role value).
func (c *Connection) Close() error {
	if c.crefs.Add(-1) > 0 {
		return nil
	}

	c.recvMu.Lock()
	cancels := c.watchCancels
	c.watchCancels = nil
	role := c.role
	queued := c.acceptQ
	c.acceptQ = nil
	if role == RoleListener {
		c.role = RoleListenerClosed
	}
	c.recvMu.Unlock()

	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
	for _, child := range queued {
		child.destroyEndpoint()
	}

	c.closeOnce.Do(func() {
		c.destroyEndpoint()
	})
	return nil
}

// destroyEndpoint tears down the RPMsg endpoint under both locks (taken
// in the fixed order recvlock then sendlock), wakes both gates, and
// notifies POLLIN|POLLOUT so any blocked caller observes the closed state.
func (c *Connection) destroyEndpoint() {
	c.recvMu.Lock()
	c.sendMu.Lock()
	ept := c.ept
	c.ept = nil
	c.sendMu.Unlock()
	c.recvMu.Unlock()

	if ept != nil {
		ept.Destroy()
	}

	c.sendSem.Notify()
	c.recvSem.Notify()
	c.polls.Notify(pollset.In | pollset.Out)
}
