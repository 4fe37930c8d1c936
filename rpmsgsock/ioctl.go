package rpmsgsock

import "fmt"

// Ioctl op codes. Named after their BSD/Linux counterparts; values are
// this package's own, not the kernel's.
type IoctlOp int

const (
	FIONREAD IoctlOp = iota
	FIONSPACE
	FIOCFilePath
)

// Ioctl implements the three supported operations; any other op returns
// ErrBadIoctl (ENOTTY).
func (c *Connection) Ioctl(op IoctlOp) (any, error) {
	switch op {
	case FIONREAD:
		c.recvMu.Lock()
		n := c.recvBuf.Len()
		c.recvMu.Unlock()
		return n, nil
	case FIONSPACE:
		c.sendMu.Lock()
		credit := c.creditLocked()
		c.sendMu.Unlock()
		return int(credit), nil
	case FIOCFilePath:
		return c.filePath(), nil
	default:
		return nil, ErrBadIoctl
	}
}

// filePath renders the printable path:
// "rpmsg:[<localcpu>:[<rp_name><nameid>]<-><rp_cpu>]"
func (c *Connection) filePath() string {
	c.recvMu.Lock()
	local := c.localAddr
	remote := c.remoteAddr
	role := c.role
	c.recvMu.Unlock()

	if role == RoleListener || role == RoleListenerClosed {
		// A listener's localAddr.CPU holds the CPU filter given to Bind.
		return fmt.Sprintf("rpmsg:[%s:[%s]<->%s]", c.cfg.LocalCPU, local.Name, local.CPU)
	}
	return fmt.Sprintf("rpmsg:[%s:[%s]<->%s]", local.CPU, local.Name, remote.CPU)
}
