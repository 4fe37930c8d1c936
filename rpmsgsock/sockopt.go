package rpmsgsock

// SockOpt names the getsockopt options this transport recognizes.
type SockOpt int

const (
	SOPeerCred SockOpt = iota
)

// GetSockOpt implements getsockopt: SO_PEERCRED returns the peer
// credentials captured from SYNC; every other option is ENOPROTOOPT.
func (c *Connection) GetSockOpt(opt SockOpt) (any, error) {
	switch opt {
	case SOPeerCred:
		return c.GetPeerCredentials(), nil
	default:
		return nil, ErrNoProtoOpt
	}
}
