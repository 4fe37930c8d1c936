package rpmsgsock

// SockType selects stream or datagram semantics for a Connection.
type SockType int

const (
	// SockStream is a reliable, ordered byte stream.
	SockStream SockType = iota
	// SockDgram is a reliable, ordered, whole-message transport.
	SockDgram
)

// Config carries the knobs the reference design treated as compile-time
// constants: RX ring capacity, poll-waiter table size, and this node's
// own CPU name. A real deployment loads these from rpmsgsock/config at
// startup; tests and the demo CLI can construct one directly.
type Config struct {
	// LocalCPU is this node's own CPU name, used to fill getsockname's
	// rp_cpu and the local CPU of a client's or accepted child's address.
	// Wire names do not include it.
	LocalCPU string

	// RingCapacity is the receive ring's size in bytes, advertised to the
	// peer as this side's send credit window via SYNC.
	RingCapacity int

	// PollWaiters bounds how many concurrent pollfd registrations a
	// single Connection can hold.
	PollWaiters int

	// MaxBacklog ceils the backlog a listener may request with Listen: a
	// caller-requested backlog above this is clamped down to it, so a
	// single misconfigured listener can't let its accept queue grow
	// without bound.
	MaxBacklog int
}

// DefaultRingCapacity matches the reference design's typical RX buffer size.
const DefaultRingCapacity = 4096

// DefaultPollWaiters bounds the poll table to a small, fixed size; a
// connection is rarely polled from more than a couple of event loops at
// once.
const DefaultPollWaiters = 8

// DefaultMaxBacklog bounds a listener's accept queue absent an explicit
// MaxBacklog override.
const DefaultMaxBacklog = 128

// DefaultConfig returns a Config with the reference design's defaults.
func DefaultConfig(localCPU string) Config {
	return Config{
		LocalCPU:     localCPU,
		RingCapacity: DefaultRingCapacity,
		PollWaiters:  DefaultPollWaiters,
		MaxBacklog:   DefaultMaxBacklog,
	}
}

func (c Config) withDefaults() Config {
	if c.RingCapacity <= 0 {
		c.RingCapacity = DefaultRingCapacity
	}
	if c.PollWaiters <= 0 {
		c.PollWaiters = DefaultPollWaiters
	}
	if c.MaxBacklog <= 0 {
		c.MaxBacklog = DefaultMaxBacklog
	}
	return c
}
