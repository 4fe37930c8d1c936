// Package simbus is an in-process fake of rpmsgbus.Bus: several named "CPU"
// nodes sharing one Hub, used by the rpmsgsock test suite and the demo CLI
// in place of the real RPMsg character device.
//
// The buffer pooling here is a single-tier sync.Pool: RPMsg frames have
// one fixed native size (ipcsize), so one tier is all a fake bus needs.
package simbus

import (
	"sync"

	"github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus"
)

// DefaultMaxPayloadSize is the simulated bus's native TX buffer size.
const DefaultMaxPayloadSize = 4096

// Hub is the shared fabric several simbus.Bus instances (one per simulated
// CPU) attach to.
type Hub struct {
	maxPayload int
	pool       sync.Pool

	mu           sync.Mutex
	nodes        map[string]bool
	endpoints    map[rpmsgbus.Addr]*endpoint
	devCreated   map[string][]func(rpmsgbus.Addr)
	devDestroyed map[string][]func(rpmsgbus.Addr)
	nsWatchers   []nsWatcher
}

type nsWatcher struct {
	ownerCPU  string
	cpuFilter string
	match     rpmsgbus.NameServiceMatch
	bind      rpmsgbus.NameServiceBind
	cancelled bool
}

// NewHub returns an empty Hub. maxPayload <= 0 uses DefaultMaxPayloadSize.
func NewHub(maxPayload int) *Hub {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadSize
	}
	h := &Hub{
		maxPayload:   maxPayload,
		nodes:        make(map[string]bool),
		endpoints:    make(map[rpmsgbus.Addr]*endpoint),
		devCreated:   make(map[string][]func(rpmsgbus.Addr)),
		devDestroyed: make(map[string][]func(rpmsgbus.Addr)),
	}
	h.pool.New = func() any {
		b := make([]byte, h.maxPayload)
		return &b
	}
	return h
}

// NewBus attaches a new simulated CPU named cpu to the Hub and announces its
// presence to any already-registered device-created watchers.
func (h *Hub) NewBus(cpu string) *Bus {
	h.mu.Lock()
	h.nodes[cpu] = true
	watchers := append([]func(rpmsgbus.Addr){}, h.devCreated[cpu]...)
	h.mu.Unlock()

	for _, w := range watchers {
		if w == nil {
			continue
		}
		w := w
		go w(rpmsgbus.Addr{CPU: cpu})
	}
	return &Bus{hub: h, cpu: cpu}
}

// NodeDown simulates the CPU named cpu disappearing from the bus: every
// endpoint anywhere whose destination lives on cpu gets its unbind handler
// invoked, every endpoint owned by cpu is removed, and device-destroyed
// watchers for cpu fire.
func (h *Hub) NodeDown(cpu string) {
	h.mu.Lock()
	delete(h.nodes, cpu)

	var toUnbind []*endpoint
	for addr, ep := range h.endpoints {
		if ep.dest.CPU == cpu {
			toUnbind = append(toUnbind, ep)
		}
		if addr.CPU == cpu {
			delete(h.endpoints, addr)
		}
	}
	watchers := append([]func(rpmsgbus.Addr){}, h.devDestroyed[cpu]...)
	h.mu.Unlock()

	for _, ep := range toUnbind {
		ep.triggerUnbind()
	}
	for _, w := range watchers {
		if w == nil {
			continue
		}
		w := w
		go w(rpmsgbus.Addr{CPU: cpu})
	}
}

func (h *Hub) getBuffer() []byte {
	p := h.pool.Get().(*[]byte)
	return *p
}

func (h *Hub) putBuffer(b []byte) {
	h.pool.Put(&b)
}

// deliver routes data to the endpoint registered at dest, if any. Delivery
// is fire-and-forget: the RPMsg bus offers best-effort delivery (GLOSSARY).
func (h *Hub) deliver(dest rpmsgbus.Addr, data []byte) {
	h.mu.Lock()
	ep := h.endpoints[dest]
	h.mu.Unlock()
	if ep == nil {
		return
	}
	ep.enqueue(data)
}

// registerEndpoint adds ep to the registry and wires up reciprocal
// bound-handler discovery: if ep's destination already exists, ep is bound
// now; if some other endpoint's destination is ep's own address, that
// endpoint becomes bound now too.
func (h *Hub) registerEndpoint(ep *endpoint) {
	h.mu.Lock()
	h.endpoints[ep.addr] = ep

	var selfBound bool
	var peers []*endpoint
	if ep.dest != (rpmsgbus.Addr{}) {
		if _, ok := h.endpoints[ep.dest]; ok {
			selfBound = true
		}
	}
	for _, other := range h.endpoints {
		if other != ep && other.dest == ep.addr {
			peers = append(peers, other)
		}
	}
	h.mu.Unlock()

	if selfBound {
		ep.triggerBound()
	}
	for _, p := range peers {
		p.triggerBound()
	}
}

// unregisterEndpoint removes ep from the registry and, mirroring
// registerEndpoint's reciprocal bound-handler discovery, notifies any peer
// endpoint that was addressing ep: a real RPMsg channel surfaces one side's
// endpoint going away as an ns-unbind event on the other, not just a
// whole-CPU device-destroyed. Without this, a server-side reject (the
// listener destroying an over-backlog child before it's ever accepted)
// would leave the rejected client's Connect blocked forever with no signal
// that its peer vanished.
func (h *Hub) unregisterEndpoint(ep *endpoint) {
	h.mu.Lock()
	if h.endpoints[ep.addr] == ep {
		delete(h.endpoints, ep.addr)
	}
	var peers []*endpoint
	for _, other := range h.endpoints {
		if other != ep && other.dest == ep.addr {
			peers = append(peers, other)
		}
	}
	h.mu.Unlock()

	for _, p := range peers {
		p.triggerUnbind()
	}
}

// announce notifies any matching name-service watchers that announcer has
// created an endpoint named name destined for dest.CPU's name service.
func (h *Hub) announce(announcer rpmsgbus.Addr, dest rpmsgbus.Addr, name string) {
	if dest.CPU == "" {
		return
	}
	h.mu.Lock()
	var matched []nsWatcher
	for _, w := range h.nsWatchers {
		if w.cancelled || w.ownerCPU != dest.CPU {
			continue
		}
		if w.cpuFilter != "" && w.cpuFilter != announcer.CPU {
			continue
		}
		if w.match(name) {
			matched = append(matched, w)
		}
	}
	h.mu.Unlock()

	for _, w := range matched {
		w := w
		go w.bind(announcer, name)
	}
}

func (h *Hub) watchDeviceCreated(cpu string, handler func(rpmsgbus.Addr)) func() {
	h.mu.Lock()
	h.devCreated[cpu] = append(h.devCreated[cpu], handler)
	already := h.nodes[cpu]
	idx := len(h.devCreated[cpu]) - 1
	h.mu.Unlock()

	if already {
		go handler(rpmsgbus.Addr{CPU: cpu})
	}
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if idx < len(h.devCreated[cpu]) {
			h.devCreated[cpu][idx] = nil
		}
	}
}

func (h *Hub) watchDeviceDestroyed(cpu string, handler func(rpmsgbus.Addr)) func() {
	h.mu.Lock()
	h.devDestroyed[cpu] = append(h.devDestroyed[cpu], handler)
	idx := len(h.devDestroyed[cpu]) - 1
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if idx < len(h.devDestroyed[cpu]) {
			h.devDestroyed[cpu][idx] = nil
		}
	}
}

func (h *Hub) watchNameService(ownerCPU, cpuFilter string, match rpmsgbus.NameServiceMatch, bind rpmsgbus.NameServiceBind) func() {
	h.mu.Lock()
	w := &nsWatcher{ownerCPU: ownerCPU, cpuFilter: cpuFilter, match: match, bind: bind}
	h.nsWatchers = append(h.nsWatchers, *w)
	idx := len(h.nsWatchers) - 1
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if idx < len(h.nsWatchers) {
			h.nsWatchers[idx].cancelled = true
		}
	}
}
