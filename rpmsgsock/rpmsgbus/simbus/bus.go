package simbus

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus"
)

// Bus is one simulated CPU's view of a Hub. It implements rpmsgbus.Bus.
type Bus struct {
	hub *Hub
	cpu string
}

var _ rpmsgbus.Bus = (*Bus)(nil)

func (b *Bus) LocalCPU() string { return b.cpu }

func (b *Bus) MaxPayloadSize() int { return b.hub.maxPayload }

func (b *Bus) CreateEndpoint(name string, dest rpmsgbus.Addr, fh rpmsgbus.FrameHandler, uh rpmsgbus.UnbindHandler, bh rpmsgbus.BoundHandler) (rpmsgbus.Endpoint, error) {
	addr := rpmsgbus.Addr{CPU: b.cpu, Name: name}
	ep := &endpoint{
		hub:    b.hub,
		addr:   addr,
		dest:   dest,
		fh:     fh,
		uh:     uh,
		bh:     bh,
		inbox:  make(chan []byte, 64),
		closed: make(chan struct{}),
	}
	go ep.pump()

	b.hub.registerEndpoint(ep)
	b.hub.announce(addr, dest, name)
	return ep, nil
}

func (b *Bus) WatchDeviceCreated(cpu string, handler func(rpmsgbus.Addr)) func() {
	return b.hub.watchDeviceCreated(cpu, handler)
}

func (b *Bus) WatchDeviceDestroyed(cpu string, handler func(rpmsgbus.Addr)) func() {
	return b.hub.watchDeviceDestroyed(cpu, handler)
}

func (b *Bus) WatchNameService(cpuFilter string, match rpmsgbus.NameServiceMatch, bind rpmsgbus.NameServiceBind) func() {
	return b.hub.watchNameService(b.cpu, cpuFilter, match, bind)
}

// endpoint is simbus's rpmsgbus.Endpoint implementation: a named mailbox
// with a serial delivery goroutine (the bus-serializes-per-endpoint
// precondition rpmsgbus.FrameHandler documents).
type endpoint struct {
	hub  *Hub
	addr rpmsgbus.Addr
	dest rpmsgbus.Addr

	fh rpmsgbus.FrameHandler
	uh rpmsgbus.UnbindHandler
	bh rpmsgbus.BoundHandler

	inbox       chan []byte
	closed      chan struct{}
	closeOnce   sync.Once
	boundFired  atomic.Bool
	unboundOnce sync.Once
}

var _ rpmsgbus.Endpoint = (*endpoint)(nil)

func (e *endpoint) LocalAddr() rpmsgbus.Addr { return e.addr }

func (e *endpoint) GetTXBuffer() (rpmsgbus.TXBuffer, error) {
	return &txbuf{hub: e.hub, buf: e.hub.getBuffer()}, nil
}

func (e *endpoint) SendNoCopy(buf rpmsgbus.TXBuffer, n int) error {
	tb, ok := buf.(*txbuf)
	if !ok {
		return fmt.Errorf("simbus: foreign TXBuffer")
	}
	// Copy out: the sender's buffer is returned to the pool immediately
	// after submission, so the delivered frame must own its own memory.
	frame := make([]byte, n)
	copy(frame, tb.buf[:n])
	e.hub.putBuffer(tb.buf)

	e.hub.deliver(e.dest, frame)
	return nil
}

func (e *endpoint) ReleaseTXBuffer(buf rpmsgbus.TXBuffer) {
	if tb, ok := buf.(*txbuf); ok {
		e.hub.putBuffer(tb.buf)
	}
}

func (e *endpoint) Destroy() {
	e.closeOnce.Do(func() { close(e.closed) })
	e.hub.unregisterEndpoint(e)
}

func (e *endpoint) enqueue(data []byte) {
	select {
	case e.inbox <- data:
	case <-e.closed:
	}
}

func (e *endpoint) pump() {
	for {
		select {
		case data := <-e.inbox:
			if e.fh != nil {
				e.fh(data)
			}
		case <-e.closed:
			return
		}
	}
}

func (e *endpoint) triggerBound() {
	if e.bh == nil {
		return
	}
	if e.boundFired.CompareAndSwap(false, true) {
		go e.bh()
	}
}

func (e *endpoint) triggerUnbind() {
	if e.uh == nil {
		return
	}
	e.unboundOnce.Do(func() { go e.uh() })
}

type txbuf struct {
	hub *Hub
	buf []byte
}

func (t *txbuf) Bytes() []byte { return t.buf }
