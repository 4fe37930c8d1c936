package rpmsgsock

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/rpmsgsock/rpmsgsock/rpmsgbus/simbus"
)

func newTestHub() *simbus.Hub { return simbus.NewHub(simbus.DefaultMaxPayloadSize) }

func TestClientHandshake(t *testing.T) {
	hub := newTestHub()
	busB := hub.NewBus("cpuB")
	busA := hub.NewBus("cpuA")

	listener, err := Bind(busB, DefaultConfig("cpuB"), SockStream, "", "echo")
	require.NoError(t, err)
	require.NoError(t, listener.Listen(4))

	ctx := context.Background()
	client, err := Connect(ctx, busA, DefaultConfig("cpuA"), SockStream, "cpuB", "echo")
	require.NoError(t, err)
	require.True(t, client.connected())

	accepted, err := listener.Accept(ctx)
	require.NoError(t, err)

	peer := accepted.GetConnName()
	require.Equal(t, "cpuA", peer.CPU)
	require.True(t, strings.HasPrefix(peer.Name, "echo:"), "got %q", peer.Name)
}

func TestStreamEchoInOrder(t *testing.T) {
	hub := newTestHub()
	busB := hub.NewBus("cpuB")
	busA := hub.NewBus("cpuA")

	cfg := DefaultConfig("cpuB")
	cfg.RingCapacity = 1024

	listener, err := Bind(busB, cfg, SockStream, "", "echo")
	require.NoError(t, err)
	require.NoError(t, listener.Listen(4))

	ctx := context.Background()
	clientCfg := cfg
	clientCfg.LocalCPU = "cpuA"
	client, err := Connect(ctx, busA, clientCfg, SockStream, "cpuB", "echo")
	require.NoError(t, err)

	server, err := listener.Accept(ctx)
	require.NoError(t, err)

	const total = 4096
	payload := make([]byte, total)
	for i := range payload {
		payload[i] = byte(i)
	}

	errCh := make(chan error, 1)
	go func() {
		for sent := 0; sent < total; sent += 1024 {
			n, werr := client.Send(ctx, payload[sent:sent+1024])
			if werr != nil {
				errCh <- werr
				return
			}
			if n != 1024 {
				errCh <- ErrInvalid
				return
			}
		}
		errCh <- nil
	}()

	got := make([]byte, 0, total)
	buf := make([]byte, 100)
	for len(got) < total {
		n, _, rerr := server.Recv(ctx, buf)
		require.NoError(t, rerr)
		got = append(got, buf[:n]...)
	}
	require.NoError(t, <-errCh)
	require.Equal(t, payload, got)
}

func TestDatagramListenIsUnsupported(t *testing.T) {
	hub := newTestHub()
	busB := hub.NewBus("cpuB")

	cfg := DefaultConfig("cpuB")
	listener, err := Bind(busB, cfg, SockDgram, "", "dgram")
	require.NoError(t, err)
	require.ErrorIs(t, listener.Listen(1), ErrNotSupported)
}

func TestListenerRejectsBeyondBacklog(t *testing.T) {
	hub := newTestHub()
	busB := hub.NewBus("cpuB")

	listener, err := Bind(busB, DefaultConfig("cpuB"), SockStream, "", "echo")
	require.NoError(t, err)
	require.NoError(t, listener.Listen(2))

	ctx := context.Background()
	connect := func() (*Connection, error) {
		bus := hub.NewBus("cpuA")
		return Connect(ctx, bus, DefaultConfig("cpuA"), SockStream, "cpuB", "echo")
	}

	c1, err := connect()
	require.NoError(t, err)

	c2, err := connect()
	require.NoError(t, err)

	// Backlog is now full (two children queued, none accepted yet): the
	// third connect's server-side mirror endpoint gets SYNC'd (so it
	// briefly looks connected) then torn down before ever reaching the
	// accept queue; the client observes that as ECONNRESET rather than
	// hanging forever (P7 / scenario 4).
	_, err = connect()
	require.ErrorIs(t, err, ErrConnReset)

	// Exactly the two queued children are accepted.
	_, err = listener.Accept(ctx)
	require.NoError(t, err)
	_, err = listener.Accept(ctx)
	require.NoError(t, err)

	require.NotNil(t, c1)
	require.NotNil(t, c2)
}

func TestDatagramRejectsOversizedPayload(t *testing.T) {
	c := newConnection(nil, Config{RingCapacity: 64, PollWaiters: 4}, SockDgram)
	c.sendSize.Store(64)

	_, err := c.sendSingle(context.Background(), make([]byte, 100))
	require.ErrorIs(t, err, ErrTooBig)
}

func TestRecvOnNeverConnectedSocketReturnsErrIsConn(t *testing.T) {
	hub := newTestHub()
	busA := hub.NewBus("cpuA")

	c := NewSocket(busA, DefaultConfig("cpuA"), SockStream)
	_, _, err := c.Recv(context.Background(), make([]byte, 16))
	require.ErrorIs(t, err, ErrIsConn)
}

func TestSendToImplicitConnect(t *testing.T) {
	hub := newTestHub()
	busB := hub.NewBus("cpuB")
	busA := hub.NewBus("cpuA")

	listener, err := Bind(busB, DefaultConfig("cpuB"), SockStream, "", "echo")
	require.NoError(t, err)
	require.NoError(t, listener.Listen(4))

	ctx := context.Background()
	client := NewSocket(busA, DefaultConfig("cpuA"), SockStream)
	n, err := client.SendTo(ctx, []byte("hi"), Addr{CPU: "cpuB", Name: "echo"})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, client.connected())

	server, err := listener.Accept(ctx)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, _, err = server.Recv(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "hi", string(buf[:n]))
}

func TestDatagramImplicitConnectOnRecv(t *testing.T) {
	hub := newTestHub()
	busB := hub.NewBus("cpuB")
	busA := hub.NewBus("cpuA")

	server, err := Bind(busB, DefaultConfig("cpuB"), SockDgram, "", "dgram")
	require.NoError(t, err)

	ctx := context.Background()
	client := NewSocket(busA, DefaultConfig("cpuA"), SockDgram)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.SendTo(ctx, []byte("ping"), Addr{CPU: "cpuB", Name: "dgram"})
		errCh <- err
	}()

	buf := make([]byte, 16)
	n, from, err := server.Recv(ctx, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
	require.Equal(t, "cpuA", from.CPU)
	require.NoError(t, <-errCh)
}

func TestListenClampsBacklogToMaxBacklog(t *testing.T) {
	hub := newTestHub()
	busB := hub.NewBus("cpuB")

	cfg := DefaultConfig("cpuB")
	cfg.MaxBacklog = 2
	listener, err := Bind(busB, cfg, SockStream, "", "echo")
	require.NoError(t, err)
	require.NoError(t, listener.Listen(100))
	require.Equal(t, 2, listener.backlog)
}
