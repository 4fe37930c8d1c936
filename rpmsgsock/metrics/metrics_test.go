package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	require.NotNil(t, c)

	c.ObserveFrameSent("sync")
	c.ObserveFrameReceived("data")
	c.ObserveCreditRefund()
	c.SetAcceptQueueDepth("cpuB:echo", 3)
	c.SetRXRingOccupancy("cpuA:echo:abc", 512)
	c.ObserveRXRingOverflow(64)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(mfs))
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"rpmsgsock_frames_sent_total",
		"rpmsgsock_frames_received_total",
		"rpmsgsock_credit_refunds_total",
		"rpmsgsock_accept_queue_depth",
		"rpmsgsock_rx_ring_bytes",
		"rpmsgsock_rx_ring_overflows_total",
	} {
		require.True(t, names[want], "expected metric family %q to be registered", want)
	}
}

func TestObserveFrameSentLabelsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveFrameSent("sync")
	c.ObserveFrameSent("data")
	c.ObserveFrameSent("data")

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "rpmsgsock_frames_sent_total" {
			continue
		}
		found = true
		for _, m := range mf.GetMetric() {
			var kind string
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "kind" {
					kind = lp.GetValue()
				}
			}
			if kind == "data" {
				require.Equal(t, float64(2), m.GetCounter().GetValue())
			}
			if kind == "sync" {
				require.Equal(t, float64(1), m.GetCounter().GetValue())
			}
		}
	}
	require.True(t, found)
}

func TestSetRXRingOccupancyUpdatesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.SetRXRingOccupancy("cpuA:echo:abc", 100)
	c.SetRXRingOccupancy("cpuA:echo:abc", 250)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range mfs {
		if mf.GetName() != "rpmsgsock_rx_ring_bytes" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		require.Equal(t, float64(250), mf.GetMetric()[0].GetGauge().GetValue())
	}
}

func TestNilCollectorsMethodsDoNotPanic(t *testing.T) {
	var c *Collectors

	require.NotPanics(t, func() {
		c.ObserveFrameSent("sync")
		c.ObserveFrameReceived("data")
		c.ObserveCreditRefund()
		c.SetAcceptQueueDepth("listener", 1)
		c.SetRXRingOccupancy("local", 1)
		c.ObserveRXRingOverflow(1)
	})
}
