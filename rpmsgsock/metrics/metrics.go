// Package metrics provides Prometheus collectors for the transport,
// registered against an explicit registry via promauto rather than the
// default global one.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors groups every counter/gauge the transport emits. A nil
// *Collectors is valid everywhere it's used (see the Observe* helpers
// below), so callers that don't want metrics can pass nil for zero
// overhead.
type Collectors struct {
	framesSent       *prometheus.CounterVec
	framesReceived   *prometheus.CounterVec
	creditRefunds     prometheus.Counter
	acceptQueueDepth  *prometheus.GaugeVec
	rxRingOccupancy   *prometheus.GaugeVec
	rxRingOverflows   prometheus.Counter
}

// New registers the transport's collectors against reg and returns the
// handle. Pass prometheus.NewRegistry() in tests to avoid colliding with
// the process-wide default registry.
func New(reg prometheus.Registerer) *Collectors {
	return &Collectors{
		framesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmsgsock_frames_sent_total",
				Help: "Total number of frames submitted to the bus, by kind.",
			},
			[]string{"kind"}, // "sync", "data", "credit_refund"
		),
		framesReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpmsgsock_frames_received_total",
				Help: "Total number of frames delivered by the bus, by kind.",
			},
			[]string{"kind"},
		),
		creditRefunds: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "rpmsgsock_credit_refunds_total",
				Help: "Total number of half-ring-drained credit refund frames sent.",
			},
		),
		acceptQueueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rpmsgsock_accept_queue_depth",
				Help: "Current number of children waiting in a listener's accept queue.",
			},
			[]string{"listener"},
		),
		rxRingOccupancy: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rpmsgsock_rx_ring_bytes",
				Help: "Current number of unread bytes in a connection's receive ring.",
			},
			[]string{"local"},
		),
		rxRingOverflows: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "rpmsgsock_rx_ring_overflows_total",
				Help: "Total number of payload bytes dropped because the receive ring was full (a logic error: the peer should never exceed its advertised credit).",
			},
		),
	}
}

func (c *Collectors) ObserveFrameSent(kind string) {
	if c == nil {
		return
	}
	c.framesSent.WithLabelValues(kind).Inc()
}

func (c *Collectors) ObserveFrameReceived(kind string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(kind).Inc()
}

func (c *Collectors) ObserveCreditRefund() {
	if c == nil {
		return
	}
	c.creditRefunds.Inc()
}

func (c *Collectors) SetAcceptQueueDepth(listener string, depth int) {
	if c == nil {
		return
	}
	c.acceptQueueDepth.WithLabelValues(listener).Set(float64(depth))
}

func (c *Collectors) SetRXRingOccupancy(local string, bytes int) {
	if c == nil {
		return
	}
	c.rxRingOccupancy.WithLabelValues(local).Set(float64(bytes))
}

func (c *Collectors) ObserveRXRingOverflow(n int) {
	if c == nil {
		return
	}
	c.rxRingOverflows.Add(float64(n))
}
