// Package metrics registers the Prometheus collectors exposed by
// cmd/tsmfdemux on its /metrics endpoint: the counters and gauges that let
// an operator see synchronization state and packet disposition without
// instrumenting the tsmf package itself (which stays dependency-free).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 3 * time.Second

// Metrics holds the collectors cmd/tsmfdemux updates as it drives the
// parser. All are registered against the default registry in NewMetrics.
type Metrics struct {
	PacketsEmittedTotal  *prometheus.CounterVec
	PacketsRejectedTotal *prometheus.CounterVec
	SyncLossTotal        prometheus.Counter
	SyncAcquiredTotal    prometheus.Counter
	HeadersSeenTotal     prometheus.Counter
	TLVFragmentsTotal    prometheus.Counter
	PacketSize           prometheus.Gauge
	SlotCounter          prometheus.Gauge
	BytesReadTotal       prometheus.Counter
}

// NewMetrics builds and registers the collector set.
func NewMetrics() *Metrics {
	m := &Metrics{
		PacketsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsmfdemux_packets_emitted_total",
			Help: "TS packets or TLV fragments emitted to the downstream consumer, by disposition.",
		}, []string{"kind"}),
		PacketsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tsmfdemux_packets_rejected_total",
			Help: "Packets dropped by the slot router, by reason.",
		}, []string{"reason"}),
		SyncLossTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsmfdemux_sync_loss_total",
			Help: "Times the packet synchronizer lost lock on the TS stride and had to resynchronize.",
		}),
		SyncAcquiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsmfdemux_sync_acquired_total",
			Help: "Times the packet synchronizer locked onto a stride.",
		}),
		HeadersSeenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsmfdemux_tsmf_headers_total",
			Help: "Valid TSMF multiplex-frame headers decoded on PID 0x002F.",
		}),
		TLVFragmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsmfdemux_tlv_fragments_total",
			Help: "TLV-carriage packets folded into a reassembly buffer.",
		}),
		PacketSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsmfdemux_packet_size_bytes",
			Help: "Currently synchronized TS packet stride, 0 if unsynchronized.",
		}),
		SlotCounter: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tsmfdemux_slot_counter",
			Help: "Current slot index within the 52-slot TSMF frame, -1 if no header seen yet.",
		}),
		BytesReadTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tsmfdemux_bytes_read_total",
			Help: "Raw bytes read from the source and fed into Drive.",
		}),
	}
	prometheus.MustRegister(
		m.PacketsEmittedTotal,
		m.PacketsRejectedTotal,
		m.SyncLossTotal,
		m.SyncAcquiredTotal,
		m.HeadersSeenTotal,
		m.TLVFragmentsTotal,
		m.PacketSize,
		m.SlotCounter,
		m.BytesReadTotal,
	)
	return m
}

// Serve starts a blocking HTTP server exposing /metrics on addr. Intended to
// run in its own goroutine; returns only on listener failure or shutdown.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return server.ListenAndServe()
}
