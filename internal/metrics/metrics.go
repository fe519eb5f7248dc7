// Package metrics holds the Prometheus collectors of the Flight server and
// the HTTP handler that exposes them.
package metrics

import (
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace prefixes every collector.
const Namespace = "ruddy"

// Metrics is a registry together with the collectors the server updates.
type Metrics struct {
	Registry *prometheus.Registry

	GRPC *grpcprometheus.ServerMetrics

	// TicketsDecoded counts fetch tickets by kind ("table" or "command").
	TicketsDecoded *prometheus.CounterVec
	// RowsRead counts rows streamed to clients.
	RowsRead prometheus.Counter
	// RowsWritten counts rows appended through DoPut.
	RowsWritten prometheus.Counter
}

// New creates and registers a fresh set of collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		GRPC: grpcprometheus.NewServerMetrics(
			func(c *prometheus.CounterOpts) {
				c.Namespace = Namespace
			},
		),
		TicketsDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "tickets_decoded_total",
				Help:      "Total number of fetch tickets decoded, by kind",
			},
			[]string{"kind"},
		),
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_read_total",
			Help:      "Total number of rows streamed to clients",
		}),
		RowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rows_written_total",
			Help:      "Total number of rows written by clients",
		}),
	}
	m.GRPC.EnableHandlingTimeHistogram(
		func(h *prometheus.HistogramOpts) {
			h.Namespace = Namespace
		},
	)
	m.Registry.MustRegister(
		m.GRPC,
		m.TicketsDecoded,
		m.RowsRead,
		m.RowsWritten,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}
