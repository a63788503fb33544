// Package metrics exports backend metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records FTP backend metrics. It implements ftp.MetricsCollector.
type Collector struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	transferBytes     *prometheus.CounterVec
	transferDuration  *prometheus.HistogramVec
	connectionsTotal  *prometheus.CounterVec
}

// New registers the collector's metrics with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		operationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpstore_operations_total",
				Help: "Total number of backend operations",
			},
			[]string{"operation", "result"},
		),
		operationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftpstore_operation_duration_seconds",
				Help:    "Backend operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		transferBytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpstore_transfer_bytes_total",
				Help: "Total bytes moved over data connections",
			},
			[]string{"direction"},
		),
		transferDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ftpstore_transfer_duration_seconds",
				Help:    "Data transfer duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
			[]string{"direction"},
		),
		connectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ftpstore_connections_total",
				Help: "Total control connection attempts",
			},
			[]string{"result"},
		),
	}
}

// RecordOperation counts one operation. An empty kind means success.
func (c *Collector) RecordOperation(op, kind string, duration time.Duration) {
	result := kind
	if result == "" {
		result = "ok"
	}
	c.operationsTotal.WithLabelValues(op, result).Inc()
	c.operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordTransfer counts transferred bytes.
func (c *Collector) RecordTransfer(direction string, bytes int64, duration time.Duration) {
	c.transferBytes.WithLabelValues(direction).Add(float64(bytes))
	c.transferDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordConnection counts a connection attempt.
func (c *Collector) RecordConnection(result string) {
	c.connectionsTotal.WithLabelValues(result).Inc()
}
