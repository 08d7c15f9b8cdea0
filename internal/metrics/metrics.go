// Package metrics exposes the sequencer's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ct"

// Submission results.
const (
	ResultAccepted    = "accepted"
	ResultRejected    = "rejected"
	ResultDoubleSpend = "double_spend"
	ResultMalformed   = "malformed"
	ResultError       = "error"
)

// Collector owns a private registry so tests and multiple nodes in one
// process do not collide.
type Collector struct {
	registry *prometheus.Registry

	submitted    *prometheus.CounterVec
	rejected     *prometheus.CounterVec
	verifyTime   prometheus.Histogram
	proofTime    *prometheus.HistogramVec
	utxos        prometheus.Gauge
	spent        prometheus.Gauge
	treeRebuilds prometheus.Counter
}

// New creates and registers every metric.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "submitted_total",
			Help:      "Transactions submitted, by result.",
		}, []string{"result"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "rejected_total",
			Help:      "Rejected transactions, by the gate that failed.",
		}, []string{"stage"}),
		verifyTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "verify_duration_seconds",
			Help:      "Time spent verifying one transaction.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		proofTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wallet",
			Name:      "proof_duration_seconds",
			Help:      "Time spent producing proofs, by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"kind"}),
		utxos: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "utxo_count",
			Help:      "Registered outputs.",
		}),
		spent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "spent_tag_count",
			Help:      "Key images marked spent.",
		}),
		treeRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sequencer",
			Name:      "tree_rebuilds_total",
			Help:      "Accumulator rebuilds after the registry grew.",
		}),
	}
	c.registry.MustRegister(c.submitted, c.rejected, c.verifyTime, c.proofTime, c.utxos, c.spent, c.treeRebuilds)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordSubmission(result string) {
	c.submitted.WithLabelValues(result).Inc()
}

func (c *Collector) RecordRejection(stage string) {
	c.rejected.WithLabelValues(stage).Inc()
}

func (c *Collector) ObserveVerify(d time.Duration) {
	c.verifyTime.Observe(d.Seconds())
}

func (c *Collector) ObserveProof(kind string, d time.Duration) {
	c.proofTime.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *Collector) SetLedger(utxos, spent uint64) {
	c.utxos.Set(float64(utxos))
	c.spent.Set(float64(spent))
}

func (c *Collector) RecordTreeRebuild() {
	c.treeRebuilds.Inc()
}
