// Package metrics provides Prometheus metrics for the index pipeline.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// ObservationsTotal counts usable observations per loader source.
	ObservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_observations_total",
			Help: "Total number of usable price observations loaded",
		},
		[]string{"source"},
	)

	// ObservationsDroppedTotal counts observations discarded while loading.
	ObservationsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "index_observations_dropped_total",
			Help: "Total number of price observations dropped while loading",
		},
		[]string{"reason"},
	)

	// IndexPrice is the last computed index and its components.
	IndexPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "index_price_usd",
			Help: "Last computed index price and its components in USD per hour",
		},
		[]string{"component"},
	)

	// CalculationDuration is a histogram of index calculation duration.
	CalculationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "index_calculation_duration_seconds",
			Help:    "Duration of index calculations",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	// GateDecisionsTotal counts publish gate outcomes.
	GateDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_decisions_total",
			Help: "Total number of publish gate decisions",
		},
		[]string{"result"},
	)

	// SinkWritesTotal counts sink writes by sink and status.
	SinkWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_writes_total",
			Help: "Total number of sink writes",
		},
		[]string{"sink", "status"},
	)

	// OracleTxDuration is a histogram of submit-to-receipt latency.
	OracleTxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_tx_duration_seconds",
			Help:    "Time from oracle update submission to mined receipt",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 180},
		},
	)

	// OracleVerificationTotal counts readback verification results.
	OracleVerificationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_verification_total",
			Help: "Total number of on-chain readback verifications",
		},
		[]string{"result"},
	)

	// LastSuccessTimestamp is the unix time of the last fully successful run.
	LastSuccessTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "index_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per command",
		},
		[]string{"command"},
	)
)

var collectors = []prometheus.Collector{
	ObservationsTotal,
	ObservationsDroppedTotal,
	IndexPrice,
	CalculationDuration,
	GateDecisionsTotal,
	SinkWritesTotal,
	OracleTxDuration,
	OracleVerificationTotal,
	LastSuccessTimestamp,
}

// Init registers all metrics with the default registry.
func Init() {
	prometheus.MustRegister(collectors...)
}

// Push sends the current values of all metrics to a Pushgateway.
// A batch run has no scrape window, so this is its only export path.
func Push(ctx context.Context, url, job, instance string) error {
	p := push.New(url, job).Gatherer(prometheus.DefaultGatherer)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	return p.PushContext(ctx)
}

// RecordObservation records a usable observation from a loader source.
func RecordObservation(source string) {
	ObservationsTotal.WithLabelValues(source).Inc()
}

// RecordDroppedObservation records a discarded observation.
func RecordDroppedObservation(reason string) {
	ObservationsDroppedTotal.WithLabelValues(reason).Inc()
}

// RecordIndex records the computed index and its components.
func RecordIndex(final, hyperscaler, neocloud float64, duration time.Duration) {
	IndexPrice.WithLabelValues("final").Set(final)
	IndexPrice.WithLabelValues("hyperscaler").Set(hyperscaler)
	IndexPrice.WithLabelValues("neocloud").Set(neocloud)
	CalculationDuration.Observe(duration.Seconds())
}

// RecordGateDecision records a publish gate outcome.
func RecordGateDecision(accepted bool) {
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	GateDecisionsTotal.WithLabelValues(result).Inc()
}

// RecordSinkWrite records a write to a sink.
func RecordSinkWrite(sink string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SinkWritesTotal.WithLabelValues(sink, status).Inc()
}

// RecordOracleTx records the submit-to-receipt latency of an oracle update.
func RecordOracleTx(duration time.Duration) {
	OracleTxDuration.Observe(duration.Seconds())
}

// RecordVerification records an on-chain readback result.
func RecordVerification(matched bool) {
	result := "mismatch"
	if matched {
		result = "match"
	}
	OracleVerificationTotal.WithLabelValues(result).Inc()
}

// RecordSuccess marks a command as completed successfully.
func RecordSuccess(command string) {
	LastSuccessTimestamp.WithLabelValues(command).SetToCurrentTime()
}
