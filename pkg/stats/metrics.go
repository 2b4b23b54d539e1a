package stats

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts completed public Base operations by base and
	// operation kind.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbase_operations_total",
			Help: "Total number of completed base operations by base and operation",
		},
		[]string{"base", "operation"},
	)

	// OperationDuration tracks operation latency in seconds.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbase_operation_duration_seconds",
			Help:    "Base operation latency in seconds by base and operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"base", "operation"},
	)

	// QueryResultCount tracks how many documents a QUERY operation matched.
	QueryResultCount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbase_query_result_count",
			Help:    "Number of documents matched by a QUERY operation",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		},
		[]string{"base"},
	)

	// ProjectorCheckpoint reports the last sequence each base's projector
	// has persisted.
	ProjectorCheckpoint = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventbase_projector_checkpoint",
			Help: "Last sequence number the projector has persisted, by base",
		},
		[]string{"base"},
	)

	// ActiveSubscriptions reports the current subscriber count per base.
	ActiveSubscriptions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventbase_active_subscriptions",
			Help: "Current number of registered subscriptions, by base",
		},
		[]string{"base"},
	)

	// OpenBases reports how many bases the manager currently holds open.
	OpenBases = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventbase_open_bases",
			Help: "Number of bases currently open in this process",
		},
	)
)

func init() {
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(QueryResultCount)
	prometheus.MustRegister(ProjectorCheckpoint)
	prometheus.MustRegister(ActiveSubscriptions)
	prometheus.MustRegister(OpenBases)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
