package stats

import (
	"github.com/cuemby/eventbase/pkg/types"
)

// Observe mirrors one StatsEvent into the process-wide Prometheus
// collectors registered in metrics.go.
func Observe(base string, event types.StatsEvent) {
	OperationsTotal.WithLabelValues(base, string(event.Operation)).Inc()
	OperationDuration.WithLabelValues(base, string(event.Operation)).Observe(float64(event.Duration) / 1000.0)

	if event.Operation == types.StatsQuery && event.QueryResultCount != nil {
		QueryResultCount.WithLabelValues(base).Observe(float64(*event.QueryResultCount))
	}
}
