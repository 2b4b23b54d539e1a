/*
Package stats implements the specification's telemetry surface: the
StatsEvent schema a base emits for its operations, a best-effort
publisher that writes those events onto a stats stream, and a Prometheus
collector that mirrors the same events into scrapeable counters and
histograms.

This adapts the teacher's pkg/metrics — global prometheus.{Counter,
Histogram}Vec variables registered once and served over promhttp.Handler
— to the base's own operation set (GET, QUERY, PUT, DELETE, KEYS,
SUBSCRIBE, SUBSCRIBE_EMIT) instead of cluster-orchestration counters like
node/service/task totals.
*/
package stats
