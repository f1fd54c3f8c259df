// Package prometheus exposes console session metrics as a Prometheus
// collector.
//
// [NewExporter] wraps any source with MetricsSnapshot and EventsDropped (a
// *lkcosmetics.Client satisfies it) in a [prometheus.Collector]. Counters are
// named lkconsole_*_total; the refresh latency histogram is
// lkconsole_refresh_latency_seconds.
//
// # What this package must NOT do
//
//   - Register in the global Prometheus registry. [Exporter.Handler] uses a
//     private registry and callers may Register the exporter elsewhere.
//   - Mutate session state.
package prometheus
