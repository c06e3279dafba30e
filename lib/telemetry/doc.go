// Package telemetry collects the runtime metrics of an engine instance using
// github.com/VictoriaMetrics/metrics and exposes them in the Prometheus text
// format (served by the admin endpoint under /metrics).
package telemetry
