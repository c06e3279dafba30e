package telemetry

import (
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"io"
	"time"
)

// Metrics holds the counters of one engine instance on its own metrics.Set,
// so several engines (e.g. in tests) never collide on metric names.
//
// Thread-safety: All counters and histograms are safe for concurrent use.
type Metrics struct {
	set *metrics.Set

	Writes               *metrics.Counter
	Reads                *metrics.Counter
	Deletes              *metrics.Counter
	Shows                *metrics.Counter
	Backups              *metrics.Counter
	InvalidPairs         *metrics.Counter
	MissingKeys          *metrics.Counter
	Notifications        *metrics.Counter
	DroppedSubscriptions *metrics.Counter
	BackupFailures       *metrics.Counter
	Sessions             *metrics.Counter

	writeDuration  *metrics.Histogram
	readDuration   *metrics.Histogram
	deleteDuration *metrics.Histogram
	backupDuration *metrics.Histogram
}

// New creates the metrics of an engine
func New() *Metrics {
	s := metrics.NewSet()
	return &Metrics{
		set:                  s,
		Writes:               s.NewCounter(`kvs_operations_total{op="write"}`),
		Reads:                s.NewCounter(`kvs_operations_total{op="read"}`),
		Deletes:              s.NewCounter(`kvs_operations_total{op="delete"}`),
		Shows:                s.NewCounter(`kvs_operations_total{op="show"}`),
		Backups:              s.NewCounter(`kvs_operations_total{op="backup"}`),
		InvalidPairs:         s.NewCounter(`kvs_invalid_pairs_total`),
		MissingKeys:          s.NewCounter(`kvs_missing_keys_total`),
		Notifications:        s.NewCounter(`kvs_notifications_total`),
		DroppedSubscriptions: s.NewCounter(`kvs_dropped_subscriptions_total`),
		BackupFailures:       s.NewCounter(`kvs_backup_failures_total`),
		Sessions:             s.NewCounter(`kvs_sessions_total`),
		writeDuration:        s.NewHistogram(`kvs_operation_duration_seconds{op="write"}`),
		readDuration:         s.NewHistogram(`kvs_operation_duration_seconds{op="read"}`),
		deleteDuration:       s.NewHistogram(`kvs_operation_duration_seconds{op="delete"}`),
		backupDuration:       s.NewHistogram(`kvs_backup_duration_seconds`),
	}
}

// ObserveWrite records the duration of a WRITE started at start
func (m *Metrics) ObserveWrite(start time.Time) { m.writeDuration.UpdateDuration(start) }

// ObserveRead records the duration of a READ started at start
func (m *Metrics) ObserveRead(start time.Time) { m.readDuration.UpdateDuration(start) }

// ObserveDelete records the duration of a DELETE started at start
func (m *Metrics) ObserveDelete(start time.Time) { m.deleteDuration.UpdateDuration(start) }

// ObserveBackup records the time it took to write a backup file
func (m *Metrics) ObserveBackup(start time.Time) { m.backupDuration.UpdateDuration(start) }

// Gauge registers a gauge whose value is read from f on every scrape.
// Registering the same name twice returns an error instead of panicking.
func (m *Metrics) Gauge(name string, f func() float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cannot register gauge %s: %v", name, r)
		}
	}()
	m.set.NewGauge(name, f)
	return nil
}

// WritePrometheus writes all metrics in the Prometheus text exposition format
func (m *Metrics) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}
