package backup

import (
	"fmt"
	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/lib/telemetry"
	"github.com/lni/dragonboat/v4/logger"
	"sync"
	"time"
)

var Logger = logger.GetLogger("backup")

// SnapshotFunc returns a private copy of the table contents.
// It is called after a backup slot was acquired and must take the table lock itself.
// An error aborts the backup.
type SnapshotFunc func() ([]db.Pair, error)

// Manager bounds the number of concurrently running backups.
//
// A backup consists of a short synchronous part (acquire a slot, copy the table,
// create the output) and a writer goroutine that renders the copy to the output
// and frees the slot. The slot counter has its own mutex, which is never taken
// while a table lock is held.
type Manager struct {
	mu     sync.Mutex
	cond   *sync.Cond
	active int
	max    int

	sink    ISink
	wg      sync.WaitGroup
	metrics *telemetry.Metrics
}

// NewManager creates a backup manager allowing max concurrent backups (at least one)
func NewManager(max int, sink ISink, m *telemetry.Metrics) *Manager {
	if max < 1 {
		max = 1
	}
	if sink == nil {
		sink = FileSink{}
	}
	if m == nil {
		m = telemetry.New()
	}

	mgr := &Manager{max: max, sink: sink, metrics: m}
	mgr.cond = sync.NewCond(&mgr.mu)
	if err := m.Gauge("kvs_backups_in_flight", func() float64 { return float64(mgr.InFlight()) }); err != nil {
		Logger.Warningf("%v", err)
	}
	return mgr
}

// Request starts backup number seq of name.
// It blocks while the maximum number of backups is in flight. The returned error
// reports a failure to create the output, in which case the slot is released again.
// Errors while writing the file are logged by the writer goroutine.
//
// Thread-safety: This method is thread-safe. It must not be called while holding table locks.
func (m *Manager) Request(name string, seq uint64, snapshot SnapshotFunc) error {
	m.acquire()
	m.wg.Add(1)

	pairs, err := snapshot()
	if err != nil {
		m.wg.Done()
		m.release()
		return err
	}

	out, err := m.sink.Create(name, seq)
	if err != nil {
		m.wg.Done()
		m.release()
		m.metrics.BackupFailures.Inc()
		return store.NewError(store.RetCBackupFailed, fmt.Sprintf("cannot create backup %s: %v", FileName(name, seq), err))
	}

	m.metrics.Backups.Inc()
	go m.write(name, seq, pairs, out)
	return nil
}

// InFlight returns the number of running backups
func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Max returns the maximum number of concurrent backups
func (m *Manager) Max() int {
	return m.max
}

// Wait blocks until all started backups are written
func (m *Manager) Wait() {
	m.wg.Wait()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (m *Manager) write(name string, seq uint64, pairs []db.Pair, out IOutput) {
	defer m.wg.Done()
	defer m.release()

	start := time.Now()
	if err := store.WritePairs(out, pairs); err != nil {
		out.Abort()
		m.metrics.BackupFailures.Inc()
		Logger.Errorf("backup %s failed: %v", FileName(name, seq), err)
		return
	}
	if err := out.Commit(); err != nil {
		m.metrics.BackupFailures.Inc()
		Logger.Errorf("backup %s failed: %v", FileName(name, seq), err)
		return
	}

	m.metrics.ObserveBackup(start)
	Logger.Infof("backup %s written (%d entries) in %s", FileName(name, seq), len(pairs), time.Since(start))
}

func (m *Manager) acquire() {
	m.mu.Lock()
	for m.active >= m.max {
		m.cond.Wait()
	}
	m.active++
	m.mu.Unlock()
}

func (m *Manager) release() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
	m.cond.Signal()
}
