package backup

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/store"
)

// gatedSink tracks concurrently open outputs and blocks commits until released
type gatedSink struct {
	open    atomic.Int32
	maxOpen atomic.Int32
	gate    chan struct{}
	mu      sync.Mutex
	written map[string]string
	fail    bool
}

func newGatedSink() *gatedSink {
	return &gatedSink{gate: make(chan struct{}), written: make(map[string]string)}
}

func (s *gatedSink) Create(name string, seq uint64) (IOutput, error) {
	if s.fail {
		return nil, errors.New("disk full")
	}
	n := s.open.Add(1)
	for {
		cur := s.maxOpen.Load()
		if n <= cur || s.maxOpen.CompareAndSwap(cur, n) {
			break
		}
	}
	return &gatedOutput{sink: s, name: FileName(name, seq)}, nil
}

type gatedOutput struct {
	bytes.Buffer
	sink *gatedSink
	name string
}

func (o *gatedOutput) Commit() error {
	<-o.sink.gate
	o.sink.mu.Lock()
	o.sink.written[o.name] = o.String()
	o.sink.mu.Unlock()
	o.sink.open.Add(-1)
	return nil
}

func (o *gatedOutput) Abort() { o.sink.open.Add(-1) }

func snapshotOf(pairs ...db.Pair) SnapshotFunc {
	return func() ([]db.Pair, error) { return pairs, nil }
}

// TestSecondBackupWaitsForFirst checks that with a single slot the second
// snapshot is only taken after the first backup has completed.
func TestSecondBackupWaitsForFirst(t *testing.T) {
	sink := newGatedSink()
	m := NewManager(1, sink, nil)

	if err := m.Request("job", 1, snapshotOf(db.Pair{Key: "a", Value: "1"})); err != nil {
		t.Fatalf("First request: %v", err)
	}

	var secondStarted atomic.Bool
	done := make(chan error, 1)
	go func() {
		done <- m.Request("job", 2, func() ([]db.Pair, error) {
			secondStarted.Store(true)
			return nil, nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	if secondStarted.Load() {
		t.Fatal("Second snapshot started while the first backup was in flight")
	}
	if m.InFlight() != 1 {
		t.Errorf("Expected one backup in flight, got %d", m.InFlight())
	}

	close(sink.gate)
	if err := <-done; err != nil {
		t.Fatalf("Second request: %v", err)
	}
	m.Wait()

	if !secondStarted.Load() {
		t.Error("Second snapshot never ran")
	}
	if got := sink.written["job-1.bck"]; got != "(a,1)\n" {
		t.Errorf("Unexpected content of job-1.bck: %q", got)
	}
	if _, ok := sink.written["job-2.bck"]; !ok {
		t.Error("job-2.bck was not written")
	}
}

// TestConcurrencyBound issues a burst of requests and verifies the bound
func TestConcurrencyBound(t *testing.T) {
	const max = 3
	sink := newGatedSink()
	m := NewManager(max, sink, nil)

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(seq uint64) {
			defer wg.Done()
			if err := m.Request("burst", seq, snapshotOf()); err != nil {
				t.Errorf("Request %d: %v", seq, err)
			}
		}(uint64(i))
	}

	time.Sleep(50 * time.Millisecond)
	close(sink.gate)
	wg.Wait()
	m.Wait()

	if got := sink.maxOpen.Load(); got > max {
		t.Errorf("Expected at most %d concurrent backups, observed %d", max, got)
	}
	if len(sink.written) != 20 {
		t.Errorf("Expected 20 backups, got %d", len(sink.written))
	}
	if m.InFlight() != 0 {
		t.Errorf("Expected no backups in flight, got %d", m.InFlight())
	}
}

func TestCreateFailureReleasesSlot(t *testing.T) {
	sink := newGatedSink()
	sink.fail = true
	m := NewManager(1, sink, nil)

	for i := 0; i < 3; i++ {
		err := m.Request("job", uint64(i+1), snapshotOf())
		if !errors.Is(err, store.ErrBackupFailed) {
			t.Fatalf("Expected ErrBackupFailed, got %v", err)
		}
	}
	if m.InFlight() != 0 {
		t.Errorf("Failed backups must release their slot, %d in flight", m.InFlight())
	}
}

func TestSnapshotErrorReleasesSlot(t *testing.T) {
	m := NewManager(1, newGatedSink(), nil)

	err := m.Request("job", 1, func() ([]db.Pair, error) { return nil, store.ErrClosed })
	if !errors.Is(err, store.ErrClosed) {
		t.Fatalf("Expected the snapshot error, got %v", err)
	}
	if m.InFlight() != 0 {
		t.Errorf("Expected the slot to be released, %d in flight", m.InFlight())
	}
	m.Wait()
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(2, FileSink{Dir: dir}, nil)

	pairs := []db.Pair{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}
	if err := m.Request("test", 1, snapshotOf(pairs...)); err != nil {
		t.Fatalf("Request: %v", err)
	}
	m.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "test-1.bck"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "(b,2)\n(a,1)\n" {
		t.Errorf("Unexpected backup content %q", data)
	}

	// no temporary files are left behind
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("Expected only the backup file, found %d entries", len(entries))
	}

	// a missing directory surfaces as an error
	bad := NewManager(1, FileSink{Dir: filepath.Join(dir, "missing")}, nil)
	if err := bad.Request("test", 1, snapshotOf()); !errors.Is(err, store.ErrBackupFailed) {
		t.Errorf("Expected ErrBackupFailed, got %v", err)
	}
}
