package lstore

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/kvs/lib/backup"
	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/store"
	storetesting "github.com/ValentinKolb/kvs/lib/store/testing"
	"github.com/ValentinKolb/kvs/lib/telemetry"
)

func newStore(t testing.TB, config store.Config, opts ...Option) store.IStore {
	s, err := NewLocalStore(config, opts...)
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return s
}

func Test(t *testing.T) {
	storetesting.RunStoreTests(t, "LocalStore", func(config store.Config) store.IStore {
		return newStore(t, config)
	})
}

func Benchmark(b *testing.B) {
	storetesting.RunStoreBenchmarks(b, "LocalStore", func(config store.Config) store.IStore {
		return newStore(b, config)
	})
}

func TestInvalidConfig(t *testing.T) {
	config := store.DefaultConfig()
	config.HashFunction = "sha1"
	if _, err := NewLocalStore(config); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}

	config = store.DefaultConfig()
	config.MaxBackups = 0
	if _, err := NewLocalStore(config); err == nil {
		t.Error("Expected an error for zero max backups")
	}
}

func TestHashFunctions(t *testing.T) {
	for _, name := range []string{db.HashLetter, db.HashFNV, db.HashXX} {
		config := store.DefaultConfig()
		config.HashFunction = name
		s := newStore(t, config)

		_, _ = s.Write([]db.Pair{{Key: "k1", Value: "v1"}, {Key: "k2", Value: "v2"}})
		results, err := s.Read([]string{"k2", "k1"})
		if err != nil {
			t.Fatalf("%s: Read failed: %v", name, err)
		}
		if got := store.RenderRead(results); got != "[(k2,v2)(k1,v1)]\n" {
			t.Errorf("%s: unexpected read %q", name, got)
		}
		_ = s.Close()
	}
}

func TestMetricsAreRecorded(t *testing.T) {
	m := telemetry.New()
	s := newStore(t, store.DefaultConfig(), WithMetrics(m))
	defer s.Close()

	_, _ = s.Write([]db.Pair{{Key: "a", Value: "1"}, {Key: "", Value: "x"}})
	_, _ = s.Read([]string{"a", "b"})
	_, _ = s.Delete([]string{"c"})

	if m.Writes.Get() != 1 || m.Reads.Get() != 1 || m.Deletes.Get() != 1 {
		t.Errorf("Unexpected operation counters %d/%d/%d", m.Writes.Get(), m.Reads.Get(), m.Deletes.Get())
	}
	if m.InvalidPairs.Get() != 1 {
		t.Errorf("Expected 1 invalid pair, got %d", m.InvalidPairs.Get())
	}
	if m.MissingKeys.Get() != 2 {
		t.Errorf("Expected 2 missing keys, got %d", m.MissingKeys.Get())
	}

	var buf bytes.Buffer
	m.WritePrometheus(&buf)
	if !strings.Contains(buf.String(), "kvs_backups_in_flight") {
		t.Error("Expected the backup gauge to be exported")
	}
}

// --------------------------------------------------------------------------
// Backup bound through the store
// --------------------------------------------------------------------------

// gatedSink hands out outputs that block in Write until the gate is closed
type gatedSink struct {
	gate chan struct{}

	mu    sync.Mutex
	files map[string]*bytes.Buffer
}

type gatedOutput struct {
	sink *gatedSink
	name string
	buf  bytes.Buffer
}

func (s *gatedSink) Create(name string, seq uint64) (backup.IOutput, error) {
	return &gatedOutput{sink: s, name: backup.FileName(name, seq)}, nil
}

func (o *gatedOutput) Write(p []byte) (int, error) {
	<-o.sink.gate
	return o.buf.Write(p)
}

func (o *gatedOutput) Commit() error {
	o.sink.mu.Lock()
	defer o.sink.mu.Unlock()
	o.sink.files[o.name] = &o.buf
	return nil
}

func (o *gatedOutput) Abort() {}

func TestBackupBoundBlocksFourthRequest(t *testing.T) {
	sink := &gatedSink{gate: make(chan struct{}), files: make(map[string]*bytes.Buffer)}
	s := newStore(t, store.DefaultConfig(), WithBackupSink(sink))

	_, _ = s.Write([]db.Pair{{Key: "a", Value: "1"}})
	for seq := uint64(1); seq <= 3; seq++ {
		if err := s.Backup("job", seq); err != nil {
			t.Fatalf("Backup %d failed: %v", seq, err)
		}
	}

	info, _ := s.Info()
	if info.BackupsInFlight != 3 {
		t.Errorf("Expected 3 backups in flight, got %d", info.BackupsInFlight)
	}

	fourth := make(chan error, 1)
	go func() { fourth <- s.Backup("job", 4) }()

	select {
	case err := <-fourth:
		t.Fatalf("Fourth backup must wait for a free slot, returned %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	// other operations are not affected by a full backup pool
	if _, err := s.Read([]string{"a"}); err != nil {
		t.Errorf("Read failed while backups were pending: %v", err)
	}

	close(sink.gate)
	select {
	case err := <-fourth:
		if err != nil {
			t.Fatalf("Backup 4 failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Fourth backup did not start after slots were freed")
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, name := range []string{"job-1.bck", "job-2.bck", "job-3.bck", "job-4.bck"} {
		buf, ok := sink.files[name]
		if !ok {
			t.Errorf("Backup %s was not committed", name)
			continue
		}
		if buf.String() != "(a,1)\n" {
			t.Errorf("Unexpected content of %s: %q", name, buf.String())
		}
	}
}
