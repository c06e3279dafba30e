package testing

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/store"
)

// StoreFactory is a function that creates a new instance of an IStore implementation
type StoreFactory func(config store.Config) store.IStore

// RunStoreTests runs a comprehensive test suite for an IStore implementation.
// The suite assumes the default letter hash (one bucket per initial letter).
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("WriteRead", func(t *testing.T) {
			testWriteRead(t, factory(store.DefaultConfig()))
		})

		t.Run("ReadRequestOrder", func(t *testing.T) {
			testReadRequestOrder(t, factory(store.DefaultConfig()))
		})

		t.Run("DeleteMissing", func(t *testing.T) {
			testDeleteMissing(t, factory(store.DefaultConfig()))
		})

		t.Run("InvalidPairs", func(t *testing.T) {
			testInvalidPairs(t, factory(store.DefaultConfig()))
		})

		t.Run("ShowOrder", func(t *testing.T) {
			testShowOrder(t, factory(store.DefaultConfig()))
		})

		t.Run("SubscribeNotify", func(t *testing.T) {
			testSubscribeNotify(t, factory(store.DefaultConfig()))
		})

		t.Run("SubscribeErrors", func(t *testing.T) {
			testSubscribeErrors(t, factory)
		})

		t.Run("DeleteEndsSubscriptions", func(t *testing.T) {
			testDeleteEndsSubscriptions(t, factory(store.DefaultConfig()))
		})

		t.Run("PurgeSession", func(t *testing.T) {
			testPurgeSession(t, factory(store.DefaultConfig()))
		})

		t.Run("ExactlyOnceNotifications", func(t *testing.T) {
			testExactlyOnceNotifications(t, factory(store.DefaultConfig()))
		})

		t.Run("DisjointBucketsProgress", func(t *testing.T) {
			testDisjointBucketsProgress(t, factory(store.DefaultConfig()))
		})

		t.Run("NoDeadlockUnderOverlap", func(t *testing.T) {
			testNoDeadlockUnderOverlap(t, factory(store.DefaultConfig()))
		})

		t.Run("ShowConsistency", func(t *testing.T) {
			testShowConsistency(t, factory(store.DefaultConfig()))
		})

		t.Run("BackupFiles", func(t *testing.T) {
			testBackupFiles(t, factory)
		})

		t.Run("Restore", func(t *testing.T) {
			testRestore(t, factory(store.DefaultConfig()))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory(store.DefaultConfig()))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory(store.DefaultConfig()))
		})
	})
}

// --------------------------------------------------------------------------
// Helper types and functions
// --------------------------------------------------------------------------

// Recorder is a subscriber that records every notification it accepts
type Recorder struct {
	ID string

	mu    sync.Mutex
	got   []db.Notification
	block map[string]chan struct{}
}

// NewRecorder creates a recorder for the given session id
func NewRecorder(id string) *Recorder {
	return &Recorder{ID: id, block: make(map[string]chan struct{})}
}

func (r *Recorder) SubscriberID() string { return r.ID }

func (r *Recorder) Notify(n db.Notification) bool {
	r.mu.Lock()
	gate := r.block[n.Key]
	r.got = append(r.got, n)
	r.mu.Unlock()

	// only used to hold bucket locks on purpose in progress tests
	if gate != nil {
		<-gate
	}
	return true
}

// Received returns a copy of the recorded notifications
func (r *Recorder) Received() []db.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]db.Notification(nil), r.got...)
}

// blockOn makes Notify for key wait until the returned channel is closed
func (r *Recorder) blockOn(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	gate := make(chan struct{})
	r.block[key] = gate
	return gate
}

func mustWrite(t testing.TB, s store.IStore, pairs ...db.Pair) {
	t.Helper()
	errs, err := s.Write(pairs)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	for i, e := range errs {
		if e != nil {
			t.Fatalf("Write of %v failed: %v", pairs[i], e)
		}
	}
}

func p(key, value string) db.Pair {
	return db.Pair{Key: key, Value: value}
}

func withTimeout(t testing.TB, d time.Duration, what string, f func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		f()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("Timeout after %s: %s", d, what)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testWriteRead(t *testing.T, s store.IStore) {
	defer s.Close()

	mustWrite(t, s, p("a", "1"), p("b", "2"))

	results, err := s.Read([]string{"a", "b"})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := store.RenderRead(results); got != "[(a,1)(b,2)]\n" {
		t.Errorf("Expected [(a,1)(b,2)], got %q", got)
	}

	mustWrite(t, s, p("a", "3"))
	results, _ = s.Read([]string{"a"})
	if !results[0].Found || results[0].Value != "3" {
		t.Errorf("Expected overwritten value 3, got %+v", results[0])
	}
}

func testReadRequestOrder(t *testing.T, s store.IStore) {
	defer s.Close()

	mustWrite(t, s, p("zeta", "z"), p("alpha", "a"), p("mid", "m"))

	// request order differs from bucket order and contains a missing key and a duplicate
	results, err := s.Read([]string{"zeta", "nope", "alpha", "mid", "zeta"})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := "[(zeta,z)(nope,KVSERROR)(alpha,a)(mid,m)(zeta,z)]\n"
	if got := store.RenderRead(results); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func testDeleteMissing(t *testing.T, s store.IStore) {
	defer s.Close()

	mustWrite(t, s, p("a", "1"), p("cat", "9"))

	missing, err := s.Delete([]string{"a", "c"})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got := store.RenderMissing(missing); got != "[(c,KVSMISSING)]\n" {
		t.Errorf("Expected [(c,KVSMISSING)], got %q", got)
	}

	// unrelated key in the same bucket is untouched
	results, _ := s.Read([]string{"a", "cat"})
	if results[0].Found {
		t.Error("Expected a to be deleted")
	}
	if !results[1].Found || results[1].Value != "9" {
		t.Errorf("Expected cat to be untouched, got %+v", results[1])
	}

	missing, _ = s.Delete([]string{"cat"})
	if len(missing) != 0 {
		t.Errorf("Expected nothing missing, got %v", missing)
	}
}

func testInvalidPairs(t *testing.T, s store.IStore) {
	defer s.Close()

	long := strings.Repeat("x", db.MaxStringSize+1)
	errs, err := s.Write([]db.Pair{p("good", "1"), p("", "2"), p("ok", long), p("fine", "3")})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if errs[0] != nil || errs[3] != nil {
		t.Errorf("Valid pairs must not fail: %v", errs)
	}
	if !errors.Is(errs[1], store.ErrInvalidArgument) || !errors.Is(errs[2], store.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument errors, got %v", errs)
	}

	results, _ := s.Read([]string{"good", "ok", "fine"})
	if !results[0].Found || results[1].Found || !results[2].Found {
		t.Errorf("Only valid pairs must be written, got %+v", results)
	}
}

func testShowOrder(t *testing.T, s store.IStore) {
	defer s.Close()

	mustWrite(t, s, p("banana", "1"), p("apple", "2"), p("blue", "3"))
	mustWrite(t, s, p("avocado", "4"))

	pairs, err := s.Show()
	if err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	want := "(apple,2)\n(avocado,4)\n(banana,1)\n(blue,3)\n"
	if got := store.RenderPairs(pairs); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func testSubscribeNotify(t *testing.T, s store.IStore) {
	defer s.Close()

	mustWrite(t, s, p("x", "0"))
	s1 := NewRecorder("S1")

	if err := s.Subscribe(s1, "x"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	mustWrite(t, s, p("x", "5"))
	if err := s.Unsubscribe("S1", "x"); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	mustWrite(t, s, p("x", "6"))

	got := s1.Received()
	if len(got) != 1 || got[0].String() != "(x,5)" {
		t.Errorf("Expected exactly (x,5), got %v", got)
	}
}

func testSubscribeErrors(t *testing.T, factory StoreFactory) {
	config := store.DefaultConfig()
	config.MaxSubscriptions = 2
	s := factory(config)
	defer s.Close()

	sub := NewRecorder("S")
	if err := s.Subscribe(sub, "missing"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	mustWrite(t, s, p("a", "1"), p("b", "2"), p("c", "3"))
	for _, k := range []string{"a", "b", "a"} {
		if err := s.Subscribe(sub, k); err != nil {
			t.Fatalf("Subscribe %s failed: %v", k, err)
		}
	}
	if err := s.Subscribe(sub, "c"); !errors.Is(err, store.ErrLimitExceeded) {
		t.Errorf("Expected ErrLimitExceeded, got %v", err)
	}
	if err := s.Unsubscribe("S", "c"); !errors.Is(err, store.ErrNotSubscribed) {
		t.Errorf("Expected ErrNotSubscribed, got %v", err)
	}
	if err := s.Subscribe(sub, ""); !errors.Is(err, store.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for empty key, got %v", err)
	}
}

func testDeleteEndsSubscriptions(t *testing.T, s store.IStore) {
	defer s.Close()

	mustWrite(t, s, p("k", "1"))
	sub := NewRecorder("S")
	if err := s.Subscribe(sub, "k"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if _, err := s.Delete([]string{"k"}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	mustWrite(t, s, p("k", "2"))

	got := sub.Received()
	if len(got) != 1 || !got[0].Deleted || got[0].Value != db.DeletedMarker {
		t.Errorf("Expected a single deletion marker, got %v", got)
	}
	if err := s.Unsubscribe("S", "k"); !errors.Is(err, store.ErrNotSubscribed) {
		t.Errorf("Expected the subscription to end with the delete, got %v", err)
	}
}

func testPurgeSession(t *testing.T, s store.IStore) {
	defer s.Close()

	if err := s.PurgeSession("nobody"); err != nil {
		t.Errorf("Purging an unknown session must succeed, got %v", err)
	}

	mustWrite(t, s, p("a", "1"), p("b", "2"))
	gone := NewRecorder("gone")
	stay := NewRecorder("stay")
	for _, k := range []string{"a", "b"} {
		_ = s.Subscribe(gone, k)
	}
	_ = s.Subscribe(stay, "a")

	if err := s.PurgeSession("gone"); err != nil {
		t.Fatalf("PurgeSession failed: %v", err)
	}
	mustWrite(t, s, p("a", "3"), p("b", "4"))

	if n := len(gone.Received()); n != 0 {
		t.Errorf("Purged session received %d notifications", n)
	}
	if n := len(stay.Received()); n != 1 {
		t.Errorf("Expected 1 notification for the remaining session, got %d", n)
	}
}

func testExactlyOnceNotifications(t *testing.T, s store.IStore) {
	defer s.Close()

	mustWrite(t, s, p("hot", "0"))
	sub := NewRecorder("S")
	if err := s.Subscribe(sub, "hot"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	const writers = 8
	const perWriter = 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				mustWrite(t, s, p("hot", fmt.Sprintf("%d-%d", w, i)), p("other", "x"))
			}
		}(w)
	}
	wg.Wait()

	got := sub.Received()
	if len(got) != writers*perWriter {
		t.Fatalf("Expected %d notifications, got %d", writers*perWriter, len(got))
	}

	// the last notification carries the committed value
	results, _ := s.Read([]string{"hot"})
	if got[len(got)-1].Value != results[0].Value {
		t.Errorf("Last notification %v does not match committed value %s", got[len(got)-1], results[0].Value)
	}
}

func testDisjointBucketsProgress(t *testing.T, s store.IStore) {
	defer s.Close()

	mustWrite(t, s, p("a", "0"))
	sub := NewRecorder("S")
	if err := s.Subscribe(sub, "a"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	// the next write to a parks inside Notify while holding bucket a
	gate := sub.blockOn("a")
	held := make(chan struct{})
	go func() {
		defer close(held)
		mustWrite(t, s, p("a", "1"))
	}()

	for len(sub.Received()) == 0 {
		time.Sleep(time.Millisecond)
	}

	withTimeout(t, 5*time.Second, "operations on other buckets blocked", func() {
		mustWrite(t, s, p("b", "1"), p("z", "2"))
		if _, err := s.Read([]string{"b", "q"}); err != nil {
			t.Errorf("Read failed: %v", err)
		}
		if _, err := s.Delete([]string{"z"}); err != nil {
			t.Errorf("Delete failed: %v", err)
		}
	})

	close(gate)
	<-held
}

func testNoDeadlockUnderOverlap(t *testing.T, s store.IStore) {
	defer s.Close()

	const workers = 16
	const iterations = 300
	letters := "abcdefghijklmnopqrstuvwxyz"

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < iterations; i++ {
				keys := make([]string, 1+rng.Intn(5))
				for k := range keys {
					keys[k] = fmt.Sprintf("%c%d", letters[rng.Intn(len(letters))], rng.Intn(4))
				}

				var err error
				switch rng.Intn(10) {
				case 0:
					_, err = s.Show()
				case 1, 2, 3:
					pairs := make([]db.Pair, len(keys))
					for k, key := range keys {
						pairs[k] = p(key, fmt.Sprintf("%d", i))
					}
					_, err = s.Write(pairs)
				case 4, 5:
					_, err = s.Delete(keys)
				default:
					_, err = s.Read(keys)
				}
				if err != nil {
					t.Errorf("Operation failed: %v", err)
					return
				}
			}
		}(int64(w))
	}

	withTimeout(t, 60*time.Second, "deadlock under overlapping multi-key operations", wg.Wait)
}

// writeGenerations writes the same generation value to one key per bucket in a
// single WRITE until stop is closed
func writeGenerations(t *testing.T, s store.IStore, stop <-chan struct{}) {
	letters := "abcdefghijklmnopqrstuvwxyz"
	for gen := 0; ; gen++ {
		select {
		case <-stop:
			return
		default:
		}
		pairs := make([]db.Pair, 0, len(letters))
		for _, c := range letters {
			pairs = append(pairs, p(string(c)+"key", fmt.Sprintf("%d", gen)))
		}
		if _, err := s.Write(pairs); err != nil {
			t.Errorf("Write failed: %v", err)
			return
		}
	}
}

// assertOneGeneration checks that a snapshot contains every key exactly once and a single value
func assertOneGeneration(t *testing.T, pairs []db.Pair) {
	t.Helper()
	if len(pairs) == 0 {
		return
	}
	seen := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		if seen[pair.Key] {
			t.Fatalf("Duplicate key %s in snapshot", pair.Key)
		}
		seen[pair.Key] = true
		if pair.Value != pairs[0].Value {
			t.Fatalf("Snapshot mixes generations: %v", pairs)
		}
	}
	if len(pairs) != 26 {
		t.Fatalf("Snapshot contains a partial write: %d of 26 keys", len(pairs))
	}
}

func testShowConsistency(t *testing.T, s store.IStore) {
	defer s.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			writeGenerations(t, s, stop)
		}()
	}

	for i := 0; i < 200; i++ {
		pairs, err := s.Show()
		if err != nil {
			t.Fatalf("Show failed: %v", err)
		}
		assertOneGeneration(t, pairs)
	}

	close(stop)
	wg.Wait()
}

func testBackupFiles(t *testing.T, factory StoreFactory) {
	config := store.DefaultConfig()
	config.MaxBackups = 1
	s := factory(config)

	name := filepath.Join(t.TempDir(), "job")
	mustWrite(t, s, p("b", "2"), p("a", "1"))
	if err := s.Backup(name, 1); err != nil {
		t.Fatalf("Backup 1 failed: %v", err)
	}
	mustWrite(t, s, p("c", "3"))
	if err := s.Backup(name, 2); err != nil {
		t.Fatalf("Backup 2 failed: %v", err)
	}

	// consistency under concurrent writers
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		writeGenerations(t, s, stop)
	}()
	for seq := uint64(3); seq <= 10; seq++ {
		if err := s.Backup(name, seq); err != nil {
			t.Fatalf("Backup %d failed: %v", seq, err)
		}
	}
	close(stop)
	<-done

	// Close waits for all backups
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	first, err := os.ReadFile(name + "-1.bck")
	if err != nil {
		t.Fatalf("Reading first backup: %v", err)
	}
	if string(first) != "(a,1)\n(b,2)\n" {
		t.Errorf("Unexpected first backup %q", first)
	}
	second, _ := os.ReadFile(name + "-2.bck")
	if string(second) != "(a,1)\n(b,2)\n(c,3)\n" {
		t.Errorf("Unexpected second backup %q", second)
	}

	for seq := 3; seq <= 10; seq++ {
		f, err := os.Open(fmt.Sprintf("%s-%d.bck", name, seq))
		if err != nil {
			t.Fatalf("Backup %d missing: %v", seq, err)
		}
		pairs, err := store.ReadPairs(f)
		f.Close()
		if err != nil {
			t.Fatalf("Backup %d unreadable: %v", seq, err)
		}

		// drop the three static keys and check the generation keys
		var gen []db.Pair
		for _, pair := range pairs {
			if strings.HasSuffix(pair.Key, "key") {
				gen = append(gen, pair)
			}
		}
		assertOneGeneration(t, gen)
	}
}

func testRestore(t *testing.T, s store.IStore) {
	defer s.Close()

	n, err := s.Restore(strings.NewReader("(a,1)\n(b,2)\n\n(a,3)\n"))
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 restored pairs, got %d", n)
	}
	results, _ := s.Read([]string{"a", "b"})
	if store.RenderRead(results) != "[(a,3)(b,2)]\n" {
		t.Errorf("Unexpected state after restore: %s", store.RenderRead(results))
	}

	if _, err := s.Restore(strings.NewReader("garbage\n")); err == nil {
		t.Error("Expected restore of malformed input to fail")
	}
}

func testInfo(t *testing.T, s store.IStore) {
	defer s.Close()

	mustWrite(t, s, p("a", "1"), p("b", "2"), p("b2", "3"))
	info, err := s.Info()
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Entries != 3 {
		t.Errorf("Expected 3 entries, got %d", info.Entries)
	}
	if len(info.BucketSizes) != db.TableSize || info.BucketSizes[1] != 2 {
		t.Errorf("Unexpected bucket sizes %v", info.BucketSizes)
	}
}

func testClose(t *testing.T, s store.IStore) {
	mustWrite(t, s, p("a", "1"))

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected second Close to fail with ErrClosed, got %v", err)
	}
	if _, err := s.Write([]db.Pair{p("b", "2")}); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected Write after Close to fail, got %v", err)
	}
	if _, err := s.Read([]string{"a"}); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected Read after Close to fail, got %v", err)
	}
	if _, err := s.Show(); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected Show after Close to fail, got %v", err)
	}
	if err := s.Backup("x", 1); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Expected Backup after Close to fail, got %v", err)
	}
}
