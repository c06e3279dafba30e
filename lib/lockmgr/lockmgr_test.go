package lockmgr

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/kvs/lib/db"
)

func TestPlanSortedDistinct(t *testing.T) {
	c := NewLockCoordinator(db.NewTable(db.LetterHash))

	plan := c.Plan([]string{"zebra", "apple", "avocado", "mango", "zoo"})
	want := []int{0, 12, 25}
	if len(plan) != len(want) {
		t.Fatalf("Expected plan %v, got %v", want, plan)
	}
	for i := range want {
		if plan[i] != want[i] {
			t.Errorf("Expected plan %v, got %v", want, plan)
			break
		}
	}

	if p := c.Plan(nil); len(p) != 0 {
		t.Errorf("Expected empty plan, got %v", p)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	table := db.NewTable(nil)
	c := NewLockCoordinator(table)

	lease := c.Acquire([]string{"a", "b"}, ModeWrite)
	lease.Release()
	lease.Release()

	// all locks must be free again
	table.TableLock().Lock()
	table.TableLock().Unlock()
	for _, idx := range []int{0, 1} {
		table.BucketLock(idx).Lock()
		table.BucketLock(idx).Unlock()
	}

	tl := c.AcquireTable()
	tl.Release()
	tl.Release()
	if tl.Buckets() != nil {
		t.Error("A table lease holds no bucket locks")
	}
}

func TestSharedReadLeases(t *testing.T) {
	c := NewLockCoordinator(db.NewTable(nil))

	first := c.Acquire([]string{"a"}, ModeRead)
	defer first.Release()

	done := make(chan struct{})
	go func() {
		second := c.Acquire([]string{"a"}, ModeRead)
		second.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Two read leases on the same bucket must not block each other")
	}
}

func TestDisjointWritersProceed(t *testing.T) {
	c := NewLockCoordinator(db.NewTable(db.LetterHash))

	held := c.Acquire([]string{"a"}, ModeWrite)
	defer held.Release()

	done := make(chan struct{})
	go func() {
		other := c.Acquire([]string{"b", "c"}, ModeWrite)
		other.Release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Write leases on disjoint buckets must not block each other")
	}
}

func TestTableLeaseExcludesBuckets(t *testing.T) {
	c := NewLockCoordinator(db.NewTable(nil))

	tl := c.AcquireTable()

	var acquired atomic.Bool
	done := make(chan struct{})
	go func() {
		lease := c.Acquire([]string{"q"}, ModeRead)
		acquired.Store(true)
		lease.Release()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	if acquired.Load() {
		t.Fatal("A bucket lease must wait for the exclusive table lease")
	}

	tl.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Bucket lease did not proceed after the table lease was released")
	}
}

// TestNoDeadlockUnderOverlap runs many goroutines that lock randomly ordered,
// overlapping key sets in both modes and fails if they do not finish in time.
func TestNoDeadlockUnderOverlap(t *testing.T) {
	table := db.NewTable(db.LetterHash)
	c := NewLockCoordinator(table)

	const workers = 32
	const iterations = 500
	letters := "abcdefghijklmnopqrstuvwxyz"

	// written under the bucket locks, the race detector flags any protocol violation
	var counters [db.TableSize]int

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < iterations; i++ {
				n := 1 + rng.Intn(6)
				keys := make([]string, n)
				for k := range keys {
					keys[k] = fmt.Sprintf("%c%d", letters[rng.Intn(len(letters))], i)
				}

				if rng.Intn(10) == 0 {
					tl := c.AcquireTable()
					tl.Release()
					continue
				}

				mode := ModeRead
				if rng.Intn(2) == 0 {
					mode = ModeWrite
				}
				lease := c.Acquire(keys, mode)
				if mode == ModeWrite {
					for _, idx := range lease.Buckets() {
						counters[idx]++
					}
				}
				lease.Release()
			}
		}(int64(w))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("Deadlock: workers did not finish")
	}
}
