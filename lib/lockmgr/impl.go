package lockmgr

import (
	"github.com/ValentinKolb/kvs/lib/db"
	"sync/atomic"
)

type lockCoordinator struct {
	table *db.Table
}

// NewLockCoordinator creates the lock coordinator of a table.
// Every caller touching the table must go through the same coordinator (or one
// created for the same table), since the ascending order is only deadlock free
// if it is applied uniformly.
func NewLockCoordinator(table *db.Table) ILockCoordinator {
	return &lockCoordinator{table: table}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see lockmgr/interface.go)
// --------------------------------------------------------------------------

func (c *lockCoordinator) Plan(keys []string) []int {
	return planBuckets(c.table, keys)
}

func (c *lockCoordinator) Acquire(keys []string, mode Mode) ILease {
	buckets := planBuckets(c.table, keys)

	c.table.TableLock().RLock()
	for _, idx := range buckets {
		if mode == ModeWrite {
			c.table.BucketLock(idx).Lock()
		} else {
			c.table.BucketLock(idx).RLock()
		}
	}

	return &bucketLease{table: c.table, buckets: buckets, mode: mode}
}

func (c *lockCoordinator) AcquireTable() ILease {
	c.table.TableLock().Lock()
	return &tableLease{table: c.table}
}

// --------------------------------------------------------------------------
// Leases
// --------------------------------------------------------------------------

type bucketLease struct {
	table    *db.Table
	buckets  []int
	mode     Mode
	released atomic.Bool
}

func (l *bucketLease) Buckets() []int {
	return l.buckets
}

func (l *bucketLease) Release() {
	if !l.released.CompareAndSwap(false, true) {
		return
	}
	for i := len(l.buckets) - 1; i >= 0; i-- {
		if l.mode == ModeWrite {
			l.table.BucketLock(l.buckets[i]).Unlock()
		} else {
			l.table.BucketLock(l.buckets[i]).RUnlock()
		}
	}
	l.table.TableLock().RUnlock()
}

type tableLease struct {
	table    *db.Table
	released atomic.Bool
}

func (l *tableLease) Buckets() []int {
	return nil
}

func (l *tableLease) Release() {
	if l.released.CompareAndSwap(false, true) {
		l.table.TableLock().Unlock()
	}
}
