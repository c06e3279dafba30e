// Package lockmgr implements the locking protocol of the table. It is the only
// place where table and bucket locks are taken.
//
// Core Functionality:
//   - Lock plans: the distinct buckets touched by a set of keys, sorted ascending
//   - Bucket leases: table lock (shared) plus the planned bucket locks
//   - Table leases: table lock (exclusive) for whole-table operations
//
// Implementation Approach:
//
//	Deadlock freedom follows from a total order on locks. Every bucket lease
//	first takes the table lock in shared mode and then its bucket locks strictly
//	in ascending index order. A lease never waits for a bucket with a lower index
//	than one it already holds, so no cycle of waiting leases can form. Locks are
//	released in reverse order.
//
//	Whole-table operations (SHOW and the copy step of BACKUP) take the table
//	lock in exclusive mode. Since every bucket lease holds the table lock in
//	shared mode, the exclusive table lock excludes all bucket activity without
//	taking any bucket lock. Two bucket leases on disjoint buckets both hold the
//	table lock shared and never block each other.
//
// Thread Safety:
//
//	A lease is owned by the goroutine that acquired it, but Release is
//	idempotent and can be deferred safely.
//
// Usage Example:
//
//	locks := lockmgr.NewLockCoordinator(table)
//
//	lease := locks.Acquire([]string{"b", "a"}, lockmgr.ModeWrite)
//	defer lease.Release()
//
//	table.Upsert("a", "1")
//	table.Upsert("b", "2")
package lockmgr
