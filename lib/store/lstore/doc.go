// Package lstore implements the in-process engine behind the store.IStore
// interface. It composes the bucketed db.Table, the lockmgr lock coordinator,
// the pubsub subscription registry and the backup manager.
//
// Operation Flow:
//
//	WRITE, READ and DELETE validate their input, acquire a lease on the buckets
//	of all keys (ascending order, write or read mode), operate on the table,
//	hand notifications to the subscriber mailboxes while the locks are still
//	held, and release the lease in descending order. Holding the locks while
//	notifying makes the notification order of a key match its commit order.
//	Enqueuing never blocks, so slow subscribers never stall a mutation.
//
//	SHOW takes the table lock exclusively and copies the table.
//
//	BACKUP acquires a backup slot first (blocking while all slots are in use),
//	then copies the table under the exclusive table lock, releases it and lets
//	the backup manager write the file in the background.
//
// Lifecycle:
//
//	NewLocalStore returns a ready store. Close takes the exclusive table lock,
//	which waits for all operations in flight, marks the store closed and then
//	waits for all running backups. Every call after Close (including a second
//	Close) returns store.ErrClosed.
//
// Usage Example:
//
//	s, err := lstore.NewLocalStore(store.DefaultConfig())
//	if err != nil {
//	    // Handle error
//	}
//	defer s.Close()
//
//	_, err = s.Write([]db.Pair{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}})
//	results, err := s.Read([]string{"a", "b"})
//	fmt.Print(store.RenderRead(results)) // [(a,1)(b,2)]
package lstore
