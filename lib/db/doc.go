// Package db provides the in-memory hash table at the core of kvs.
//
// The Table has a fixed number of buckets (TableSize). Each bucket is an
// insertion ordered chain of entries protected by its own sync.RWMutex, and the
// table carries one additional table-wide sync.RWMutex for whole-structure
// operations such as SHOW and the copy step of BACKUP.
//
// Key Components:
//
//   - Table: Lookup, Upsert, Remove and Enumerate. None of these methods take
//     locks themselves. The caller must hold the locks documented on every method,
//     which is what the lockmgr package does.
//
//   - Entry: the stored key-value pair plus its subscriber set. Subscribers are
//     back-references (the Subscriber interface) to session mailboxes and are
//     owned by whoever created them.
//
//   - HashFunc: any pure function mapping a key into [0, TableSize). The default
//     LetterHash buckets keys by their first byte, so snapshots of tables using it
//     enumerate keys grouped by initial letter. FNVHash and XXHash spread arbitrary
//     key spaces uniformly.
//
// The util package (github.com/ValentinKolb/kvs/lib/db/util) provides the
// supporting pieces used around the table:
//   - LockFreeMPSC: the unbounded queue behind subscriber mailboxes
//   - DistributionStats: bucket distribution reporting
//   - HashString: FNV-1a hashing
package db
