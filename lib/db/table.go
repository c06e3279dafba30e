package db

import (
	"github.com/ValentinKolb/kvs/lib/db/util"
	"sync"
)

// --------------------------------------------------------------------------
// Entry Type (key-value pair with its subscribers)
// --------------------------------------------------------------------------

// Entry stores a key-value pair and the set of subscribers of the key.
// An Entry is owned by the bucket its key hashes to.
//
// Thread-safety: Reading an entry requires the bucket lock in shared mode,
// mutating it (including its subscriber set) requires the bucket lock in exclusive mode.
type Entry struct {
	Key         string
	Value       string
	subscribers []Subscriber
	next        *Entry
}

// AddSubscriber adds sub to the subscriber set.
// Returns false if a subscriber with the same id is already present.
func (e *Entry) AddSubscriber(sub Subscriber) bool {
	id := sub.SubscriberID()
	for _, s := range e.subscribers {
		if s.SubscriberID() == id {
			return false
		}
	}
	e.subscribers = append(e.subscribers, sub)
	return true
}

// RemoveSubscriber removes the subscriber with the given id from the subscriber set
func (e *Entry) RemoveSubscriber(id string) bool {
	for i, s := range e.subscribers {
		if s.SubscriberID() == id {
			e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
			return true
		}
	}
	return false
}

// Subscribers returns a copy of the subscriber set in subscription order
func (e *Entry) Subscribers() []Subscriber {
	if len(e.subscribers) == 0 {
		return nil
	}
	subs := make([]Subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	return subs
}

// HasSubscriber reports whether the session with the given id is subscribed to the entry
func (e *Entry) HasSubscriber(id string) bool {
	for _, s := range e.subscribers {
		if s.SubscriberID() == id {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Bucket Type (insertion ordered chain)
// --------------------------------------------------------------------------

// bucket is an insertion ordered singly linked chain of entries
type bucket struct {
	mu   sync.RWMutex
	head *Entry
	tail *Entry
	size int
}

func (b *bucket) find(key string) (prev, e *Entry) {
	for e = b.head; e != nil; prev, e = e, e.next {
		if e.Key == key {
			return prev, e
		}
	}
	return nil, nil
}

// --------------------------------------------------------------------------
// Table Type
// --------------------------------------------------------------------------

// Table is a fixed size hash table of TableSize buckets.
// Every bucket has its own RW lock and the table has one table-wide RW lock.
//
// The table never acquires its own locks. All data methods expect the caller to
// hold the locks described in their doc comment (see lockmgr for the protocol).
type Table struct {
	mu      sync.RWMutex
	buckets [TableSize]bucket
	hash    HashFunc
}

// NewTable creates an empty table using the given hash function (LetterHash if nil)
func NewTable(hash HashFunc) *Table {
	if hash == nil {
		hash = LetterHash
	}
	return &Table{hash: hash}
}

// BucketOf returns the bucket index of a key
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (t *Table) BucketOf(key string) int {
	return t.hash(key)
}

// TableLock returns the table-wide lock
func (t *Table) TableLock() *sync.RWMutex {
	return &t.mu
}

// BucketLock returns the lock of the bucket with the given index
func (t *Table) BucketLock(idx int) *sync.RWMutex {
	return &t.buckets[idx].mu
}

// Lookup returns the value stored for key.
// Requires the bucket of key to be locked (shared or exclusive).
func (t *Table) Lookup(key string) (string, bool) {
	_, e := t.buckets[t.hash(key)].find(key)
	if e == nil {
		return "", false
	}
	return e.Value, true
}

// Entry returns the entry of key or nil.
// Requires the bucket of key to be locked.
func (t *Table) Entry(key string) *Entry {
	_, e := t.buckets[t.hash(key)].find(key)
	return e
}

// Upsert updates the value of key in place or appends a new entry at the end of the bucket.
// Returns the entry and whether it was created.
// Requires the bucket of key to be locked in exclusive mode.
func (t *Table) Upsert(key, value string) (*Entry, bool) {
	b := &t.buckets[t.hash(key)]
	if _, e := b.find(key); e != nil {
		e.Value = value
		return e, false
	}

	e := &Entry{Key: key, Value: value}
	if b.tail == nil {
		b.head = e
	} else {
		b.tail.next = e
	}
	b.tail = e
	b.size++
	return e, true
}

// Remove unlinks the entry of key and returns it.
// The returned entry keeps its subscriber set so the caller can notify and detach it.
// Requires the bucket of key to be locked in exclusive mode.
func (t *Table) Remove(key string) (*Entry, bool) {
	b := &t.buckets[t.hash(key)]
	prev, e := b.find(key)
	if e == nil {
		return nil, false
	}

	if prev == nil {
		b.head = e.next
	} else {
		prev.next = e.next
	}
	if b.tail == e {
		b.tail = prev
	}
	e.next = nil
	b.size--
	return e, true
}

// Enumerate returns a copy of all pairs in bucket order, then insertion order.
// Requires the table lock in exclusive mode.
func (t *Table) Enumerate() []Pair {
	pairs := make([]Pair, 0, t.Len())
	for i := range t.buckets {
		for e := t.buckets[i].head; e != nil; e = e.next {
			pairs = append(pairs, Pair{Key: e.Key, Value: e.Value})
		}
	}
	return pairs
}

// Len returns the number of entries.
// Requires the table lock in exclusive mode.
func (t *Table) Len() int {
	n := 0
	for i := range t.buckets {
		n += t.buckets[i].size
	}
	return n
}

// BucketSizes returns the chain length of every bucket.
// Requires the table lock in exclusive mode.
func (t *Table) BucketSizes() []int {
	sizes := make([]int, TableSize)
	for i := range t.buckets {
		sizes[i] = t.buckets[i].size
	}
	return sizes
}

// Distribution returns statistics about the spread of entries over the buckets.
// Requires the table lock in exclusive mode.
func (t *Table) Distribution() util.DistributionStats {
	sizes := make([]float64, TableSize)
	for i := range t.buckets {
		sizes[i] = float64(t.buckets[i].size)
	}
	return util.NewDistributionStats(sizes)
}
