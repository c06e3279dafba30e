package db

import "fmt"

// --------------------------------------------------------------------------
// Limits
// --------------------------------------------------------------------------

const (
	// TableSize is the fixed number of buckets of every Table
	TableSize = 26

	// MaxStringSize is the maximum length in bytes of a key or a value
	MaxStringSize = 40

	// DeletedMarker is the value carried by notifications for deleted keys
	DeletedMarker = "DELETED"
)

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Pair is a single key-value pair as it is written and enumerated
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (p Pair) String() string {
	return fmt.Sprintf("(%s,%s)", p.Key, p.Value)
}

// Notification describes a committed mutation of a key.
// For deletions Value is DeletedMarker and Deleted is set.
type Notification struct {
	Key     string
	Value   string
	Deleted bool
}

func (n Notification) String() string {
	return fmt.Sprintf("(%s,%s)", n.Key, n.Value)
}

// Subscriber receives notifications for the keys it is subscribed to.
// The table only holds a back-reference to a subscriber, it never owns it.
type Subscriber interface {
	// SubscriberID returns the identity of the session owning the subscriber.
	// A session appears at most once in the subscriber set of an entry.
	SubscriberID() string

	// Notify hands a notification over for asynchronous delivery.
	// It must never block. Returning false means the subscriber is gone and
	// the subscription should be dropped.
	Notify(n Notification) (accepted bool)
}

// HashFunc maps a key to a bucket index in [0, TableSize).
// Implementations must be pure and total.
type HashFunc func(key string) int
