package lockmgr

// Mode selects how bucket locks are taken
type Mode int

const (
	// ModeRead takes the bucket locks in shared mode (READ)
	ModeRead Mode = iota
	// ModeWrite takes the bucket locks in exclusive mode (WRITE, DELETE, subscription changes)
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// ILease is a set of held locks.
type ILease interface {
	// Buckets returns the bucket indices held by the lease in acquisition (ascending) order.
	// A table lease returns nil.
	Buckets() []int

	// Release releases the bucket locks in descending order, then the table lock.
	// Calling Release more than once is a no-op.
	Release()
}

// ILockCoordinator derives and acquires the lock plan of an operation.
type ILockCoordinator interface {
	// Plan returns the distinct bucket indices touched by keys, sorted ascending.
	Plan(keys []string) []int

	// Acquire takes the table lock in shared mode and then every bucket lock of
	// Plan(keys) in ascending order, in the given mode. Blocks until all locks are held.
	Acquire(keys []string, mode Mode) ILease

	// AcquireTable takes the table lock in exclusive mode, which excludes all bucket activity.
	AcquireTable() ILease
}
