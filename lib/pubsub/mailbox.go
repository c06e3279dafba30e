package pubsub

import (
	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/db/util"
	"sync"
	"sync/atomic"
)

// DeliverFunc writes one notification to the session's notification channel
type DeliverFunc func(n db.Notification) error

// FailureFunc is called once, from the delivery goroutine, when delivery to a session failed
type FailureFunc func(sessionID string, err error)

// Mailbox is the subscriber of one session. Notify enqueues on an unbounded
// lock-free queue and never blocks, so a mutation holding bucket locks is never
// slowed down by a slow client. A dedicated goroutine delivers in enqueue order.
//
// After the first delivery error the mailbox rejects new notifications (which
// drops the subscriptions they were sent for), discards what is queued and
// reports the error through the FailureFunc.
type Mailbox struct {
	id        string
	queue     *util.LockFreeMPSC[db.Notification]
	deliver   DeliverFunc
	onFailure FailureFunc
	failed    atomic.Bool
	delivered atomic.Uint64
	closeOnce sync.Once
	done      chan struct{}
}

// NewMailbox creates a mailbox and starts its delivery goroutine.
// onFailure may be nil.
func NewMailbox(sessionID string, deliver DeliverFunc, onFailure FailureFunc) *Mailbox {
	m := &Mailbox{
		id:        sessionID,
		queue:     util.NewLockFreeMPSC[db.Notification](),
		deliver:   deliver,
		onFailure: onFailure,
		done:      make(chan struct{}),
	}
	go m.run()
	return m
}

// SubscriberID implements db.Subscriber
func (m *Mailbox) SubscriberID() string {
	return m.id
}

// Notify implements db.Subscriber
//
// Thread-safety: This method is thread-safe and never blocks.
func (m *Mailbox) Notify(n db.Notification) bool {
	if m.failed.Load() {
		return false
	}
	return m.queue.Push(n)
}

// Delivered returns the number of notifications written successfully
func (m *Mailbox) Delivered() uint64 {
	return m.delivered.Load()
}

// Close stops accepting notifications and waits until everything already
// queued was delivered (or discarded after a failure).
func (m *Mailbox) Close() {
	m.closeOnce.Do(m.queue.Close)
	<-m.done
}

func (m *Mailbox) run() {
	defer close(m.done)

	for n := range m.queue.Recv() {
		if m.failed.Load() {
			continue
		}
		if err := m.deliver(n); err != nil {
			m.failed.Store(true)
			Logger.Warningf("delivery to session %s failed: %v", m.id, err)
			if m.onFailure != nil {
				m.onFailure(m.id, err)
			}
			continue
		}
		m.delivered.Add(1)
	}
}
