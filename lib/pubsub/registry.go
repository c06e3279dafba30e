package pubsub

import (
	"fmt"
	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/lockmgr"
	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/lib/telemetry"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sync"
)

var Logger = logger.GetLogger("pubsub")

// sessionSubs is the index of the keys a session is subscribed to.
// Its mutex is a leaf lock: it may be taken while holding bucket locks, never the other way around.
type sessionSubs struct {
	mu     sync.Mutex
	keys   map[string]struct{}
	purged bool
}

// Registry keeps the subscriber sets of the table entries consistent with a
// per-session index, enforces the per-session limit and fans out notifications.
//
// The subscriber sets live inside the entries and are protected by the bucket locks.
// The per-session index exists so that limits can be checked and sessions purged
// without scanning the table.
type Registry struct {
	table         *db.Table
	locks         lockmgr.ILockCoordinator
	maxPerSession int
	sessions      *xsync.MapOf[string, *sessionSubs]
	metrics       *telemetry.Metrics
}

// NewRegistry creates a registry for the given table.
// locks must be the coordinator used by all other operations on the table.
func NewRegistry(table *db.Table, locks lockmgr.ILockCoordinator, maxPerSession int, m *telemetry.Metrics) *Registry {
	if m == nil {
		m = telemetry.New()
	}
	return &Registry{
		table:         table,
		locks:         locks,
		maxPerSession: maxPerSession,
		sessions:      xsync.NewMapOf[string, *sessionSubs](),
		metrics:       m,
	}
}

// --------------------------------------------------------------------------
// Session Operations (acquire their own locks)
// --------------------------------------------------------------------------

// Subscribe adds sub to the subscriber set of key.
//
// Thread-safety: This method is thread-safe. It takes the bucket lock of key in exclusive mode.
func (r *Registry) Subscribe(sub db.Subscriber, key string) error {
	id := sub.SubscriberID()

	lease := r.locks.Acquire([]string{key}, lockmgr.ModeWrite)
	defer lease.Release()

	entry := r.table.Entry(key)
	if entry == nil {
		return store.NewError(store.RetCKeyNotFound, fmt.Sprintf("key %q does not exist", key))
	}

	subs, _ := r.sessions.LoadOrCompute(id, func() *sessionSubs {
		return &sessionSubs{keys: make(map[string]struct{})}
	})

	subs.mu.Lock()
	defer subs.mu.Unlock()

	if subs.purged {
		return store.NewError(store.RetCClosed, fmt.Sprintf("session %s is closed", id))
	}
	if _, ok := subs.keys[key]; ok {
		return nil
	}
	if len(subs.keys) >= r.maxPerSession {
		return store.NewError(store.RetCLimitExceeded, fmt.Sprintf("session %s already holds %d subscriptions", id, len(subs.keys)))
	}

	entry.AddSubscriber(sub)
	subs.keys[key] = struct{}{}
	Logger.Debugf("session %s subscribed to %s", id, key)
	return nil
}

// Unsubscribe removes the subscription of a session on key.
//
// Thread-safety: This method is thread-safe. It takes the bucket lock of key in exclusive mode.
func (r *Registry) Unsubscribe(sessionID, key string) error {
	lease := r.locks.Acquire([]string{key}, lockmgr.ModeWrite)
	defer lease.Release()

	notSubscribed := store.NewError(store.RetCNotSubscribed, fmt.Sprintf("session %s is not subscribed to %q", sessionID, key))

	subs, ok := r.sessions.Load(sessionID)
	if !ok {
		return notSubscribed
	}

	subs.mu.Lock()
	defer subs.mu.Unlock()

	if _, ok := subs.keys[key]; !ok {
		return notSubscribed
	}
	delete(subs.keys, key)

	if entry := r.table.Entry(key); entry != nil {
		entry.RemoveSubscriber(sessionID)
	}
	Logger.Debugf("session %s unsubscribed from %s", sessionID, key)
	return nil
}

// PurgeSession removes every subscription of a session.
// Unknown sessions and sessions without subscriptions are a no-op.
//
// Thread-safety: This method is thread-safe. It must not be called while holding table locks.
func (r *Registry) PurgeSession(sessionID string) {
	subs, ok := r.sessions.LoadAndDelete(sessionID)
	if !ok {
		return
	}

	subs.mu.Lock()
	subs.purged = true
	keys := make([]string, 0, len(subs.keys))
	for key := range subs.keys {
		keys = append(keys, key)
	}
	subs.keys = nil
	subs.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	// one lease for all keys, buckets are locked in ascending order
	lease := r.locks.Acquire(keys, lockmgr.ModeWrite)
	defer lease.Release()

	for _, key := range keys {
		if entry := r.table.Entry(key); entry != nil {
			entry.RemoveSubscriber(sessionID)
		}
	}
	Logger.Debugf("purged %d subscriptions of session %s", len(keys), sessionID)
}

// Count returns the number of subscriptions of a session
func (r *Registry) Count(sessionID string) int {
	subs, ok := r.sessions.Load(sessionID)
	if !ok {
		return 0
	}
	subs.mu.Lock()
	defer subs.mu.Unlock()
	return len(subs.keys)
}

// --------------------------------------------------------------------------
// Mutation Hooks (caller holds the bucket lock of the entry in exclusive mode)
// --------------------------------------------------------------------------

// Notify hands n to every subscriber of entry. Delivery is asynchronous.
// A subscriber that does not accept the notification loses its subscription.
func (r *Registry) Notify(entry *db.Entry, n db.Notification) {
	for _, sub := range entry.Subscribers() {
		if sub.Notify(n) {
			r.metrics.Notifications.Inc()
			continue
		}

		id := sub.SubscriberID()
		Logger.Warningf("dropping subscription of session %s on %s: subscriber is gone", id, entry.Key)
		entry.RemoveSubscriber(id)
		r.forget(id, entry.Key)
		r.metrics.DroppedSubscriptions.Inc()
	}
}

// Detach ends all subscriptions of a removed entry
func (r *Registry) Detach(entry *db.Entry) {
	for _, sub := range entry.Subscribers() {
		id := sub.SubscriberID()
		entry.RemoveSubscriber(id)
		r.forget(id, entry.Key)
	}
}

// forget removes key from the index of a session
func (r *Registry) forget(sessionID, key string) {
	subs, ok := r.sessions.Load(sessionID)
	if !ok {
		return
	}
	subs.mu.Lock()
	delete(subs.keys, key)
	subs.mu.Unlock()
}
