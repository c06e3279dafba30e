// Package pubsub implements key subscriptions of client sessions.
//
// Core Functionality:
//   - Registry: subscribe, unsubscribe and purge of sessions, plus the Notify and
//     Detach hooks the engine calls while it holds the bucket lock of a mutated entry
//   - Mailbox: the db.Subscriber of a session, delivering notifications
//     asynchronously in order on its own goroutine
//
// Lock Order:
//
//	bucket locks (through lockmgr) -> per-session index mutex
//
//	Subscribe and Unsubscribe take the bucket lock of the key. Notify and Detach
//	run under the bucket lock taken by the mutating operation. PurgeSession reads
//	and clears the session index first and only then locks the buckets of the
//	collected keys in one ascending lease.
//
// Delivery Semantics:
//
//	Notifications are fire-and-forget. A mutation enqueues and returns. A
//	subscriber whose mailbox is closed or failed rejects the notification and
//	loses the subscription. A delivery error is logged, and the FailureFunc of
//	the mailbox (normally: tear the session down) is invoked once.
package pubsub
