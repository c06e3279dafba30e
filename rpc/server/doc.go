// Package server implements the session server.
//
// A SessionServer accepts clients from a transport.IServerTransport and serves
// each of them in its own session: subscribe and unsubscribe requests are
// executed against a store.IStore, and the notifications of the session's
// subscriptions are written to the client's notification stream by a
// pubsub.Mailbox.
//
// Sessions end when the client disconnects, closes its streams or a
// notification cannot be written. DisconnectAll ends every session (the
// serve command calls it on SIGUSR1). When a session ends, all of its
// subscriptions are removed.
package server
