// Package rpc provides the session layer of kvs: long-lived client sessions
// that subscribe to keys and receive a notification for every change.
//
// The package is organized into several subpackages:
//
//   - common: the binary session protocol, configuration structures and logging.
//
//   - transport: the streams of a session with pluggable implementations
//     (named pipes, Unix sockets, TCP).
//
//   - server: the session server executing subscribe and unsubscribe requests
//     against a store and delivering notifications.
//
//   - client: the client side of a session.
//
//   - admin: an HTTP endpoint for health, metrics and inspection.
package rpc
