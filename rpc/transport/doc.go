// Package transport defines how clients reach the session server.
//
// A transport delivers the three streams of a session: requests from the
// client, responses to the client and notifications to the client. The
// session protocol on top of the streams is defined in rpc/common.
//
// Implementations:
//
//   - fifo: named pipes and a register pipe
//   - unix: Unix domain sockets (see base)
//   - tcp: TCP sockets (see base)
package transport
