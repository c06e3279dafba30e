// Package tcp provides the TCP socket transport for sessions.
// It plugs a TCP connector into the base transport and applies the TCP
// options of the transport configuration (TCP_NODELAY, keep-alive) to every connection.
package tcp
