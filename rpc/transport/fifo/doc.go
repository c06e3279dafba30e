// Package fifo provides the named pipe transport for sessions.
//
// The server creates a register pipe at the configured endpoint. A client
// creates three pipes of its own (requests, responses, notifications), writes a
// connect request with their paths to the register pipe and opens them. The
// server opens the same pipes in the same order. Pipe paths are limited to
// common.PathSize bytes.
package fifo
