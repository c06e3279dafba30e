// Package unix provides the Unix domain socket transport for sessions.
// The socket file is removed and recreated when the server starts listening.
package unix
