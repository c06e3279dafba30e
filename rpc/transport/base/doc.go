// Package base implements the session transport on top of stream sockets,
// independent of the specific network protocol (TCP, Unix sockets). Protocol
// specific behaviour is injected through IServerConnector and IClientConnector.
//
// A session uses two connections. The first carries requests and responses,
// the second carries notifications, so a notification can never be read in
// place of a response. Each connection starts with a handshake:
//
//	op[1] = OpConnect   role[1] = 'r' | 'n'   client id[40]
//
// The server pairs both connections by client id and hands the session out
// through Accept once both arrived. A connection whose partner does not arrive
// within the timeout is closed.
//
// Thread Safety:
//
//	All public methods are thread-safe. The server reads every handshake in its
//	own goroutine and pairs connections in a concurrent map.
package base
