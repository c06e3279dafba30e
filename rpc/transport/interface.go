package transport

import (
	"context"
	"errors"
	"io"

	"github.com/ValentinKolb/kvs/rpc/common"
)

// ErrClosed is returned by Accept once the server transport is closed
var ErrClosed = errors.New("transport closed")

// --------------------------------------------------------------------------
// Session Streams
// --------------------------------------------------------------------------

// ServerConn holds the three streams of a connected client on the server side.
// Closing Requests unblocks a pending read on it.
type ServerConn struct {
	// ClientID identifies the client on the transport (pipe path or handshake id)
	ClientID      string
	Requests      io.ReadCloser
	Responses     io.WriteCloser
	Notifications io.WriteCloser
}

// Close closes all streams
func (c *ServerConn) Close() error {
	return closeAll(c.Requests, c.Responses, c.Notifications)
}

// ClientConn holds the three streams of a session on the client side
type ClientConn struct {
	Requests      io.WriteCloser
	Responses     io.ReadCloser
	Notifications io.ReadCloser

	// Cleanup is called after the streams are closed (e.g. to remove pipes)
	Cleanup func()
}

// Close closes all streams and runs the cleanup
func (c *ClientConn) Close() error {
	err := closeAll(c.Requests, c.Responses, c.Notifications)
	if c.Cleanup != nil {
		c.Cleanup()
	}
	return err
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// IServerTransport accepts client sessions
type IServerTransport interface {
	// Listen creates the endpoint and starts accepting clients in the background
	Listen(config common.ServerConfig) error
	// Accept blocks until a client connected, ctx is cancelled or the transport is closed
	Accept(ctx context.Context) (*ServerConn, error)
	// Close stops accepting clients and removes the endpoint
	Close() error
	// GetName returns the name of the transport type (e.g., "fifo", "unix", "tcp")
	GetName() string
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IClientTransport opens the streams of a new session
type IClientTransport interface {
	// Connect performs the transport handshake and returns the session streams
	Connect(config common.ClientConfig) (*ClientConn, error)
	// GetName returns the name of the transport type
	GetName() string
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func closeAll(closers ...io.Closer) error {
	var errs []error
	seen := make(map[io.Closer]bool, len(closers))
	for _, c := range closers {
		if c == nil || seen[c] {
			continue
		}
		seen[c] = true
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
