package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/ValentinKolb/kvs/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// halfSession collects the two connections of a client until both arrived
type halfSession struct {
	requests      net.Conn
	notifications net.Conn
	timer         *time.Timer
}

func (h *halfSession) close() {
	if h.requests != nil {
		_ = h.requests.Close()
	}
	if h.notifications != nil {
		_ = h.notifications.Close()
	}
}

// serverTransport implements the core server transport functionality.
// Every session uses two connections, which are paired by the client id of
// their handshakes.
type serverTransport struct {
	connector IServerConnector
	config    common.ServerConfig
	listener  net.Listener
	timeout   time.Duration

	halves    *xsync.MapOf[string, *halfSession]
	ready     chan *transport.ServerConn
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport
func NewBaseServerTransport(connector IServerConnector) transport.IServerTransport {
	return &serverTransport{
		connector: connector,
		halves:    xsync.NewMapOf[string, *halfSession](),
		ready:     make(chan *transport.ServerConn),
		done:      make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) GetName() string {
	return t.connector.GetName()
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	t.config = config
	t.timeout = timeoutOf(config.TimeoutSecond)

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	t.listener = listener

	Logger.Infof("Starting %s server on %s", t.connector.GetName(), listener.Addr())

	t.wg.Add(1)
	go t.acceptLoop()
	return nil
}

func (t *serverTransport) Accept(ctx context.Context) (*transport.ServerConn, error) {
	select {
	case conn := <-t.ready:
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return nil, transport.ErrClosed
	}
}

func (t *serverTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		if t.listener != nil {
			err = t.listener.Close()
		}
		t.wg.Wait()

		t.halves.Range(func(id string, h *halfSession) bool {
			h.timer.Stop()
			h.close()
			t.halves.Delete(id)
			return true
		})
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *serverTransport) acceptLoop() {
	defer t.wg.Done()

	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection: %v", err)
		}

		// the handshake is read in its own goroutine, a slow client must not stall accepting
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.handleConnection(conn)
		}()
	}
}

// handleConnection reads the handshake of conn and pairs it with the other connection of its client
func (t *serverTransport) handleConnection(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(t.timeout))
	role, id, err := readHandshake(conn)
	_ = conn.SetReadDeadline(time.Time{})
	if err != nil {
		Logger.Warningf("Invalid handshake from %s: %v", conn.RemoteAddr(), err)
		_ = conn.Close()
		return
	}

	var complete *transport.ServerConn
	t.halves.Compute(id, func(h *halfSession, loaded bool) (*halfSession, bool) {
		if !loaded {
			h = &halfSession{}
			h.timer = time.AfterFunc(t.timeout, func() { t.expire(id, h) })
		}

		slot := &h.requests
		if role == roleNotifications {
			slot = &h.notifications
		}
		if *slot != nil {
			Logger.Warningf("Duplicate connection for client %s", id)
			_ = conn.Close()
			return h, false
		}
		*slot = conn

		if h.requests == nil || h.notifications == nil {
			return h, false
		}
		h.timer.Stop()
		complete = &transport.ServerConn{
			ClientID:      id,
			Requests:      h.requests,
			Responses:     h.requests,
			Notifications: h.notifications,
		}
		return h, true
	})

	if complete == nil {
		return
	}

	Logger.Debugf("Client %s connected", id)
	select {
	case t.ready <- complete:
	case <-t.done:
		_ = complete.Close()
	}
}

// expire drops the half session h of id if it is still waiting for its second connection
func (t *serverTransport) expire(id string, h *halfSession) {
	t.halves.Compute(id, func(cur *halfSession, loaded bool) (*halfSession, bool) {
		if loaded && cur == h {
			Logger.Warningf("Client %s did not open its second connection in time", id)
			cur.close()
			return cur, true
		}
		return cur, !loaded
	})
}
