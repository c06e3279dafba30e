package base

import (
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/ValentinKolb/kvs/rpc/transport"
	"github.com/google/uuid"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the endpoint
	Connect(endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector IClientConnector
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IClientTransport {
	return &clientTransport{connector: connector}
}

// maxDialAttempts is the number of attempts to reach the endpoint
const maxDialAttempts = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) GetName() string {
	return t.connector.GetName()
}

func (t *clientTransport) Connect(config common.ClientConfig) (*transport.ClientConn, error) {
	id := config.ClientID
	if id == "" {
		id = uuid.NewString()
	}

	requests, err := t.open(config, roleRequests, id)
	if err != nil {
		return nil, err
	}
	notifications, err := t.open(config, roleNotifications, id)
	if err != nil {
		_ = requests.Close()
		return nil, err
	}

	Logger.Debugf("Connected to %s as %s using %s transport", config.Transport.Endpoint, id, t.connector.GetName())
	return &transport.ClientConn{
		Requests:      requests,
		Responses:     requests,
		Notifications: notifications,
	}, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// open dials the endpoint with exponential backoff and sends the handshake for role
func (t *clientTransport) open(config common.ClientConfig, role byte, id string) (net.Conn, error) {
	var conn net.Conn
	var err error

	// Initial backoff duration in milliseconds
	backoffMs := 50
	for i := 0; i < maxDialAttempts; i++ {
		conn, err = t.connector.Connect(config.Transport.Endpoint)
		if err == nil {
			break
		}
		Logger.Debugf("Dial attempt %d/%d failed: %v", i+1, maxDialAttempts, err)

		// Exponential backoff with a small random jitter (+-10%)
		jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
		time.Sleep(time.Duration(jitter) * time.Millisecond)
		backoffMs *= 2
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s after %d attempts: %v", config.Transport.Endpoint, maxDialAttempts, err)
	}

	if err := t.connector.UpgradeConnection(conn, config); err != nil {
		_ = conn.Close()
		return nil, err
	}

	_ = conn.SetWriteDeadline(time.Now().Add(timeoutOf(int64(config.TimeoutSecond))))
	if err := writeHandshake(conn, role, id); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return conn, nil
}
