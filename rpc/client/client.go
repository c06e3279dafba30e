package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/ValentinKolb/kvs/rpc/transport"
)

// notificationBuffer is the number of notifications buffered for the consumer
const notificationBuffer = 64

// Client is a subscription session with a server.
// Notifications arrive on the channel returned by Notifications until the
// session ends.
//
// Thread-safety: Requests are serialized, all methods are safe for concurrent use.
type Client struct {
	conn          *transport.ClientConn
	mu            sync.Mutex
	notifications chan db.Notification
	done          chan struct{}
	closeOnce     sync.Once
	closeErr      error
}

// Connect opens a session over the given transport and waits until the
// server serves it.
func Connect(config common.ClientConfig, t transport.IClientTransport) (*Client, error) {
	conn, err := t.Connect(config)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(config.TimeoutSecond) * time.Second
	if err := readConnectResponse(conn.Responses, timeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		conn:          conn,
		notifications: make(chan db.Notification, notificationBuffer),
		done:          make(chan struct{}),
	}
	go c.readNotifications()

	Logger.Debugf("Connected over %s to %s", t.GetName(), config.Transport.Endpoint)
	return c, nil
}

// Notifications returns the channel of received notifications.
// It is closed when the session ended.
func (c *Client) Notifications() <-chan db.Notification {
	return c.notifications
}

// Subscribe subscribes the session to key.
// Returns an error wrapping ErrRejected if the key does not exist or the
// session holds the maximum number of subscriptions.
func (c *Client) Subscribe(key string) error {
	return c.invoke(common.Request{Op: common.OpSubscribe, Key: key})
}

// Unsubscribe removes the subscription on key
func (c *Client) Unsubscribe(key string) error {
	return c.invoke(common.Request{Op: common.OpUnsubscribe, Key: key})
}

// Disconnect ends the session and releases the streams
func (c *Client) Disconnect() error {
	err := c.invoke(common.Request{Op: common.OpDisconnect})
	if closeErr := c.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Close releases the streams without a disconnect request.
// The server notices the closed streams and ends the session.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *Client) invoke(req common.Request) error {
	if len(req.Key) > db.MaxStringSize {
		return fmt.Errorf("key exceeds %d bytes", db.MaxStringSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return errors.New("client is closed")
	default:
	}
	return invokeRequest(c.conn.Requests, c.conn.Responses, req)
}

func (c *Client) readNotifications() {
	defer close(c.notifications)

	for {
		n, err := common.ReadNotification(c.conn.Notifications)
		if err != nil {
			select {
			case <-c.done:
			default:
				if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
					Logger.Warningf("Failed to read notification: %v", err)
				}
			}
			return
		}
		select {
		case c.notifications <- n:
		case <-c.done:
			return
		}
	}
}
