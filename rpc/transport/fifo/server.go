package fifo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/ValentinKolb/kvs/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

const defaultTimeout = 10 * time.Second

// serverTransport accepts sessions through a register pipe.
// Clients write a connect request naming their request, response and
// notification pipes; the server opens them in this order.
type serverTransport struct {
	config   common.ServerConfig
	path     string
	timeout  time.Duration
	register *os.File

	ready     chan *transport.ServerConn
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewFIFOServerTransport creates a new named pipe server transport
func NewFIFOServerTransport() transport.IServerTransport {
	return &serverTransport{
		ready: make(chan *transport.ServerConn),
		done:  make(chan struct{}),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) GetName() string {
	return common.TransportFIFO
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	t.config = config
	t.path = config.Transport.Endpoint
	t.timeout = defaultTimeout
	if config.TimeoutSecond > 0 {
		t.timeout = time.Duration(config.TimeoutSecond) * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("failed to create register directory: %v", err)
	}
	if err := makeFIFO(t.path); err != nil {
		return err
	}

	// opened for reading and writing, so the open does not block and reads
	// never see EOF when a client closes its end
	register, err := os.OpenFile(t.path, os.O_RDWR, 0)
	if err != nil {
		_ = os.Remove(t.path)
		return fmt.Errorf("failed to open register pipe: %v", err)
	}
	t.register = register

	Logger.Infof("Starting fifo server on %s", t.path)

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
		if t.register != nil {
			err = t.register.Close()
			_ = os.Remove(t.path)
		}
		t.wg.Wait()
	})
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *serverTransport) acceptLoop() {
	defer t.wg.Done()

	for {
		req, err := common.ReadConnectRequest(t.register)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if errors.Is(err, os.ErrClosed) || errors.Is(err, io.EOF) {
				return
			}
			// a malformed request has been consumed, continue with the next one
			Logger.Warningf("Invalid connect request: %v", err)
			continue
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.open(req)
		}()
	}
}

// open opens the pipes of a connect request in the order the client opens them
func (t *serverTransport) open(req common.ConnectRequest) {
	requests, err := openFIFO(req.RequestPath, os.O_RDONLY, t.timeout)
	if err != nil {
		Logger.Warningf("Failed to open request pipe: %v", err)
		return
	}
	responses, err := openFIFO(req.ResponsePath, os.O_WRONLY, t.timeout)
	if err != nil {
		Logger.Warningf("Failed to open response pipe: %v", err)
		_ = requests.Close()
		return
	}
	notifications, err := openFIFO(req.NotificationPath, os.O_WRONLY, t.timeout)
	if err != nil {
		Logger.Warningf("Failed to open notification pipe: %v", err)
		_ = requests.Close()
		_ = responses.Close()
		return
	}

	conn := &transport.ServerConn{
		ClientID:      req.RequestPath,
		Requests:      requests,
		Responses:     responses,
		Notifications: notifications,
	}
	Logger.Debugf("Client %s connected", conn.ClientID)

	select {
	case t.ready <- conn:
	case <-t.done:
		_ = conn.Close()
	}
}
