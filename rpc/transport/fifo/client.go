package fifo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/ValentinKolb/kvs/rpc/transport"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// clientTransport creates the pipes of a session and registers them with the server
type clientTransport struct{}

// NewFIFOClientTransport creates a new named pipe client transport
func NewFIFOClientTransport() transport.IClientTransport {
	return &clientTransport{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) GetName() string {
	return common.TransportFIFO
}

func (t *clientTransport) Connect(config common.ClientConfig) (*transport.ClientConn, error) {
	id := config.ClientID
	if id == "" {
		id = uuid.NewString()[:8]
	}
	dir := config.FIFODir
	if dir == "" {
		dir = os.TempDir()
	}
	timeout := defaultTimeout
	if config.TimeoutSecond > 0 {
		timeout = time.Duration(config.TimeoutSecond) * time.Second
	}

	req := common.ConnectRequest{
		RequestPath:      filepath.Join(dir, "req"+id),
		ResponsePath:     filepath.Join(dir, "resp"+id),
		NotificationPath: filepath.Join(dir, "notif"+id),
	}
	paths := []string{req.RequestPath, req.ResponsePath, req.NotificationPath}
	cleanup := func() {
		for _, p := range paths {
			_ = os.Remove(p)
		}
	}

	for _, p := range paths {
		if len(p) > common.PathSize {
			return nil, fmt.Errorf("pipe path %s exceeds %d bytes", p, common.PathSize)
		}
		if err := makeFIFO(p); err != nil {
			cleanup()
			return nil, err
		}
	}

	// non-blocking, so a missing server fails instead of waiting for a reader
	register, err := os.OpenFile(config.Transport.Endpoint, os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("server not reachable at %s: %v", config.Transport.Endpoint, err)
	}
	err = common.WriteConnectRequest(register, req)
	_ = register.Close()
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("failed to send connect request: %v", err)
	}

	requests, err := openFIFO(req.RequestPath, os.O_WRONLY, timeout)
	if err != nil {
		cleanup()
		return nil, err
	}
	responses, err := openFIFO(req.ResponsePath, os.O_RDONLY, timeout)
	if err != nil {
		_ = requests.Close()
		cleanup()
		return nil, err
	}
	notifications, err := openFIFO(req.NotificationPath, os.O_RDONLY, timeout)
	if err != nil {
		_ = requests.Close()
		_ = responses.Close()
		cleanup()
		return nil, err
	}

	return &transport.ClientConn{
		Requests:      requests,
		Responses:     responses,
		Notifications: notifications,
		Cleanup:       cleanup,
	}, nil
}
