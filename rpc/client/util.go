package client

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// ErrRejected is returned when the server answered a request with a failure status
var ErrRejected = errors.New("request rejected by server")

// invokeRequest sends a request and waits for its response.
// It also checks that the response answers the request (same opcode).
func invokeRequest(w io.Writer, r io.Reader, req common.Request) error {
	if err := common.WriteRequest(w, req); err != nil {
		return fmt.Errorf("failed to send %s request: %w", req.Op, err)
	}
	resp, err := common.ReadResponse(r)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", req.Op, err)
	}
	if resp.Op != req.Op {
		return fmt.Errorf("unexpected response %s, expected %s", resp.Op, req.Op)
	}
	if resp.Status != common.StatusOK {
		return fmt.Errorf("%s %q: %w", req.Op, req.Key, ErrRejected)
	}
	return nil
}

// readConnectResponse waits for the server to start serving the session.
// The wait is bounded by timeout if the stream supports read deadlines.
func readConnectResponse(r io.Reader, timeout time.Duration) error {
	dl, ok := r.(interface{ SetReadDeadline(time.Time) error })
	if ok && timeout > 0 {
		if err := dl.SetReadDeadline(time.Now().Add(timeout)); err == nil {
			defer func() { _ = dl.SetReadDeadline(time.Time{}) }()
		}
	}

	resp, err := common.ReadResponse(r)
	if err != nil {
		return fmt.Errorf("failed to read connect response: %w", err)
	}
	if resp.Op != common.OpConnect || resp.Status != common.StatusOK {
		return fmt.Errorf("connect refused (%s, status %d)", resp.Op, resp.Status)
	}
	return nil
}
