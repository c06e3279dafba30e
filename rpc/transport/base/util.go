package base

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ValentinKolb/kvs/rpc/common"
)

const (
	// roleRequests marks the connection carrying requests and responses
	roleRequests byte = 'r'
	// roleNotifications marks the connection carrying notifications
	roleNotifications byte = 'n'

	// handshakeSize is the size of a handshake: opcode, role and client id
	handshakeSize = 2 + common.PathSize

	defaultHandshakeTimeout = 10 * time.Second
)

// writeHandshake writes the handshake of a connection with the format:
// - 1 byte: common.OpConnect
// - 1 byte: role (roleRequests or roleNotifications)
// - 40 bytes: client id (NUL padded)
func writeHandshake(conn net.Conn, role byte, clientID string) error {
	if len(clientID) == 0 || len(clientID) > common.PathSize {
		return fmt.Errorf("client id must have 1 to %d bytes, got %q", common.PathSize, clientID)
	}
	buf := make([]byte, handshakeSize)
	buf[0] = byte(common.OpConnect)
	buf[1] = role
	copy(buf[2:], clientID)

	_, err := conn.Write(buf)
	return err
}

// readHandshake reads a handshake and returns the role and the client id
func readHandshake(conn net.Conn) (byte, string, error) {
	buf := make([]byte, handshakeSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return 0, "", err
	}
	if common.OpCode(buf[0]) != common.OpConnect {
		return 0, "", fmt.Errorf("expected %s handshake, got %s", common.OpConnect, common.OpCode(buf[0]))
	}
	role := buf[1]
	if role != roleRequests && role != roleNotifications {
		return 0, "", fmt.Errorf("invalid role %q", role)
	}

	id := buf[2:]
	if i := bytes.IndexByte(id, 0); i >= 0 {
		id = id[:i]
	}
	if len(id) == 0 {
		return 0, "", fmt.Errorf("empty client id")
	}
	return role, string(id), nil
}

func timeoutOf(seconds int64) time.Duration {
	if seconds <= 0 {
		return defaultHandshakeTimeout
	}
	return time.Duration(seconds) * time.Second
}
