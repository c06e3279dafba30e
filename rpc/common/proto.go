package common

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ValentinKolb/kvs/lib/db"
)

// --------------------------------------------------------------------------
// Session Protocol Constants
// --------------------------------------------------------------------------

const (
	// KeyFieldSize is the size of a NUL padded key or value field on the wire
	KeyFieldSize = db.MaxStringSize + 1

	// PathSize is the size of a NUL padded pipe path in a connect request
	PathSize = 40

	// ConnectRequestSize is the size of an encoded ConnectRequest
	ConnectRequestSize = 1 + 3*PathSize

	// NotificationSize is the size of an encoded notification
	NotificationSize = 2 * KeyFieldSize
)

// OpCode identifies a session request. Responses echo the opcode of their request.
type OpCode uint8

const (
	OpConnect     OpCode = 1
	OpDisconnect  OpCode = 2
	OpSubscribe   OpCode = 3
	OpUnsubscribe OpCode = 4
)

// String returns the string representation of an OpCode.
func (o OpCode) String() string {
	switch o {
	case OpConnect:
		return "connect"
	case OpDisconnect:
		return "disconnect"
	case OpSubscribe:
		return "subscribe"
	case OpUnsubscribe:
		return "unsubscribe"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(o))
	}
}

// Status is the result byte of a response
type Status uint8

const (
	StatusOK     Status = 0
	StatusFailed Status = 1
)

// --------------------------------------------------------------------------
// Message Structures
// --------------------------------------------------------------------------

// Request is a request sent by a client on its request channel.
// Key is only used by subscribe and unsubscribe.
type Request struct {
	Op  OpCode
	Key string
}

// Response answers a request on the response channel
type Response struct {
	Op     OpCode
	Status Status
}

// ConnectRequest is sent on the register pipe of the FIFO transport and names
// the three pipes of the new session
type ConnectRequest struct {
	RequestPath      string
	ResponsePath     string
	NotificationPath string
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// WriteRequest writes a request. Keys longer than db.MaxStringSize are rejected.
func WriteRequest(w io.Writer, req Request) error {
	switch req.Op {
	case OpSubscribe, OpUnsubscribe:
		buf := make([]byte, 1+KeyFieldSize)
		buf[0] = byte(req.Op)
		if err := putField(buf[1:], req.Key); err != nil {
			return err
		}
		return writeAll(w, buf)
	default:
		return writeAll(w, []byte{byte(req.Op)})
	}
}

// ReadRequest reads a request. Unknown opcodes are returned without a key,
// the caller answers them with StatusFailed.
func ReadRequest(r io.Reader) (Request, error) {
	var op [1]byte
	if _, err := io.ReadFull(r, op[:]); err != nil {
		return Request{}, err
	}

	req := Request{Op: OpCode(op[0])}
	if req.Op == OpSubscribe || req.Op == OpUnsubscribe {
		field := make([]byte, KeyFieldSize)
		if _, err := io.ReadFull(r, field); err != nil {
			return Request{}, unexpected(err)
		}
		req.Key = getField(field)
	}
	return req, nil
}

// WriteResponse writes a response
func WriteResponse(w io.Writer, resp Response) error {
	return writeAll(w, []byte{byte(resp.Op), byte(resp.Status)})
}

// ReadResponse reads a response
func ReadResponse(r io.Reader) (Response, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Response{}, err
	}
	return Response{Op: OpCode(buf[0]), Status: Status(buf[1])}, nil
}

// WriteNotification writes the key and the new value (or db.DeletedMarker) of a mutation
func WriteNotification(w io.Writer, n db.Notification) error {
	buf := make([]byte, NotificationSize)
	if err := putField(buf[:KeyFieldSize], n.Key); err != nil {
		return err
	}
	if err := putField(buf[KeyFieldSize:], n.Value); err != nil {
		return err
	}
	return writeAll(w, buf)
}

// ReadNotification reads a notification. Deleted is set if the value is db.DeletedMarker.
func ReadNotification(r io.Reader) (db.Notification, error) {
	buf := make([]byte, NotificationSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return db.Notification{}, err
	}
	n := db.Notification{Key: getField(buf[:KeyFieldSize]), Value: getField(buf[KeyFieldSize:])}
	n.Deleted = n.Value == db.DeletedMarker
	return n, nil
}

// WriteConnectRequest writes a connect request
func WriteConnectRequest(w io.Writer, req ConnectRequest) error {
	buf := make([]byte, ConnectRequestSize)
	buf[0] = byte(OpConnect)
	for i, path := range []string{req.RequestPath, req.ResponsePath, req.NotificationPath} {
		if err := putField(buf[1+i*PathSize:1+(i+1)*PathSize], path); err != nil {
			return err
		}
	}
	return writeAll(w, buf)
}

// ReadConnectRequest reads a connect request
func ReadConnectRequest(r io.Reader) (ConnectRequest, error) {
	buf := make([]byte, ConnectRequestSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ConnectRequest{}, err
	}
	if OpCode(buf[0]) != OpConnect {
		return ConnectRequest{}, fmt.Errorf("expected %s request, got %s", OpConnect, OpCode(buf[0]))
	}
	return ConnectRequest{
		RequestPath:      getField(buf[1 : 1+PathSize]),
		ResponsePath:     getField(buf[1+PathSize : 1+2*PathSize]),
		NotificationPath: getField(buf[1+2*PathSize:]),
	}, nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// putField copies s into a NUL padded field. Paths fill the whole field,
// keys and values keep at least one terminating NUL.
func putField(field []byte, s string) error {
	limit := len(field)
	if limit == KeyFieldSize {
		limit--
	}
	if len(s) > limit {
		return fmt.Errorf("%q exceeds %d bytes", s, limit)
	}
	n := copy(field, s)
	clear(field[n:])
	return nil
}

func getField(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

func writeAll(w io.Writer, buf []byte) error {
	_, err := w.Write(buf)
	return err
}

func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
