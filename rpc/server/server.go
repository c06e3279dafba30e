package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ValentinKolb/kvs/lib/db"
	"github.com/ValentinKolb/kvs/lib/pubsub"
	"github.com/ValentinKolb/kvs/lib/store"
	"github.com/ValentinKolb/kvs/lib/telemetry"
	"github.com/ValentinKolb/kvs/rpc/common"
	"github.com/ValentinKolb/kvs/rpc/transport"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// session is a connected client being served
type session struct {
	id      string
	conn    *transport.ServerConn
	mailbox *pubsub.Mailbox
	cancel  context.CancelFunc
}

// SessionServer serves subscription sessions on top of a store.
// At most MaxSessions sessions are served at the same time, further clients
// wait (up to PendingSessions) until a handler is free.
//
// Usage:
//
//	s := server.NewSessionServer(config, st, fifo.NewFIFOServerTransport(), metrics)
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
//
// Thread-safety: All methods are safe for concurrent use. Serve must be called only once.
type SessionServer struct {
	config    common.ServerConfig
	store     store.IStore
	transport transport.IServerTransport
	metrics   *telemetry.Metrics

	sessions *xsync.MapOf[string, *session]
	wg       sync.WaitGroup
}

// NewSessionServer creates a session server. metrics may be nil.
func NewSessionServer(
	config common.ServerConfig,
	st store.IStore,
	t transport.IServerTransport,
	metrics *telemetry.Metrics,
) *SessionServer {
	if config.MaxSessions < 1 {
		config.MaxSessions = 1
	}
	if config.PendingSessions < 1 {
		config.PendingSessions = config.MaxSessions
	}
	if metrics == nil {
		metrics = telemetry.New()
	}

	s := &SessionServer{
		config:    config,
		store:     st,
		transport: t,
		metrics:   metrics,
		sessions:  xsync.NewMapOf[string, *session](),
	}
	if err := metrics.Gauge(`kvs_sessions_active`, func() float64 {
		return float64(s.ActiveSessions())
	}); err != nil {
		Logger.Warningf("%v", err)
	}
	return s
}

// Serve listens on the transport and serves sessions until ctx is cancelled.
// On return all sessions have ended and their subscriptions are removed.
func (s *SessionServer) Serve(ctx context.Context) error {
	if err := s.transport.Listen(s.config); err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	Logger.Infof("Serving sessions over %s on %s", s.transport.GetName(), s.config.Transport.Endpoint)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pending := make(chan *transport.ServerConn, s.config.PendingSessions)
	for i := 0; i < s.config.MaxSessions; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case conn := <-pending:
					s.serve(ctx, conn)
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var err error
	for {
		conn, acceptErr := s.transport.Accept(ctx)
		if acceptErr != nil {
			if !errors.Is(acceptErr, context.Canceled) && !errors.Is(acceptErr, transport.ErrClosed) {
				err = acceptErr
			}
			break
		}
		select {
		case pending <- conn:
		case <-ctx.Done():
			_ = conn.Close()
		}
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	s.DisconnectAll()
	s.wg.Wait()

	// clients that never got a handler
	close(pending)
	for conn := range pending {
		_ = conn.Close()
	}

	if closeErr := s.transport.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	Logger.Infof("Session server stopped")
	return err
}

// DisconnectAll ends every active session.
// The clients see their streams closed and the subscriptions are removed.
func (s *SessionServer) DisconnectAll() {
	s.sessions.Range(func(id string, sess *session) bool {
		Logger.Infof("Disconnecting session %s", id)
		sess.cancel()
		return true
	})
}

// ActiveSessions returns the number of sessions being served
func (s *SessionServer) ActiveSessions() int {
	return s.sessions.Size()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// serve runs one session until the client disconnects, a stream fails or ctx is cancelled
func (s *SessionServer) serve(ctx context.Context, conn *transport.ServerConn) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := &session{
		id:     uuid.NewString(),
		conn:   conn,
		cancel: cancel,
	}
	sess.mailbox = pubsub.NewMailbox(sess.id, s.deliverFunc(conn.Notifications), func(id string, err error) {
		Logger.Warningf("Ending session %s: notification failed: %v", id, err)
		cancel()
	})

	// unblocks the pending request read
	stop := context.AfterFunc(sctx, func() { _ = conn.Requests.Close() })
	defer stop()

	s.sessions.Store(sess.id, sess)
	s.metrics.Sessions.Inc()
	Logger.Infof("Session %s started (client %s)", sess.id, conn.ClientID)

	defer func() {
		s.sessions.Delete(sess.id)
		if err := s.store.PurgeSession(sess.id); err != nil && !errors.Is(err, store.ErrClosed) {
			Logger.Warningf("Failed to purge session %s: %v", sess.id, err)
		}
		sess.mailbox.Close()
		_ = conn.Close()
		Logger.Infof("Session %s ended", sess.id)
	}()

	if err := common.WriteResponse(conn.Responses, common.Response{Op: common.OpConnect, Status: common.StatusOK}); err != nil {
		Logger.Warningf("Session %s: failed to confirm connect: %v", sess.id, err)
		return
	}

	for {
		req, err := common.ReadRequest(conn.Requests)
		if err != nil {
			if sctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				Logger.Warningf("Session %s: failed to read request: %v", sess.id, err)
			}
			return
		}

		status := s.handle(sess, req)
		if err := common.WriteResponse(conn.Responses, common.Response{Op: req.Op, Status: status}); err != nil {
			Logger.Warningf("Session %s: failed to write response: %v", sess.id, err)
			return
		}
		if req.Op == common.OpDisconnect {
			return
		}
	}
}

// handle executes a request and returns the status of its response
func (s *SessionServer) handle(sess *session, req common.Request) common.Status {
	var err error
	switch req.Op {
	case common.OpSubscribe:
		err = s.store.Subscribe(sess.mailbox, req.Key)
	case common.OpUnsubscribe:
		err = s.store.Unsubscribe(sess.id, req.Key)
	case common.OpDisconnect:
		return common.StatusOK
	default:
		err = fmt.Errorf("unexpected request %s", req.Op)
	}

	if err != nil {
		Logger.Debugf("Session %s: %s %q failed: %v", sess.id, req.Op, req.Key, err)
		return common.StatusFailed
	}
	Logger.Debugf("Session %s: %s %q", sess.id, req.Op, req.Key)
	return common.StatusOK
}

// deliverFunc writes notifications to w, bounded by the configured timeout
// if the stream supports write deadlines
func (s *SessionServer) deliverFunc(w io.Writer) pubsub.DeliverFunc {
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second
	dl, hasDeadline := w.(interface{ SetWriteDeadline(time.Time) error })

	return func(n db.Notification) error {
		if hasDeadline && timeout > 0 {
			if err := dl.SetWriteDeadline(time.Now().Add(timeout)); err != nil && !errors.Is(err, os.ErrNoDeadline) {
				return err
			}
		}
		return common.WriteNotification(w, n)
	}
}
