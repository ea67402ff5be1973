package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"wcommd/internal/codec"
	"wcommd/internal/commissioning"
)

// Server listens on a Unix domain socket and serves newline-delimited
// JSON-RPC 2.0 requests (§6), fanning out CommissioningService
// notifications to every connected client out-of-band on the same
// connection. Grounded on kryptco-kr's socket.AgentListenUnix (remove
// any stale socket file, then net.Listen("unix", path)) generalized
// from HTTP framing to raw newline-delimited JSON, since §6 fixes the
// wire format as one JSON object per line rather than HTTP.
type Server struct {
	handler *Handler
	service *commissioning.CommissioningService
	log     zerolog.Logger

	socketPath string
	socketMode os.FileMode

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer constructs a Server bound to service, listening at
// socketPath once Start is called and applying socketMode as the
// socket file's permission bits (§6's socket_mode).
func NewServer(service *commissioning.CommissioningService, socketPath string, socketMode os.FileMode, log zerolog.Logger) *Server {
	log = log.With().Str("component", "jsonrpc_server").Logger()
	return &Server{
		handler:    NewHandler(service, log),
		service:    service,
		log:        log,
		socketPath: socketPath,
		socketMode: socketMode,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start removes any stale socket file, binds a fresh listener, applies
// socketMode, and begins accepting connections in the background. It
// returns once the listener is bound; Accept runs in its own goroutine
// so Start never blocks the caller.
func (s *Server) Start(ctx context.Context) error {
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("jsonrpc: listen %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, s.socketMode); err != nil {
		listener.Close()
		return fmt.Errorf("jsonrpc: chmod %s: %w", s.socketPath, err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	s.log.Info().Str("socket", s.socketPath).Msg("jsonrpc server listening")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("accept failed")
			continue
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(ctx, conn)
	}
}

// serveConn drives one connection's lifetime: a reader goroutine
// decoding newline-delimited requests and dispatching them through
// Handler, plus a notification-forwarding goroutine subscribed to the
// service's Hub, both writing to the same connection serialized by a
// write mutex (§5's per-session FIFO ordering: a client's own responses
// and any notifications interleave, but writes to one socket are never
// concurrent with each other).
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	session := NewSession()
	sub := s.service.Subscribe()
	defer s.service.Unsubscribe(sub)

	var writeMu sync.Mutex
	writeLine := func(v interface{}) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_, err = conn.Write(append(b, '\n'))
		return err
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.forwardNotifications(connCtx, sub, writeLine)

	log := s.log.With().Str("session", string(session.ID())).Logger()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if werr := writeLine(ErrorResponse(newError(CodeParseError, "invalid json"), nil)); werr != nil {
				return
			}
			continue
		}
		resp := s.safeHandle(connCtx, &req, log)
		if err := writeLine(resp); err != nil {
			log.Debug().Err(err).Msg("write failed, closing connection")
			return
		}
	}
}

// safeHandle recovers a panic from a single request's handling so one
// bad request can't take the whole connection goroutine down with it
// (no panic crosses a goroutine boundary unrecovered at the
// session-handler level); the client sees a -32603 internal error for
// that request instead of a dropped connection.
func (s *Server) safeHandle(ctx context.Context, req *Request, log zerolog.Logger) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("method", req.Method).Msg("recovered panic handling request")
			resp = ErrorResponse(newError(CodeInternalError, "internal error"), req.ID)
		}
	}()
	return s.handler.Handle(ctx, req)
}

// forwardNotifications relays hub events to writeLine until sub's
// channel closes (on Unsubscribe) or ctx is cancelled.
func (s *Server) forwardNotifications(ctx context.Context, sub *commissioning.Subscription, writeLine func(interface{}) error) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-sub.Events:
			if !ok {
				return
			}
			note := notificationFor(n)
			if note == nil {
				continue
			}
			if err := writeLine(note); err != nil {
				return
			}
		}
	}
}

// notificationFor renders a commissioning.Notification as its
// JSON-RPC wire notification (§6).
func notificationFor(n commissioning.Notification) *Notification {
	switch evt := n.(type) {
	case commissioning.ScanStateChanged:
		params := map[string]interface{}{"state": evt.State}
		if len(evt.Networks) > 0 {
			params["networks"] = toWireNetworks(evt.Networks)
		}
		if evt.Message != "" {
			params["message"] = evt.Message
		}
		return NewNotification(evt.Method(), params)
	case commissioning.ConnectionStateChanged:
		params := map[string]interface{}{"state": evt.State}
		if len(evt.SSID) > 0 {
			params["ssid"] = codec.DecodeSSID(evt.SSID)
		}
		if evt.IP != "" {
			params["ip_address"] = evt.IP
		}
		if evt.Kind != "" {
			params["kind"] = evt.Kind
		}
		if evt.Message != "" {
			params["message"] = evt.Message
		}
		return NewNotification(evt.Method(), params)
	default:
		return nil
	}
}

// Stop closes the listener and every open connection, then waits for
// the accept loop and all per-connection goroutines to exit.
func (s *Server) Stop() error {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	return nil
}
