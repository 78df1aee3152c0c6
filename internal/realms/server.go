package realms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/fastprodman/realmpay/internal/repos/realminfo"
)

// helloTimeout bounds how long a fresh connection may stay silent
// before identifying itself.
const helloTimeout = 10 * time.Second

// link is one live realm connection. Writes are serialized with a
// mutex so concurrent requests cannot interleave frames.
type link struct {
	conn net.Conn
	mu   sync.Mutex
}

func (l *link) SendRequest(corrID uint32, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return writeFrame(l.conn, frame{op: opRequest, corrID: corrID, payload: payload})
}

// Server accepts realm connections, runs the hello handshake, and
// feeds response frames back into the router.
type Server struct {
	addr   string
	ln     net.Listener
	reg    *Registry
	router *Router
	info   realminfo.RealmInfo

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool

	// OnOnline, when set, runs on its own goroutine after a realm
	// finishes registering. Used to push initial configuration.
	OnOnline func(realmID int)
}

func NewServer(addr string, reg *Registry, router *Router, info realminfo.RealmInfo) *Server {
	return &Server{addr: addr, reg: reg, router: router, info: info}
}

// Listen binds the realm port. Serve calls it when it hasn't been
// called; it exists so callers can learn the bound address first.
func (s *Server) Listen(ctx context.Context) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	s.ln = ln

	return nil
}

// Addr reports the bound listener address. Only valid after Listen.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}

	return s.ln.Addr()
}

// Serve accepts realm connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		err := s.Listen(ctx)
		if err != nil {
			return err
		}
	}

	ln := s.ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
		s.closeConns()
	}()

	slog.Info("realm listener up", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("accept realm connection: %w", err)
		}

		go s.handle(ctx, conn)
	}
}

// track adds an established connection to the set closeConns drains on
// shutdown. Connections accepted after the drain are refused.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	if s.conns == nil {
		s.conns = make(map[net.Conn]struct{})
	}

	s.conns[conn] = struct{}{}

	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn)
}

// closeConns tears down every live realm connection so their read
// loops unblock during shutdown.
func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	for conn := range s.conns {
		_ = conn.Close()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if !s.track(conn) {
		return
	}
	defer s.untrack(conn)

	remote := conn.RemoteAddr().String()

	realmID, err := s.handshake(ctx, conn)
	if err != nil {
		slog.Warn("realm handshake failed", "remote", remote, "error", err)

		return
	}

	info, err := s.info.Get(ctx, realmID)
	if err != nil {
		slog.Warn("rejecting unregistered realm",
			"remote", remote, "realm_id", realmID, "error", err)

		return
	}

	l := &link{conn: conn}
	s.reg.Register(realmID, info.Name, info.RewardItemID, l)
	defer s.reg.Unregister(realmID)

	slog.Info("realm online", "realm_id", realmID, "name", info.Name, "remote", remote)
	defer slog.Info("realm offline", "realm_id", realmID, "name", info.Name)

	if s.OnOnline != nil {
		go s.OnOnline(realmID)
	}

	s.readLoop(conn, realmID)
}

func (s *Server) handshake(ctx context.Context, conn net.Conn) (int, error) {
	deadline := time.Now().Add(helloTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	err := conn.SetReadDeadline(deadline)
	if err != nil {
		return 0, fmt.Errorf("set hello deadline: %w", err)
	}

	f, err := readFrame(conn)
	if err != nil {
		return 0, err
	}

	if f.op != opHello {
		return 0, fmt.Errorf("expected hello frame, got opcode 0x%02x", f.op)
	}

	var hello helloBody

	err = json.Unmarshal(f.payload, &hello)
	if err != nil {
		return 0, fmt.Errorf("decode hello: %w", err)
	}

	if hello.RealmID < 1 || hello.RealmID > 127 {
		return 0, fmt.Errorf("realm id %d out of range", hello.RealmID)
	}

	err = conn.SetReadDeadline(time.Time{})
	if err != nil {
		return 0, fmt.Errorf("clear read deadline: %w", err)
	}

	return hello.RealmID, nil
}

func (s *Server) readLoop(conn net.Conn, realmID int) {
	for {
		f, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				slog.Warn("realm read failed", "realm_id", realmID, "error", err)
			}

			return
		}

		switch f.op {
		case opResponse:
			s.router.dispatch(f.corrID, f.payload)
		default:
			slog.Warn("unexpected realm frame",
				"realm_id", realmID, "opcode", fmt.Sprintf("0x%02x", f.op))
		}
	}
}
