package index

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rudransh-shrivastava/p2p-ci/internal/logger"
	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
	"github.com/sirupsen/logrus"
)

type Server struct {
	config   Config
	index    *Index
	listener net.Listener
	logger   *logrus.Logger
	slots    chan struct{}
	wg       sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

func NewServer(cfg Config) (*Server, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", cfg.Addr, err)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewLogger()
	}

	ix := cfg.Index
	if ix == nil {
		ix = NewIndex()
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}

	return &Server{
		config:   cfg,
		index:    ix,
		listener: ln,
		logger:   log,
		slots:    make(chan struct{}, maxConns),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Index() *Index {
	return s.index
}

// Start accepts peer sessions until ctx is done or the listener is closed.
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("addr", s.Addr()).Info("Index server started")

	stop := context.AfterFunc(ctx, func() {
		_ = s.listener.Close()
	})
	defer stop()

	for {
		select {
		case s.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		conn, err := s.listener.Accept()
		if err != nil {
			<-s.slots
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.WithError(err).Error("Failed to accept connection")
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			<-s.slots
			return nil
		}
		go func() {
			defer s.wg.Done()
			defer func() { <-s.slots }()
			s.handleConn(conn)
		}()
	}
}

// Shutdown stops accepting, drops live sessions and waits for their workers.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down index server")

	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	s.mu.Lock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// track registers conn and its worker. It reports false once Shutdown has begun.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) handleConn(conn net.Conn) {
	sess := &session{
		conn:  conn,
		br:    bufio.NewReader(conn),
		index: s.index,
		log: s.logger.WithFields(logrus.Fields{
			"session": uuid.NewString(),
			"remote":  conn.RemoteAddr().String(),
		}),
	}

	sess.log.Info("Peer connected")
	defer func() {
		sess.release()
		_ = conn.Close()
		s.untrack(conn)
		sess.log.Info("Peer disconnected")
	}()

	sess.serve()
}

// session is the request loop for one peer connection.
type session struct {
	conn  net.Conn
	br    *bufio.Reader
	index *Index
	log   *logrus.Entry
	peer  *Peer
}

func (s *session) serve() {
	for {
		req, err := protocol.ReadRequest(s.br)
		if protocol.IsTransport(err) {
			s.log.WithError(err).Debug("Session ended")
			return
		}

		if err == nil && req.Command == protocol.CmdExit && req.Version == protocol.Version {
			s.log.Info("Peer sent EXIT")
			return
		}

		var records []protocol.Record
		if err == nil {
			records, err = s.dispatch(req)
		}
		if err != nil {
			s.log.WithError(err).Warn("Rejected request")
		}

		res := protocol.NewIndexResponse(protocol.StatusFor(err), records...)
		if err := protocol.Encode(s.conn, res); err != nil {
			s.log.WithError(err).Debug("Failed to send response")
			return
		}
	}
}

func (s *session) dispatch(req *protocol.Request) ([]protocol.Record, error) {
	if req.Version != protocol.Version {
		return nil, fmt.Errorf("%w: %q", protocol.ErrVersionMismatch, req.Version)
	}

	if s.peer == nil && req.Command != protocol.CmdInit {
		return nil, fmt.Errorf("%s before %s: %w", req.Command, protocol.CmdInit, ErrPeerNotRegistered)
	}

	switch req.Command {
	case protocol.CmdInit:
		return nil, s.handleInit(req)
	case protocol.CmdAdd:
		return s.handleAdd(req)
	case protocol.CmdLookup:
		return s.handleLookup(req)
	case protocol.CmdList:
		return s.index.Snapshot(), nil
	default:
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnknownCommand, req.Command)
	}
}

func (s *session) handleInit(req *protocol.Request) error {
	if s.peer != nil {
		return fmt.Errorf("repeated %s: %w", protocol.CmdInit, ErrPeerExists)
	}

	p, err := peerFromHeaders(req)
	if err != nil {
		return err
	}
	if err := s.index.RegisterPeer(p); err != nil {
		return fmt.Errorf("registering %s:%d: %w", p.Host, p.Port, err)
	}

	s.peer = &p
	s.log = s.log.WithFields(logrus.Fields{"host": p.Host, "port": p.Port})
	s.log.Info("Peer registered")
	return nil
}

func (s *session) handleAdd(req *protocol.Request) ([]protocol.Record, error) {
	if req.Argument == "" {
		return nil, fmt.Errorf("%w: %s without document id", protocol.ErrMalformed, protocol.CmdAdd)
	}

	owner := *s.peer
	if req.Headers.Has(protocol.HeaderHost) || req.Headers.Has(protocol.HeaderPort) {
		p, err := peerFromHeaders(req)
		if err != nil {
			return nil, err
		}
		owner = p
	}

	rec := protocol.Record{
		ID:    req.Argument,
		Title: req.Headers.Get(protocol.HeaderTitle),
		Host:  owner.Host,
		Port:  owner.Port,
	}
	if err := s.index.AddDocument(rec); err != nil {
		return nil, fmt.Errorf("adding %q: %w", rec.ID, err)
	}

	s.log.WithField("document", rec.ID).Debug("Document added")
	return []protocol.Record{rec}, nil
}

func (s *session) handleLookup(req *protocol.Request) ([]protocol.Record, error) {
	matches := s.index.Lookup(req.Argument, req.Headers.Get(protocol.HeaderTitle))
	if len(matches) == 0 {
		return nil, fmt.Errorf("lookup %q: %w", req.Argument, protocol.ErrNotFound)
	}
	return matches, nil
}

// release drops the peer's registration if the session still holds one. After an
// EXIT this is the regular cleanup; after a transport failure it is best effort.
func (s *session) release() {
	if s.peer == nil {
		return
	}
	removed, err := s.index.RemovePeer(*s.peer)
	if err != nil {
		s.log.WithError(err).Warn("Failed to release peer")
		return
	}
	s.log.WithField("documents", removed).Info("Peer released")
	s.peer = nil
}

func peerFromHeaders(req *protocol.Request) (Peer, error) {
	host := req.Headers.Get(protocol.HeaderHost)
	if host == "" {
		return Peer{}, fmt.Errorf("%w: missing %s header", protocol.ErrMalformed, protocol.HeaderHost)
	}
	port, err := req.Port()
	if err != nil {
		return Peer{}, err
	}
	return Peer{Host: host, Port: port}, nil
}
