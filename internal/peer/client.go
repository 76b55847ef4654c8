package peer

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
	"github.com/sirupsen/logrus"
)

// Client is the peer's persistent session with the index server. Calls are
// serialized so at most one request is outstanding.
type Client struct {
	serverAddr  string
	dialTimeout time.Duration
	logger      *logrus.Logger

	mu   sync.Mutex
	conn net.Conn
	br   *bufio.Reader
	host string
	port int
}

func NewClient(serverAddr string, dialTimeout time.Duration, log *logrus.Logger) *Client {
	return &Client{
		serverAddr:  serverAddr,
		dialTimeout: dialTimeout,
		logger:      log,
	}
}

// Connect dials the server and registers host:port with INIT.
func (c *Client) Connect(ctx context.Context, host string, port int) (*protocol.IndexResponse, error) {
	c.logger.WithField("server", c.serverAddr).Info("Connecting to index server")

	dialer := net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.serverAddr)
	if err != nil {
		c.logger.WithError(err).Error("Failed to connect to index server")
		return nil, err
	}

	c.mu.Lock()
	c.conn = conn
	c.br = bufio.NewReader(conn)
	c.host = host
	c.port = port
	c.mu.Unlock()

	req := protocol.NewRequest(protocol.CmdInit, protocol.ArgPeer)
	setOwner(req, host, port)

	res, err := c.roundTrip(ctx, req)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := statusError(res.Status, res.Phrase); err != nil {
		_ = c.Close()
		return res, err
	}

	c.logger.WithFields(logrus.Fields{"host": host, "port": port}).Info("Registered with index server")
	return res, nil
}

// Add announces a document owned by this peer.
func (c *Client) Add(ctx context.Context, id, title string) (*protocol.IndexResponse, error) {
	req := c.request(protocol.CmdAdd, id)
	req.Headers.Set(protocol.HeaderTitle, title)
	return c.roundTrip(ctx, req)
}

// Lookup finds the owners of id. An empty title matches any title.
func (c *Client) Lookup(ctx context.Context, id, title string) (*protocol.IndexResponse, error) {
	req := c.request(protocol.CmdLookup, id)
	req.Headers.Set(protocol.HeaderTitle, title)
	return c.roundTrip(ctx, req)
}

func (c *Client) List(ctx context.Context) (*protocol.IndexResponse, error) {
	return c.roundTrip(ctx, c.request(protocol.CmdList, protocol.ArgAll))
}

// request builds a request carrying this peer's Host and Port headers.
func (c *Client) request(cmd protocol.Command, arg string) *protocol.Request {
	c.mu.Lock()
	host, port := c.host, c.port
	c.mu.Unlock()

	req := protocol.NewRequest(cmd, arg)
	setOwner(req, host, port)
	return req
}

// Exit sends EXIT. The server does not answer it, so nothing is read back.
func (c *Client) Exit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	stop := c.bindContext(ctx)
	defer stop()

	c.logger.Debug("Sending EXIT to index server")
	return protocol.Encode(c.conn, protocol.NewRequest(protocol.CmdExit, protocol.ArgPeer))
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.br = nil
	return err
}

func (c *Client) roundTrip(ctx context.Context, req *protocol.Request) (*protocol.IndexResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}
	stop := c.bindContext(ctx)
	defer stop()

	c.logger.WithField("command", req.Command).Debug("Sending request")
	if err := protocol.Encode(c.conn, req); err != nil {
		return nil, err
	}
	return protocol.ReadIndexResponse(c.br)
}

// bindContext applies ctx's deadline to the connection and unblocks pending I/O
// when ctx is cancelled. The caller must hold c.mu.
func (c *Client) bindContext(ctx context.Context) func() {
	conn := c.conn
	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	return func() {
		stop()
		_ = conn.SetDeadline(time.Time{})
	}
}

func setOwner(req *protocol.Request, host string, port int) {
	req.Headers.Set(protocol.HeaderHost, host)
	req.Headers.Set(protocol.HeaderPort, strconv.Itoa(port))
}
