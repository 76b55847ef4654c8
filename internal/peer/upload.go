package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
	"github.com/rudransh-shrivastava/p2p-ci/internal/store"
	"github.com/sirupsen/logrus"
)

// UploadServer answers one GET per connection from the local document store.
type UploadServer struct {
	listener      *net.TCPListener
	docs          store.DocumentRepository
	logger        *logrus.Logger
	acceptTimeout time.Duration
	ioTimeout     time.Duration

	stopping atomic.Bool
	wg       sync.WaitGroup
}

func NewUploadServer(addr string, docs store.DocumentRepository, acceptTimeout, ioTimeout time.Duration, log *logrus.Logger) (*UploadServer, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", addr, err)
	}
	ln, err := net.ListenTCP("tcp", tcpAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	return &UploadServer{
		listener:      ln,
		docs:          docs,
		logger:        log,
		acceptTimeout: acceptTimeout,
		ioTimeout:     ioTimeout,
	}, nil
}

func (u *UploadServer) Addr() string {
	return u.listener.Addr().String()
}

func (u *UploadServer) Port() int {
	return u.listener.Addr().(*net.TCPAddr).Port
}

// Start runs the accept loop in the background until Stop is called or ctx ends.
func (u *UploadServer) Start(ctx context.Context) {
	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		u.serve(ctx)
	}()
}

func (u *UploadServer) serve(ctx context.Context) {
	u.logger.WithField("addr", u.Addr()).Info("Upload server started")

	for !u.stopping.Load() && ctx.Err() == nil {
		_ = u.listener.SetDeadline(time.Now().Add(u.acceptTimeout))

		conn, err := u.listener.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			u.logger.WithError(err).Error("Failed to accept connection")
			continue
		}

		if u.stopping.Load() {
			_ = conn.Close()
			return
		}

		u.wg.Add(1)
		go func() {
			defer u.wg.Done()
			u.handleConn(conn)
		}()
	}
}

// Stop refuses new connections and waits for in-flight uploads to finish.
func (u *UploadServer) Stop() error {
	if u.stopping.Swap(true) {
		return nil
	}
	u.logger.Info("Stopping upload server")

	err := u.listener.Close()
	u.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (u *UploadServer) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()

	log := u.logger.WithField("remote", conn.RemoteAddr().String())
	_ = conn.SetDeadline(time.Now().Add(u.ioTimeout))

	req, err := protocol.ReadRequest(bufio.NewReader(conn))
	if protocol.IsTransport(err) {
		log.WithError(err).Debug("Upload request not received")
		return
	}

	res := u.respond(req, err)
	if req != nil {
		log = log.WithField("document", req.Argument)
	}
	log.WithField("status", int(res.Status)).Info("Served GET")

	if err := protocol.Encode(conn, res); err != nil {
		log.WithError(err).Debug("Failed to send document")
	}
}

func (u *UploadServer) respond(req *protocol.Request, decodeErr error) *protocol.DocumentResponse {
	if decodeErr != nil {
		return protocol.NewDocumentResponse(protocol.StatusFor(decodeErr))
	}
	if req.Version != protocol.Version {
		return protocol.NewDocumentResponse(protocol.StatusVersionNotSupported)
	}
	if req.Command != protocol.CmdGet {
		return protocol.NewDocumentResponse(protocol.StatusBadRequest)
	}

	ctx, cancel := context.WithTimeout(context.Background(), u.ioTimeout)
	defer cancel()

	doc, err := u.docs.GetDocument(ctx, req.Argument)
	if errors.Is(err, store.ErrNotFound) {
		return protocol.NewDocumentResponse(protocol.StatusNotFound)
	}
	if err != nil {
		u.logger.WithError(err).Error("Failed to load document")
		return protocol.NewDocumentResponse(protocol.StatusBadRequest)
	}

	return documentResponse(doc)
}

func documentResponse(doc store.Document) *protocol.DocumentResponse {
	res := protocol.NewDocumentResponse(protocol.StatusOK)
	res.Headers.Set(protocol.HeaderLastModified, protocol.FormatTime(doc.LastModified))
	res.Headers.Set(protocol.HeaderContentLength, strconv.Itoa(len(doc.Content)))
	res.Headers.Set(protocol.HeaderContentType, doc.ContentType)
	res.Body = doc.Content
	return res
}
