package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"strings"
	"time"

	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
	"github.com/rudransh-shrivastava/p2p-ci/internal/store"
	"github.com/sirupsen/logrus"
)

type fetchOptions struct {
	progress io.Writer
}

type FetchOption func(*fetchOptions)

// WithProgress copies every chunk received during a fetch to w.
func WithProgress(w io.Writer) FetchOption {
	return func(o *fetchOptions) {
		o.progress = w
	}
}

// Get downloads id from host and stores it locally. The upload port is found by
// LOOKUP, so host must currently own the document in the index.
func (n *Node) Get(ctx context.Context, id, host string, opts ...FetchOption) (store.Document, error) {
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	rec, err := n.locate(ctx, id, host)
	if err != nil {
		return store.Document{}, err
	}

	log := n.logger.WithFields(logrus.Fields{"document": id, "peer": rec.Addr()})
	log.Info("Fetching document")

	res, err := n.fetch(ctx, id, rec, o)
	if err != nil {
		log.WithError(err).Warn("Fetch failed")
		return store.Document{}, err
	}

	doc, err := documentFrom(id, rec, res)
	if err != nil {
		return store.Document{}, err
	}
	if err := n.docs.AddDocument(ctx, doc); err != nil {
		return store.Document{}, err
	}

	log.WithField("bytes", doc.ContentLength).Info("Document fetched")
	return doc, nil
}

func (n *Node) locate(ctx context.Context, id, host string) (protocol.Record, error) {
	res, err := n.client.Lookup(ctx, id, "")
	if err != nil {
		return protocol.Record{}, err
	}
	if res.Status == protocol.StatusNotFound {
		return protocol.Record{}, fmt.Errorf("%s at %s: %w", id, host, ErrNoSuchPeer)
	}
	if err := statusError(res.Status, res.Phrase); err != nil {
		return protocol.Record{}, err
	}

	for _, rec := range res.Records {
		if rec.Host == host && recordHasID(rec, id) {
			return rec, nil
		}
	}
	return protocol.Record{}, fmt.Errorf("%s at %s: %w", id, host, ErrNoSuchPeer)
}

func (n *Node) fetch(ctx context.Context, id string, rec protocol.Record, o fetchOptions) (*protocol.DocumentResponse, error) {
	dialer := net.Dialer{Timeout: n.config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", rec.Addr())
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", rec.Addr(), err)
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	req := protocol.NewRequest(protocol.CmdGet, id)
	req.Headers.Set(protocol.HeaderHost, rec.Host)
	req.Headers.Set(protocol.HeaderOS, runtime.GOOS)
	if err := protocol.Encode(conn, req); err != nil {
		return nil, err
	}

	data, err := drain(conn, n.config.IdleTimeout, o.progress)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	res, err := protocol.ParseDocumentResponse(data)
	if err != nil {
		return nil, err
	}
	if err := statusError(res.Status, res.Phrase); err != nil {
		return nil, err
	}
	return res, nil
}

// drain reads until the far side closes or nothing arrives for idle.
func drain(conn net.Conn, idle time.Duration, progress io.Writer) ([]byte, error) {
	var data []byte
	buf := make([]byte, 4096)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idle))
		n, err := conn.Read(buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			if progress != nil {
				_, _ = progress.Write(buf[:n])
			}
		}
		if err == nil {
			continue
		}

		var ne net.Error
		if errors.Is(err, io.EOF) || (errors.As(err, &ne) && ne.Timeout()) {
			return data, nil
		}
		return data, &protocol.TransportError{Op: "read", Err: err}
	}
}

func documentFrom(id string, rec protocol.Record, res *protocol.DocumentResponse) (store.Document, error) {
	length, err := res.ContentLength()
	if err != nil {
		return store.Document{}, err
	}
	if length != len(res.Body) {
		return store.Document{}, fmt.Errorf("%w: header %d, received %d", store.ErrLengthMismatch, length, len(res.Body))
	}

	modified, err := res.LastModified()
	if err != nil {
		return store.Document{}, err
	}

	return store.Document{
		ID:            id,
		Title:         recordTitle(rec, id),
		LastModified:  modified,
		ContentLength: length,
		ContentType:   res.ContentType(),
		Content:       res.Body,
	}, nil
}

// A result line always yields a two-word ID, so a one-word id arrives with the
// first word of its title attached.
func recordHasID(rec protocol.Record, id string) bool {
	return rec.ID == id || strings.HasPrefix(rec.ID, id+" ")
}

func recordTitle(rec protocol.Record, id string) string {
	if rec.ID == id {
		return rec.Title
	}
	head := strings.TrimPrefix(rec.ID, id+" ")
	if rec.Title == "" {
		return head
	}
	return head + " " + rec.Title
}
