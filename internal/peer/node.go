// Package peer implements a P2P-CI peer: a session with the index server,
// an upload server for local documents and fetches from other peers.
package peer

import (
	"context"
	"errors"
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
	"github.com/rudransh-shrivastava/p2p-ci/internal/store"
	"github.com/sirupsen/logrus"
)

type Node struct {
	config Config
	logger *logrus.Logger
	docs   store.DocumentRepository
	client *Client
	upload *UploadServer

	shutdownOnce sync.Once
	shutdownErr  error
}

// Details describes a running node.
type Details struct {
	ServerAddr    string
	UploadAddr    string
	AdvertiseHost string
	Port          int
	OS            string
	Documents     int
}

// New binds the upload listener. Nothing talks to the index server until Start.
func New(cfg Config) (*Node, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	upload, err := NewUploadServer(cfg.UploadAddr, cfg.Documents, cfg.AcceptTimeout, cfg.DialTimeout, cfg.Logger)
	if err != nil {
		return nil, err
	}

	return &Node{
		config: cfg,
		logger: cfg.Logger,
		docs:   cfg.Documents,
		client: NewClient(cfg.ServerAddr, cfg.DialTimeout, cfg.Logger),
		upload: upload,
	}, nil
}

func (n *Node) Host() string { return n.config.AdvertiseHost }

func (n *Node) Port() int { return n.upload.Port() }

// Start serves uploads, registers with INIT and announces every stored document.
// ctx bounds the startup exchange only; the upload server runs until Shutdown.
func (n *Node) Start(ctx context.Context) error {
	n.upload.Start(context.Background())

	if _, err := n.client.Connect(ctx, n.Host(), n.Port()); err != nil {
		_ = n.upload.Stop()
		return err
	}

	docs, err := n.docs.ListDocuments(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		res, err := n.client.Add(ctx, doc.ID, doc.Title)
		if err != nil {
			return err
		}
		if err := statusError(res.Status, res.Phrase); err != nil {
			return err
		}
	}

	n.logger.WithField("documents", len(docs)).Info("Peer started")
	return nil
}

// Add announces id. A document missing from the local store is generated first
// so the upload server can answer GETs for it.
func (n *Node) Add(ctx context.Context, id, title string) (*protocol.IndexResponse, error) {
	if _, err := n.docs.GetDocument(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		doc := store.NewDocument(id, title, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
		if err := n.docs.AddDocument(ctx, doc); err != nil {
			return nil, err
		}
		n.logger.WithField("document", id).Debug("Generated local document")
	}
	return n.client.Add(ctx, id, title)
}

func (n *Node) Lookup(ctx context.Context, id, title string) (*protocol.IndexResponse, error) {
	return n.client.Lookup(ctx, id, title)
}

func (n *Node) List(ctx context.Context) (*protocol.IndexResponse, error) {
	return n.client.List(ctx)
}

func (n *Node) LocalDocuments(ctx context.Context) ([]store.Document, error) {
	return n.docs.ListDocuments(ctx)
}

func (n *Node) Details(ctx context.Context) (Details, error) {
	docs, err := n.docs.ListDocuments(ctx)
	if err != nil {
		return Details{}, err
	}
	return Details{
		ServerAddr:    n.config.ServerAddr,
		UploadAddr:    n.upload.Addr(),
		AdvertiseHost: n.Host(),
		Port:          n.Port(),
		OS:            runtime.GOOS,
		Documents:     len(docs),
	}, nil
}

// Shutdown sends EXIT, stops the upload server and closes the server session,
// in that order. Later calls return the first result.
func (n *Node) Shutdown(ctx context.Context) error {
	n.shutdownOnce.Do(func() {
		n.logger.Info("Shutting down peer")

		if err := n.client.Exit(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
			n.logger.WithError(err).Warn("Failed to send EXIT")
			n.shutdownErr = err
		}
		if err := n.upload.Stop(); err != nil && n.shutdownErr == nil {
			n.shutdownErr = err
		}
		if err := n.client.Close(); err != nil && n.shutdownErr == nil {
			n.shutdownErr = err
		}
	})
	return n.shutdownErr
}
