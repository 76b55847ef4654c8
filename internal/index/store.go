package index

import (
	"errors"
	"slices"
	"sync"

	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
)

var (
	ErrPeerExists        = errors.New("peer already registered")
	ErrPeerNotRegistered = errors.New("peer not registered")
)

// Peer identifies a registered peer by its advertised upload address.
type Peer struct {
	Host string
	Port int
}

// Index holds the peer registry and the document records. The registry and the
// records have separate locks; operations needing both take peersMu first.
type Index struct {
	peersMu sync.Mutex
	peers   map[Peer]struct{}

	docsMu sync.Mutex
	docs   []protocol.Record
}

func NewIndex() *Index {
	return &Index{
		peers: make(map[Peer]struct{}),
	}
}

func (ix *Index) RegisterPeer(p Peer) error {
	ix.peersMu.Lock()
	defer ix.peersMu.Unlock()

	if _, exists := ix.peers[p]; exists {
		return ErrPeerExists
	}
	ix.peers[p] = struct{}{}
	return nil
}

// AddDocument appends rec. The owner must be registered, and stays registered
// until the record is in place.
func (ix *Index) AddDocument(rec protocol.Record) error {
	ix.peersMu.Lock()
	defer ix.peersMu.Unlock()

	if _, exists := ix.peers[Peer{Host: rec.Host, Port: rec.Port}]; !exists {
		return ErrPeerNotRegistered
	}

	ix.docsMu.Lock()
	ix.docs = append(ix.docs, rec)
	ix.docsMu.Unlock()
	return nil
}

// RemovePeer drops p and every record it owns in one step. It returns the number
// of records removed, or ErrPeerNotRegistered.
func (ix *Index) RemovePeer(p Peer) (int, error) {
	ix.peersMu.Lock()
	defer ix.peersMu.Unlock()

	if _, exists := ix.peers[p]; !exists {
		return 0, ErrPeerNotRegistered
	}
	delete(ix.peers, p)

	ix.docsMu.Lock()
	defer ix.docsMu.Unlock()

	before := len(ix.docs)
	ix.docs = slices.DeleteFunc(ix.docs, func(rec protocol.Record) bool {
		return rec.Host == p.Host && rec.Port == p.Port
	})
	return before - len(ix.docs), nil
}

// Lookup returns the records with the given id. A non-empty title must match too.
func (ix *Index) Lookup(id, title string) []protocol.Record {
	ix.docsMu.Lock()
	defer ix.docsMu.Unlock()

	var matches []protocol.Record
	for _, rec := range ix.docs {
		if rec.ID != id {
			continue
		}
		if title != "" && rec.Title != title {
			continue
		}
		matches = append(matches, rec)
	}
	return matches
}

// Snapshot returns a copy of every record.
func (ix *Index) Snapshot() []protocol.Record {
	ix.docsMu.Lock()
	defer ix.docsMu.Unlock()

	return slices.Clone(ix.docs)
}

func (ix *Index) Registered(p Peer) bool {
	ix.peersMu.Lock()
	defer ix.peersMu.Unlock()

	_, exists := ix.peers[p]
	return exists
}

func (ix *Index) Peers() []Peer {
	ix.peersMu.Lock()
	defer ix.peersMu.Unlock()

	peers := make([]Peer, 0, len(ix.peers))
	for p := range ix.peers {
		peers = append(peers, p)
	}
	return peers
}
