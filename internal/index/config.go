package index

import (
	"net"
	"strconv"

	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
	"github.com/sirupsen/logrus"
)

const defaultMaxConns = 64

type Config struct {
	Addr string
	// MaxConns caps concurrent peer sessions. Zero means defaultMaxConns.
	MaxConns int
	// Index is the registry served by this server; nil creates an empty one.
	Index  *Index
	Logger *logrus.Logger
}

// DefaultAddr is the listen address for host on the well-known server port.
func DefaultAddr(host string) string {
	return net.JoinHostPort(host, strconv.Itoa(protocol.DefaultServerPort))
}
