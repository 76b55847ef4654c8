package peer

import (
	"errors"
	"os"
	"time"

	"github.com/rudransh-shrivastava/p2p-ci/internal/logger"
	"github.com/rudransh-shrivastava/p2p-ci/internal/store"
	"github.com/sirupsen/logrus"
)

const (
	defaultUploadAddr    = ":0"
	defaultIdleTimeout   = 250 * time.Millisecond
	defaultDialTimeout   = 5 * time.Second
	defaultAcceptTimeout = 500 * time.Millisecond
)

type Config struct {
	// ServerAddr is the index server's host:port.
	ServerAddr string
	// UploadAddr is where the upload listener binds. Port 0 picks an ephemeral port.
	UploadAddr string
	// AdvertiseHost is sent in Host headers. Defaults to the machine's hostname.
	AdvertiseHost string
	Documents     store.DocumentRepository

	// IdleTimeout ends a fetch drain once no data arrived for this long.
	IdleTimeout   time.Duration
	DialTimeout   time.Duration
	AcceptTimeout time.Duration

	Logger *logrus.Logger
}

func (c Config) withDefaults() (Config, error) {
	if c.ServerAddr == "" {
		return c, errors.New("server address is required")
	}
	if c.Documents == nil {
		return c, errors.New("document repository is required")
	}
	if c.UploadAddr == "" {
		c.UploadAddr = defaultUploadAddr
	}
	if c.AdvertiseHost == "" {
		host, err := os.Hostname()
		if err != nil {
			return c, err
		}
		c.AdvertiseHost = host
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.AcceptTimeout <= 0 {
		c.AcceptTimeout = defaultAcceptTimeout
	}
	if c.Logger == nil {
		c.Logger = logger.NewLogger()
	}
	return c, nil
}
