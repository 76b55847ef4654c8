package peer

import (
	"errors"
	"fmt"

	"github.com/rudransh-shrivastava/p2p-ci/internal/protocol"
)

var (
	ErrNotConnected = errors.New("not connected to index server")
	ErrNoSuchPeer   = errors.New("no record for requested host")
)

// StatusError reports a reply whose status is not 200 OK.
type StatusError struct {
	Status protocol.StatusCode
	Phrase string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Phrase)
}

func statusError(status protocol.StatusCode, phrase string) error {
	if status == protocol.StatusOK {
		return nil
	}
	return &StatusError{Status: status, Phrase: phrase}
}
