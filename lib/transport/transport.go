package transport

import (
	"context"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Transport moves I2NP messages to peers named by their router hash.
type Transport interface {
	// Name of the transport style, e.g. "SSU".
	Name() string

	// Start binds the transport's sockets and begins serving peers.
	Start() error

	// Compatible reports whether the transport can reach peer at all.
	Compatible(peer data.Hash) bool

	// Send delivers msg to peer, establishing a session first when none
	// exists. It returns once the message is queued.
	Send(ctx context.Context, peer data.Hash, msg *i2np.Message) error

	// Close stops the transport and ends every session.
	Close() error
}
