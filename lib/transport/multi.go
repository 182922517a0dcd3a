package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// DefaultMaxConnections is the default maximum number of peers tracked at
// once across all muxed transports.
const DefaultMaxConnections = 1024

// Compile-time check that TransportMuxer implements Transport interface
var _ Transport = (*TransportMuxer)(nil)

// muxes multiple transports into 1 Transport
type TransportMuxer struct {
	// the underlying transports in order of preference
	trans []Transport

	// MaxConnections is the maximum number of peers tracked at once.
	// 0 means use DefaultMaxConnections.
	MaxConnections int

	mu sync.Mutex
	// peers remembers which transport carries each active peer
	peers map[data.Hash]Transport
}

// mux a bunch of transports together
func Mux(t ...Transport) (tmux *TransportMuxer) {
	log.WithFields(logger.Fields{
		"at":              "Mux",
		"reason":          "initialization",
		"transport_count": len(t),
	}).Debug("creating new TransportMuxer")
	tmux = &TransportMuxer{peers: make(map[data.Hash]Transport)}
	tmux.trans = append(tmux.trans, t...)
	return tmux
}

// MuxWithLimit creates a TransportMuxer with a specified maximum connection limit.
func MuxWithLimit(maxConnections int, t ...Transport) (tmux *TransportMuxer) {
	tmux = Mux(t...)
	tmux.MaxConnections = maxConnections
	log.WithFields(logger.Fields{
		"at":              "MuxWithLimit",
		"max_connections": maxConnections,
	}).Debug("TransportMuxer created with connection limit")
	return tmux
}

// ReleasePeer forgets the transport bound to peer, freeing its slot.
// Releasing an unknown peer does nothing.
func (tmux *TransportMuxer) ReleasePeer(peer data.Hash) {
	tmux.mu.Lock()
	delete(tmux.peers, peer)
	active := len(tmux.peers)
	tmux.mu.Unlock()
	log.WithFields(logger.Fields{
		"at":              "(TransportMuxer) ReleasePeer",
		"peer_hash":       fmt.Sprintf("%x...", peer[:8]),
		"active_sessions": active,
	}).Debug("peer released")
}

// Start starts every transport. If one fails the ones already started are
// closed again.
func (tmux *TransportMuxer) Start() error {
	if err := tmux.validateTransports(); err != nil {
		return err
	}
	for i, t := range tmux.trans {
		if err := t.Start(); err != nil {
			log.WithFields(logger.Fields{
				"at":              "(TransportMuxer) Start",
				"reason":          "transport_start_failed",
				"transport_index": i,
				"transport":       t.Name(),
				"error":           err.Error(),
			}).Error("failed to start transport")
			for _, started := range tmux.trans[:i] {
				started.Close()
			}
			return oops.Wrapf(err, "start %s transport", t.Name())
		}
	}
	log.WithFields(logger.Fields{
		"at":              "(TransportMuxer) Start",
		"transport_count": len(tmux.trans),
	}).Info("all transports started")
	return nil
}

// close every transport that this transport muxer has
func (tmux *TransportMuxer) Close() (err error) {
	log.WithFields(logger.Fields{
		"at":              "(TransportMuxer) Close",
		"reason":          "shutdown_requested",
		"transport_count": len(tmux.trans),
	}).Debug("closing all transports")
	for i, t := range tmux.trans {
		if cerr := t.Close(); cerr != nil {
			// keep closing the rest
			log.WithFields(logger.Fields{
				"at":              "(TransportMuxer) Close",
				"reason":          "transport_close_failed",
				"transport_index": i,
				"error":           cerr.Error(),
			}).Warn("error closing transport")
			err = cerr
		}
	}
	tmux.mu.Lock()
	clear(tmux.peers)
	tmux.mu.Unlock()
	return err
}

// the name of this transport with the names of all the ones that we mux
func (tmux *TransportMuxer) Name() string {
	names := make([]string, 0, len(tmux.trans))
	for _, t := range tmux.trans {
		names = append(names, t.Name())
	}
	return "Muxed Transport: " + strings.Join(names, ", ")
}

// is there a transport that we mux that is compatible with this peer?
func (tmux *TransportMuxer) Compatible(peer data.Hash) bool {
	for _, t := range tmux.trans {
		if t.Compatible(peer) {
			return true
		}
	}
	return false
}

// Send delivers msg through the transport already bound to peer, or binds
// the first compatible transport that accepts it.
// Returns ErrConnectionPoolFull if a new peer would exceed MaxConnections
// and ErrNoTransportAvailable if no transport could take the message.
func (tmux *TransportMuxer) Send(ctx context.Context, peer data.Hash, msg *i2np.Message) error {
	if t, ok := tmux.boundTransport(peer); ok {
		err := t.Send(ctx, peer, msg)
		if err == nil {
			return nil
		}
		log.WithFields(logger.Fields{
			"at":        "(TransportMuxer) Send",
			"reason":    "bound_transport_failed",
			"peer_hash": fmt.Sprintf("%x...", peer[:8]),
			"transport": t.Name(),
			"error":     err.Error(),
		}).Debug("bound transport failed, rebinding")
		tmux.ReleasePeer(peer)
	}

	if err := tmux.validateTransports(); err != nil {
		return err
	}
	if err := tmux.checkConnectionLimit(); err != nil {
		return err
	}

	var lastErr error
	for i, t := range tmux.trans {
		if !t.Compatible(peer) {
			continue
		}
		if err := tmux.trySendOnTransport(ctx, t, peer, msg, i); err != nil {
			lastErr = err
			continue
		}
		tmux.bind(peer, t)
		return nil
	}

	tmux.logNoTransportError(peer, lastErr)
	if lastErr != nil {
		return oops.Wrapf(ErrNoTransportAvailable, "last error: %v", lastErr)
	}
	return ErrNoTransportAvailable
}

// trySendOnTransport hands msg to one compatible transport and logs the outcome.
func (tmux *TransportMuxer) trySendOnTransport(ctx context.Context, t Transport, peer data.Hash, msg *i2np.Message, index int) error {
	err := t.Send(ctx, peer, msg)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":              "(TransportMuxer) Send",
			"phase":           "session_establishment",
			"reason":          "send_failed",
			"transport_index": index,
			"transport":       t.Name(),
			"peer_hash":       fmt.Sprintf("%x", peer[:]),
			"error":           err.Error(),
		}).Warn("compatible transport failed, trying next")
		return err
	}
	log.WithFields(logger.Fields{
		"at":              "(TransportMuxer) Send",
		"reason":          "message_queued",
		"transport_index": index,
	}).Debug("message queued on transport")
	return nil
}

// logNoTransportError logs diagnostics when no transport could take a message.
func (tmux *TransportMuxer) logNoTransportError(peer data.Hash, lastErr error) {
	fields := logger.Fields{
		"at":             "(TransportMuxer) Send",
		"phase":          "session_establishment",
		"reason":         "no_compatible_transport",
		"peer_hash":      fmt.Sprintf("%x", peer[:]),
		"num_transports": len(tmux.trans),
		"impact":         "peer unreachable",
	}
	if lastErr != nil {
		fields["error"] = lastErr.Error()
	}
	log.WithFields(fields).Error("no transport could reach peer")
}

func (tmux *TransportMuxer) boundTransport(peer data.Hash) (Transport, bool) {
	tmux.mu.Lock()
	defer tmux.mu.Unlock()
	t, ok := tmux.peers[peer]
	return t, ok
}

func (tmux *TransportMuxer) bind(peer data.Hash, t Transport) {
	tmux.mu.Lock()
	tmux.peers[peer] = t
	tmux.mu.Unlock()
}

// validateTransports checks that at least one transport is configured.
func (tmux *TransportMuxer) validateTransports() error {
	if len(tmux.trans) == 0 {
		return ErrNoTransportAvailable
	}
	return nil
}

// getMaxConnections returns the effective maximum connection limit.
func (tmux *TransportMuxer) getMaxConnections() int {
	if tmux.MaxConnections <= 0 {
		return DefaultMaxConnections
	}
	return tmux.MaxConnections
}

// ActiveSessionCount returns the number of peers currently bound to a transport.
func (tmux *TransportMuxer) ActiveSessionCount() int {
	tmux.mu.Lock()
	defer tmux.mu.Unlock()
	return len(tmux.peers)
}

// checkConnectionLimit returns ErrConnectionPoolFull if the maximum number of
// peers has been reached.
func (tmux *TransportMuxer) checkConnectionLimit() error {
	limit := tmux.getMaxConnections()
	current := tmux.ActiveSessionCount()
	if current >= limit {
		log.WithFields(logger.Fields{
			"at":              "(TransportMuxer) checkConnectionLimit",
			"reason":          "connection_pool_full",
			"active_sessions": current,
			"max_connections": limit,
		}).Warn("connection pool limit reached")
		return ErrConnectionPoolFull
	}
	return nil
}

// GetTransports returns a copy of the slice of transports in this muxer.
func (tmux *TransportMuxer) GetTransports() []Transport {
	transports := make([]Transport, len(tmux.trans))
	copy(transports, tmux.trans)
	return transports
}
