package transport

import "errors"

var (
	// ErrNoTransportAvailable is returned when no muxed transport can reach a peer.
	ErrNoTransportAvailable = errors.New("no transports available")
	// ErrConnectionPoolFull is returned when the muxer already tracks its
	// maximum number of peers.
	ErrConnectionPoolFull = errors.New("connection pool full")
)
