// Package netdb is the daemon's peer directory: the routers this node knows,
// where to reach them, and how connections to them have gone.
//
// # Storage
//
// Peers are held in memory and loaded from a YAML peer file. Each entry
// carries the peer's router identity and its SSU addresses, binary fields
// in I2P base64. The daemon writes its own entry in the same format so
// two nodes can be pointed at each other by exchanging files.
//
// # Reputation
//
// PeerTracker counts successes and failures per peer. A peer whose
// handshake signature fails verification is banned for BanDuration and
// hidden from Lookup.
//
// # Thread Safety
//
// Directory and PeerTracker are safe for concurrent access.
package netdb

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()

// shortHash returns up to the first n characters of s for safe use in log
// messages.
func shortHash(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[:n]
}
