package netdb

import (
	"slices"
	"sync"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// BanDuration is how long a peer stays hidden after a signature failure.
const BanDuration = time.Hour

var _ ssu.PeerDirectory = (*Directory)(nil)

// Directory is an in-memory ssu.PeerDirectory.
type Directory struct {
	mu     sync.RWMutex
	peers  map[common.Hash]ssu.PeerInfo
	banned map[common.Hash]time.Time

	tracker *PeerTracker
	now     func() time.Time
}

// NewDirectory returns an empty directory. A nil clock uses time.Now.
func NewDirectory(now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	return &Directory{
		peers:   make(map[common.Hash]ssu.PeerInfo),
		banned:  make(map[common.Hash]time.Time),
		tracker: NewPeerTracker(now),
		now:     now,
	}
}

// Add stores or replaces a peer. The peer is keyed by its identity hash.
func (d *Directory) Add(info ssu.PeerInfo) error {
	if info.Identity == nil {
		return ErrMissingIdentity
	}
	hash := info.Identity.Hash()
	if len(info.Addresses) == 0 {
		return oops.Wrapf(ErrNoAddresses, "peer %x", hash[:8])
	}
	info.Addresses = slices.Clone(info.Addresses)

	d.mu.Lock()
	d.peers[hash] = info
	size := len(d.peers)
	d.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":        "(Directory) Add",
		"peer_hash": shortHash(hash.String(), 16),
		"addresses": len(info.Addresses),
		"size":      size,
	}).Debug("peer added")
	return nil
}

// Remove drops a peer and its statistics.
func (d *Directory) Remove(hash common.Hash) {
	d.mu.Lock()
	delete(d.peers, hash)
	delete(d.banned, hash)
	d.mu.Unlock()
	d.tracker.Forget(hash)
}

// Lookup returns a known peer unless it is banned.
func (d *Directory) Lookup(hash common.Hash) (ssu.PeerInfo, bool) {
	d.mu.RLock()
	info, ok := d.peers[hash]
	until, banned := d.banned[hash]
	d.mu.RUnlock()
	if !ok {
		return ssu.PeerInfo{}, false
	}
	if banned && d.now().Before(until) {
		log.WithFields(logger.Fields{
			"at":        "(Directory) Lookup",
			"peer_hash": shortHash(hash.String(), 16),
			"reason":    "banned",
			"until":     until,
		}).Debug("lookup refused")
		return ssu.PeerInfo{}, false
	}
	info.Addresses = slices.Clone(info.Addresses)
	return info, true
}

// Len returns the number of known peers.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// Hashes lists every known peer.
func (d *Directory) Hashes() []common.Hash {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]common.Hash, 0, len(d.peers))
	for h := range d.peers {
		out = append(out, h)
	}
	return out
}

// Tracker exposes the connection statistics.
func (d *Directory) Tracker() *PeerTracker {
	return d.tracker
}

func (d *Directory) ReportSuccess(hash common.Hash, latency time.Duration) {
	d.mu.Lock()
	delete(d.banned, hash)
	d.mu.Unlock()
	d.tracker.RecordSuccess(hash, latency)
}

func (d *Directory) ReportTimeout(hash common.Hash) {
	d.tracker.RecordTimeout(hash)
	if d.tracker.IsLikelyStale(hash) {
		log.WithFields(logger.Fields{
			"at":        "(Directory) ReportTimeout",
			"peer_hash": shortHash(hash.String(), 16),
			"reason":    "likely_stale",
		}).Info("peer looks unreachable")
	}
}

// ReportSignatureFailure bans the peer for BanDuration.
func (d *Directory) ReportSignatureFailure(hash common.Hash) {
	d.tracker.RecordSignatureFailure(hash)
	until := d.now().Add(BanDuration)
	d.mu.Lock()
	d.banned[hash] = until
	d.mu.Unlock()
	log.WithFields(logger.Fields{
		"at":        "(Directory) ReportSignatureFailure",
		"peer_hash": shortHash(hash.String(), 16),
		"until":     until,
	}).Warn("peer banned after signature failure")
}
