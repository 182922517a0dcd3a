package netdb

import (
	"sync"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/logger"
)

// PeerStats tracks connection outcomes for one peer.
type PeerStats struct {
	Hash              common.Hash
	SuccessCount      int
	TimeoutCount      int
	SignatureFailures int
	LastSuccess       time.Time
	LastFailure       time.Time
	ConsecutiveFails  int
	TotalAttempts     int
	AvgLatency        time.Duration
}

// PeerTracker maintains connectivity statistics for peers.
type PeerTracker struct {
	stats map[common.Hash]*PeerStats
	mu    sync.RWMutex
	now   func() time.Time
}

// NewPeerTracker creates a new peer tracking system.
func NewPeerTracker(now func() time.Time) *PeerTracker {
	if now == nil {
		now = time.Now
	}
	return &PeerTracker{
		stats: make(map[common.Hash]*PeerStats),
		now:   now,
	}
}

func (pt *PeerTracker) entry(hash common.Hash) *PeerStats {
	stats, exists := pt.stats[hash]
	if !exists {
		stats = &PeerStats{Hash: hash}
		pt.stats[hash] = stats
	}
	return stats
}

// RecordSuccess records an established session and its handshake latency.
func (pt *PeerTracker) RecordSuccess(hash common.Hash, latency time.Duration) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	stats := pt.entry(hash)
	stats.SuccessCount++
	stats.TotalAttempts++
	stats.LastSuccess = pt.now()
	stats.ConsecutiveFails = 0

	// simple moving average
	if stats.AvgLatency == 0 {
		stats.AvgLatency = latency
	} else {
		stats.AvgLatency = (stats.AvgLatency + latency) / 2
	}

	log.WithFields(logger.Fields{
		"peer_hash":     shortHash(hash.String(), 16),
		"success_count": stats.SuccessCount,
		"latency":       latency,
	}).Debug("Recorded successful connection")
}

// RecordTimeout records a handshake that was never answered.
func (pt *PeerTracker) RecordTimeout(hash common.Hash) {
	pt.recordFailure(hash, "timeout", func(s *PeerStats) { s.TimeoutCount++ })
}

// RecordSignatureFailure records a handshake whose signature did not verify.
func (pt *PeerTracker) RecordSignatureFailure(hash common.Hash) {
	pt.recordFailure(hash, "bad_signature", func(s *PeerStats) { s.SignatureFailures++ })
}

func (pt *PeerTracker) recordFailure(hash common.Hash, reason string, count func(*PeerStats)) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	stats := pt.entry(hash)
	count(stats)
	stats.TotalAttempts++
	stats.LastFailure = pt.now()
	stats.ConsecutiveFails++

	log.WithFields(logger.Fields{
		"peer_hash":         shortHash(hash.String(), 16),
		"consecutive_fails": stats.ConsecutiveFails,
		"reason":            reason,
	}).Debug("Recorded connection failure")
}

// GetStats retrieves a copy of the statistics for a peer, or nil.
func (pt *PeerTracker) GetStats(hash common.Hash) *PeerStats {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	if stats, exists := pt.stats[hash]; exists {
		statsCopy := *stats
		return &statsCopy
	}
	return nil
}

// GetSuccessRate returns the fraction of attempts that succeeded, or -1 if
// no attempts were recorded.
func (pt *PeerTracker) GetSuccessRate(hash common.Hash) float64 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	stats, exists := pt.stats[hash]
	if !exists || stats.TotalAttempts == 0 {
		return -1.0
	}
	return float64(stats.SuccessCount) / float64(stats.TotalAttempts)
}

// IsLikelyStale reports whether a peer looks offline. A peer is considered
// stale if:
// - It has 3+ consecutive failures, OR
// - Success rate < 25% with at least 5 attempts
func (pt *PeerTracker) IsLikelyStale(hash common.Hash) bool {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	stats, exists := pt.stats[hash]
	if !exists {
		return false
	}
	if stats.ConsecutiveFails >= 3 {
		return true
	}
	if stats.TotalAttempts >= 5 {
		return float64(stats.SuccessCount)/float64(stats.TotalAttempts) < 0.25
	}
	return false
}

// Forget drops all statistics for a peer.
func (pt *PeerTracker) Forget(hash common.Hash) {
	pt.mu.Lock()
	delete(pt.stats, hash)
	pt.mu.Unlock()
}
