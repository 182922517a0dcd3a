package ssu

import (
	"net/netip"
	"sort"
	"sync"
	"time"
)

// EndpointStatistic scores one remote endpoint. It only orders candidate
// addresses and never affects protocol decisions.
type EndpointStatistic struct {
	Endpoint          netip.AddrPort
	MinConnectLatency time.Duration
	AvgSessionLength  time.Duration
	Successes         int
	Timeouts          int
	RelayIntros       int
	SignatureFailures int
	sessions          int
}

// RecordSuccess notes a completed handshake that took latency.
func (s *EndpointStatistic) RecordSuccess(latency time.Duration) {
	s.Successes++
	if s.MinConnectLatency == 0 || latency < s.MinConnectLatency {
		s.MinConnectLatency = latency
	}
}

func (s *EndpointStatistic) RecordTimeout() { s.Timeouts++ }

func (s *EndpointStatistic) RecordRelayIntro() { s.RelayIntros++ }

func (s *EndpointStatistic) RecordSignatureFailure() { s.SignatureFailures++ }

// RecordSessionEnd folds the length of a finished session into the average.
func (s *EndpointStatistic) RecordSessionEnd(length time.Duration) {
	s.sessions++
	s.AvgSessionLength += (length - s.AvgSessionLength) / time.Duration(s.sessions)
}

// Score is higher for endpoints more likely to connect quickly.
func (s *EndpointStatistic) Score() float64 {
	score := float64(s.Successes*4 + s.RelayIntros - s.Timeouts*3 - s.SignatureFailures*8)
	if s.MinConnectLatency > 0 {
		score += 1000 / float64(s.MinConnectLatency.Milliseconds()+10)
	}
	score += s.AvgSessionLength.Minutes()
	return score
}

// EndpointStatistics is a concurrency safe table of per endpoint scores.
type EndpointStatistics struct {
	mu    sync.Mutex
	stats map[netip.AddrPort]*EndpointStatistic
}

func NewEndpointStatistics() *EndpointStatistics {
	return &EndpointStatistics{stats: make(map[netip.AddrPort]*EndpointStatistic)}
}

// Update applies fn to the record for ep, creating it if needed.
func (t *EndpointStatistics) Update(ep netip.AddrPort, fn func(*EndpointStatistic)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[ep]
	if !ok {
		s = &EndpointStatistic{Endpoint: ep}
		t.stats[ep] = s
	}
	fn(s)
}

// Get returns a copy of the record for ep.
func (t *EndpointStatistics) Get(ep netip.AddrPort) (EndpointStatistic, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[ep]
	if !ok {
		return EndpointStatistic{}, false
	}
	return *s, true
}

// Rank orders endpoints best first. Unknown endpoints score zero and keep
// their relative order.
func (t *EndpointStatistics) Rank(eps []netip.AddrPort) []netip.AddrPort {
	t.mu.Lock()
	scores := make(map[netip.AddrPort]float64, len(eps))
	for _, ep := range eps {
		if s, ok := t.stats[ep]; ok {
			scores[ep] = s.Score()
		}
	}
	t.mu.Unlock()

	out := append([]netip.AddrPort(nil), eps...)
	sort.SliceStable(out, func(i, j int) bool {
		return scores[out[i]] > scores[out[j]]
	})
	return out
}
