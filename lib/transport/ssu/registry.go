package ssu

import (
	"net/netip"
	"sync"

	"github.com/go-i2p/common/data"
)

// registry indexes live sessions by endpoint, by peer hash and by the
// relay tag we issued them. Pending relayed sessions have no endpoint yet
// and are found by hash only.
type registry struct {
	mu         sync.RWMutex
	byEndpoint map[netip.AddrPort]*Session
	byHash     map[data.Hash]*Session
	byRelayTag map[uint32]*Session
}

func newRegistry() *registry {
	return &registry{
		byEndpoint: make(map[netip.AddrPort]*Session),
		byHash:     make(map[data.Hash]*Session),
		byRelayTag: make(map[uint32]*Session),
	}
}

// add inserts s under its endpoint (if any) and hash (if known). It fails
// if a live session already owns the endpoint.
func (r *registry) add(s *Session, ep netip.AddrPort, hash data.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ep.IsValid() {
		if cur, ok := r.byEndpoint[ep]; ok && cur != s {
			return ErrSessionExists
		}
		r.byEndpoint[ep] = s
	}
	if hash != (data.Hash{}) {
		r.byHash[hash] = s
	}
	return nil
}

func (r *registry) lookupEndpoint(ep netip.AddrPort) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byEndpoint[ep]
}

func (r *registry) lookupHash(h data.Hash) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byHash[h]
}

func (r *registry) lookupRelayTag(tag uint32) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byRelayTag[tag]
}

// bindEndpoint records the endpoint a relayed session learned.
func (r *registry) bindEndpoint(s *Session, ep netip.AddrPort) error {
	return r.add(s, ep, data.Hash{})
}

// bindHash indexes an inbound session once its identity is known. An
// older session for the same peer keeps its endpoint entry but loses the
// hash entry.
func (r *registry) bindHash(s *Session, h data.Hash) {
	r.mu.Lock()
	r.byHash[h] = s
	r.mu.Unlock()
}

func (r *registry) bindRelayTag(s *Session, tag uint32) {
	if tag == 0 {
		return
	}
	r.mu.Lock()
	r.byRelayTag[tag] = s
	r.mu.Unlock()
}

// replace swaps old for fresh under ep, used when a peer restarts its
// handshake.
func (r *registry) replace(old, fresh *Session, ep netip.AddrPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(old)
	r.byEndpoint[ep] = fresh
}

// remove drops every index entry that points at s and reports whether
// there was any.
func (r *registry) remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(s)
}

func (r *registry) removeLocked(s *Session) bool {
	found := false
	for ep, cur := range r.byEndpoint {
		if cur == s {
			delete(r.byEndpoint, ep)
			found = true
		}
	}
	for h, cur := range r.byHash {
		if cur == s {
			delete(r.byHash, h)
			found = true
		}
	}
	for tag, cur := range r.byRelayTag {
		if cur == s {
			delete(r.byRelayTag, tag)
			found = true
		}
	}
	return found
}

// all returns every distinct live session.
func (r *registry) all() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[*Session]struct{}, len(r.byEndpoint)+len(r.byHash))
	out := make([]*Session, 0, len(r.byEndpoint))
	for _, s := range r.byEndpoint {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range r.byHash {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}
