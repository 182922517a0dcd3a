package ssu

import (
	"encoding/binary"
	"net/netip"
	"sync"

	"github.com/go-i2p/crypto/rand"
	"github.com/samber/oops"
)

// relayBook tracks both halves of introductions: the relayed sessions we
// are waiting on as Alice, by nonce, and the tags we issued as Bob.
type relayBook struct {
	mu      sync.Mutex
	pending map[uint32]*Session
	tags    map[uint32]struct{}
}

func newRelayBook() *relayBook {
	return &relayBook{
		pending: make(map[uint32]*Session),
		tags:    make(map[uint32]struct{}),
	}
}

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// newNonce reserves a fresh nonce for s.
func (r *relayBook) newNonce(s *Session) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		n, err := randomUint32()
		if err != nil {
			return 0, oops.Wrapf(err, "relay nonce")
		}
		if _, taken := r.pending[n]; n != 0 && !taken {
			r.pending[n] = s
			return n, nil
		}
	}
}

func (r *relayBook) take(nonce uint32) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.pending[nonce]
	delete(r.pending, nonce)
	return s
}

// forget drops any nonce held by s.
func (r *relayBook) forget(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n, cur := range r.pending {
		if cur == s {
			delete(r.pending, n)
		}
	}
}

// issueTag returns a non-zero tag not handed out before.
func (r *relayBook) issueTag() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		t, err := randomUint32()
		if err != nil {
			return 0
		}
		if _, taken := r.tags[t]; t != 0 && !taken {
			r.tags[t] = struct{}{}
			return t
		}
	}
}

func (r *relayBook) releaseTag(tag uint32) {
	if tag == 0 {
		return
	}
	r.mu.Lock()
	delete(r.tags, tag)
	r.mu.Unlock()
}

// introduction is what Bob sends for one RelayRequest.
type introduction struct {
	charlie      netip.AddrPort
	charlieKeys  Keys
	alice        netip.AddrPort
	intro        RelayIntro
	response     RelayResponse
	responseKeys Keys
}

// planIntroduction builds Bob's answer to a RelayRequest received from
// from. charlie is the session holding the requested relay tag.
func planIntroduction(req *RelayRequest, from netip.AddrPort, charlie *Session) (*introduction, error) {
	keys, ok := charlie.establishedKeys()
	if !ok {
		return nil, oops.Wrapf(ErrPeerUnknown, "relay tag %d has no established session", req.RelayTag)
	}
	alice := from
	if req.Alice.Addr().IsValid() && req.Alice.Port() != 0 {
		alice = req.Alice
	}
	if !acceptableAddr(alice.Addr()) {
		return nil, oops.Wrapf(ErrInvalidAddress, "relay request for %s", alice)
	}
	ep := charlie.Endpoint()
	return &introduction{
		charlie:      ep,
		charlieKeys:  keys,
		alice:        alice,
		intro:        RelayIntro{Alice: alice, Challenge: req.Challenge},
		response:     RelayResponse{Charlie: ep, Alice: alice, Nonce: req.Nonce},
		responseKeys: IntroKeys(req.IntroKey),
	}, nil
}
