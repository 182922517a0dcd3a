package ssu

import (
	"encoding/binary"
	"net/netip"
	"sync"
	"time"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-ssu/lib/util/time/monotonic"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// PeerTestRole is the part this router plays in one test.
type PeerTestRole int

const (
	RoleAlice PeerTestRole = iota
	RoleBob
	RoleCharlie
)

func (r PeerTestRole) String() string {
	switch r {
	case RoleAlice:
		return "alice"
	case RoleBob:
		return "bob"
	case RoleCharlie:
		return "charlie"
	default:
		return "unknown"
	}
}

// peerTestNetwork is what the manager needs from the host.
type peerTestNetwork interface {
	introKey() [KeySize]byte
	// sessionKeysFor returns the keys of the established session with ep.
	sessionKeysFor(ep netip.AddrPort) (Keys, bool)
	// pickCharlie chooses an established peer other than the excluded ones.
	pickCharlie(exclude ...netip.AddrPort) (netip.AddrPort, Keys, bool)
}

// peerTestSend is one PeerTest packet the manager wants sent.
type peerTestSend struct {
	To   netip.AddrPort
	Keys Keys
	Msg  PeerTestPayload
}

type peerTest struct {
	role    PeerTestRole
	nonce   uint32
	started time.Time

	alice         netip.AddrPort
	aliceIntroKey [KeySize]byte
	bob           netip.AddrPort
	charlie       netip.AddrPort

	observed    netip.AddrPort
	heardBob    bool
	directCount int
	confirmed   bool
}

// PeerTestManager keeps the role bookkeeping of running tests, keyed by
// Alice's nonce. A nonce already in use is never taken over by a later
// packet; such packets are ignored.
type PeerTestManager struct {
	mu       sync.Mutex
	tests    map[uint32]*peerTest
	lifetime time.Duration
}

func NewPeerTestManager(lifetime time.Duration) *PeerTestManager {
	if lifetime <= 0 {
		lifetime = PeerTestLifetime
	}
	return &PeerTestManager{tests: make(map[uint32]*peerTest), lifetime: lifetime}
}

// Active is the number of tests being tracked.
func (m *PeerTestManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tests)
}

// Role reports our role for nonce.
func (m *PeerTestManager) Role(nonce uint32) (PeerTestRole, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tests[nonce]
	if !ok {
		return 0, false
	}
	return t.role, true
}

// Start begins a test as Alice through the established peer bob.
func (m *PeerTestManager) Start(net peerTestNetwork, bob netip.AddrPort, now time.Time) (uint32, []peerTestSend, error) {
	keys, ok := net.sessionKeysFor(bob)
	if !ok {
		return 0, nil, oops.Wrapf(ErrPeerUnknown, "no established session with %s", bob)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var nonce uint32
	for {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			return 0, nil, oops.Wrapf(err, "peer test nonce")
		}
		nonce = binary.BigEndian.Uint32(b[:])
		if _, taken := m.tests[nonce]; !taken {
			break
		}
	}
	m.tests[nonce] = &peerTest{role: RoleAlice, nonce: nonce, started: now, bob: bob}
	return nonce, []peerTestSend{{
		To:   bob,
		Keys: keys,
		Msg:  PeerTestPayload{Nonce: nonce, IntroKey: net.introKey()},
	}}, nil
}

// Receive processes one PeerTest. inSession says whether it arrived under
// the keys of an established session with from. It returns the packets to
// send and, when a test we started finishes, its result.
func (m *PeerTestManager) Receive(net peerTestNetwork, from netip.AddrPort, msg *PeerTestPayload, inSession bool, now time.Time) ([]peerTestSend, *PeerTestResult) {
	if msg.HasAddress() && (!acceptableAddr(msg.Alice.Addr()) || msg.Alice.Port() == 0) {
		log.WithFields(logger.Fields{
			"at":     "(PeerTestManager) Receive",
			"reason": "bad_alice_address",
			"nonce":  msg.Nonce,
		}).Debug("dropping peer test")
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tests[msg.Nonce]
	if ok && monotonic.IsExpiredAt(t.started, now, m.lifetime) {
		delete(m.tests, msg.Nonce)
		ok = false
	}
	if !ok {
		return m.newTest(net, from, msg, inSession, now), nil
	}
	switch t.role {
	case RoleAlice:
		return m.asAlice(t, from, msg, inSession)
	case RoleBob:
		return m.asBob(net, t, from, msg, inSession), nil
	default:
		return m.asCharlie(net, t, from, msg, inSession), nil
	}
}

// newTest takes the Bob role for an address-less packet from an
// established peer and the Charlie role for a filled one.
func (m *PeerTestManager) newTest(net peerTestNetwork, from netip.AddrPort, msg *PeerTestPayload, inSession bool, now time.Time) []peerTestSend {
	if !inSession {
		return nil
	}
	if !msg.HasAddress() {
		charlie, keys, ok := net.pickCharlie(from)
		if !ok {
			log.WithFields(logger.Fields{
				"at":     "(PeerTestManager) newTest",
				"reason": "no_charlie",
				"nonce":  msg.Nonce,
			}).Debug("cannot forward peer test")
			return nil
		}
		m.tests[msg.Nonce] = &peerTest{
			role:          RoleBob,
			nonce:         msg.Nonce,
			started:       now,
			alice:         from,
			aliceIntroKey: msg.IntroKey,
			bob:           from,
			charlie:       charlie,
		}
		return []peerTestSend{{
			To:   charlie,
			Keys: keys,
			Msg:  PeerTestPayload{Nonce: msg.Nonce, Alice: from, IntroKey: msg.IntroKey},
		}}
	}

	bobKeys, ok := net.sessionKeysFor(from)
	if !ok {
		return nil
	}
	m.tests[msg.Nonce] = &peerTest{
		role:          RoleCharlie,
		nonce:         msg.Nonce,
		started:       now,
		alice:         msg.Alice,
		aliceIntroKey: msg.IntroKey,
		bob:           from,
	}
	ours := net.introKey()
	return []peerTestSend{
		{
			To:   from,
			Keys: bobKeys,
			Msg:  PeerTestPayload{Nonce: msg.Nonce, Alice: msg.Alice, IntroKey: ours},
		},
		{
			To:   msg.Alice,
			Keys: IntroKeys(msg.IntroKey),
			Msg:  PeerTestPayload{Nonce: msg.Nonce, Alice: msg.Alice, IntroKey: ours},
		},
	}
}

// asBob relays Charlie's reply back to Alice.
func (m *PeerTestManager) asBob(net peerTestNetwork, t *peerTest, from netip.AddrPort, msg *PeerTestPayload, inSession bool) []peerTestSend {
	if !inSession || from != t.charlie || t.confirmed {
		return nil
	}
	keys, ok := net.sessionKeysFor(t.alice)
	if !ok {
		return nil
	}
	t.confirmed = true
	return []peerTestSend{{
		To:   t.alice,
		Keys: keys,
		Msg:  PeerTestPayload{Nonce: t.nonce, Alice: t.alice, IntroKey: msg.IntroKey},
	}}
}

// asCharlie answers Alice's confirmation once.
func (m *PeerTestManager) asCharlie(net peerTestNetwork, t *peerTest, from netip.AddrPort, msg *PeerTestPayload, inSession bool) []peerTestSend {
	if inSession || t.confirmed || from.Addr() != t.alice.Addr() {
		return nil
	}
	t.confirmed = true
	return []peerTestSend{{
		To:   from,
		Keys: IntroKeys(t.aliceIntroKey),
		Msg:  PeerTestPayload{Nonce: t.nonce, Alice: from, IntroKey: net.introKey()},
	}}
}

// asAlice records Bob's relay and Charlie's direct packets. The first
// direct packet is confirmed back to Charlie; the second completes the
// test.
func (m *PeerTestManager) asAlice(t *peerTest, from netip.AddrPort, msg *PeerTestPayload, inSession bool) ([]peerTestSend, *PeerTestResult) {
	if inSession && from == t.bob {
		t.heardBob = true
		t.observed = msg.Alice
		return nil, nil
	}
	if inSession {
		return nil, nil
	}
	if t.charlie.IsValid() && from != t.charlie {
		log.WithFields(logger.Fields{
			"at":     "(PeerTestManager) asAlice",
			"reason": "nonce_claimed",
			"nonce":  t.nonce,
			"from":   from.String(),
		}).Debug("ignoring second charlie")
		return nil, nil
	}
	t.charlie = from
	t.directCount++
	if msg.HasAddress() {
		t.observed = msg.Alice
	}
	if t.directCount == 1 {
		return []peerTestSend{{
			To:   from,
			Keys: IntroKeys(msg.IntroKey),
			Msg:  PeerTestPayload{Nonce: t.nonce},
		}}, nil
	}
	delete(m.tests, t.nonce)
	return nil, &PeerTestResult{Nonce: t.nonce, Status: PeerTestReachable, Observed: t.observed, Charlie: t.charlie}
}

// Expire drops tests older than the lifetime and returns the results of
// our own tests among them.
func (m *PeerTestManager) Expire(now time.Time) []PeerTestResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []PeerTestResult
	for nonce, t := range m.tests {
		if !monotonic.IsExpiredAt(t.started, now, m.lifetime) {
			continue
		}
		delete(m.tests, nonce)
		if t.role != RoleAlice {
			continue
		}
		status := PeerTestUnknown
		switch {
		case t.directCount > 0:
			status = PeerTestReachable
		case t.heardBob:
			status = PeerTestFirewalled
		}
		results = append(results, PeerTestResult{Nonce: nonce, Status: status, Observed: t.observed, Charlie: t.charlie})
	}
	return results
}
