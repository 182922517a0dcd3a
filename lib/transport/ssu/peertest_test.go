package ssu

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePeerTestNet struct {
	key      [KeySize]byte
	sessions map[netip.AddrPort]Keys
}

func newFakePeerTestNet(id byte) *fakePeerTestNet {
	n := &fakePeerTestNet{sessions: make(map[netip.AddrPort]Keys)}
	n.key[0] = id
	return n
}

func (n *fakePeerTestNet) introKey() [KeySize]byte { return n.key }

func (n *fakePeerTestNet) sessionKeysFor(ep netip.AddrPort) (Keys, bool) {
	k, ok := n.sessions[ep]
	return k, ok
}

func (n *fakePeerTestNet) pickCharlie(exclude ...netip.AddrPort) (netip.AddrPort, Keys, bool) {
	for ep, k := range n.sessions {
		skip := false
		for _, e := range exclude {
			skip = skip || e == ep
		}
		if !skip {
			return ep, k, true
		}
	}
	return netip.AddrPort{}, Keys{}, false
}

var (
	aliceEP   = netip.MustParseAddrPort("192.0.2.1:1001")
	bobEP     = netip.MustParseAddrPort("192.0.2.2:1002")
	charlieEP = netip.MustParseAddrPort("192.0.2.3:1003")
)

type peerTestParties struct {
	alice, bob, charlie          *PeerTestManager
	aliceNet, bobNet, charlieNet *fakePeerTestNet
}

func newPeerTestParties() *peerTestParties {
	p := &peerTestParties{
		alice:      NewPeerTestManager(PeerTestLifetime),
		bob:        NewPeerTestManager(PeerTestLifetime),
		charlie:    NewPeerTestManager(PeerTestLifetime),
		aliceNet:   newFakePeerTestNet(1),
		bobNet:     newFakePeerTestNet(2),
		charlieNet: newFakePeerTestNet(3),
	}
	ab, bc := Keys{MAC: [KeySize]byte{0xab}}, Keys{MAC: [KeySize]byte{0xbc}}
	p.aliceNet.sessions[bobEP] = ab
	p.bobNet.sessions[aliceEP] = ab
	p.bobNet.sessions[charlieEP] = bc
	p.charlieNet.sessions[bobEP] = bc
	return p
}

func only(t *testing.T, sends []peerTestSend) peerTestSend {
	t.Helper()
	require.Len(t, sends, 1)
	return sends[0]
}

func TestPeerTest_FullExchangeIsReachable(t *testing.T) {
	p := newPeerTestParties()
	now := time.Unix(1700000000, 0)

	nonce, sends, err := p.alice.Start(p.aliceNet, bobEP, now)
	require.NoError(t, err)
	toBob := only(t, sends)
	assert.Equal(t, bobEP, toBob.To)
	assert.False(t, toBob.Msg.HasAddress())
	assert.Equal(t, p.aliceNet.key, toBob.Msg.IntroKey)

	sends, res := p.bob.Receive(p.bobNet, aliceEP, &toBob.Msg, true, now)
	assert.Nil(t, res)
	toCharlie := only(t, sends)
	assert.Equal(t, charlieEP, toCharlie.To)
	assert.Equal(t, aliceEP, toCharlie.Msg.Alice)
	role, ok := p.bob.Role(nonce)
	require.True(t, ok)
	assert.Equal(t, RoleBob, role)

	sends, _ = p.charlie.Receive(p.charlieNet, bobEP, &toCharlie.Msg, true, now)
	require.Len(t, sends, 2)
	charlieToBob, charlieToAlice := sends[0], sends[1]
	assert.Equal(t, bobEP, charlieToBob.To)
	assert.Equal(t, aliceEP, charlieToAlice.To)
	assert.Equal(t, IntroKeys(p.aliceNet.key), charlieToAlice.Keys)
	assert.Equal(t, p.charlieNet.key, charlieToAlice.Msg.IntroKey)

	sends, _ = p.bob.Receive(p.bobNet, charlieEP, &charlieToBob.Msg, true, now)
	bobToAlice := only(t, sends)
	assert.Equal(t, aliceEP, bobToAlice.To)

	sends, res = p.alice.Receive(p.aliceNet, bobEP, &bobToAlice.Msg, true, now)
	assert.Empty(t, sends)
	assert.Nil(t, res)

	sends, res = p.alice.Receive(p.aliceNet, charlieEP, &charlieToAlice.Msg, false, now)
	assert.Nil(t, res)
	aliceToCharlie := only(t, sends)
	assert.Equal(t, charlieEP, aliceToCharlie.To)
	assert.Equal(t, IntroKeys(p.charlieNet.key), aliceToCharlie.Keys)

	sends, _ = p.charlie.Receive(p.charlieNet, aliceEP, &aliceToCharlie.Msg, false, now)
	charlieConfirm := only(t, sends)
	assert.Equal(t, aliceEP, charlieConfirm.To)

	sends, res = p.alice.Receive(p.aliceNet, charlieEP, &charlieConfirm.Msg, false, now)
	assert.Empty(t, sends)
	require.NotNil(t, res)
	assert.Equal(t, nonce, res.Nonce)
	assert.Equal(t, PeerTestReachable, res.Status)
	assert.Equal(t, aliceEP, res.Observed)
	assert.Equal(t, charlieEP, res.Charlie)
	assert.Zero(t, p.alice.Active())
}

func TestPeerTest_OnlyBobHeardIsFirewalled(t *testing.T) {
	p := newPeerTestParties()
	now := time.Unix(1700000000, 0)
	nonce, _, err := p.alice.Start(p.aliceNet, bobEP, now)
	require.NoError(t, err)

	relayed := &PeerTestPayload{Nonce: nonce, Alice: aliceEP, IntroKey: p.charlieNet.key}
	_, res := p.alice.Receive(p.aliceNet, bobEP, relayed, true, now)
	require.Nil(t, res)

	assert.Empty(t, p.alice.Expire(now.Add(PeerTestLifetime-time.Second)))
	results := p.alice.Expire(now.Add(PeerTestLifetime))
	require.Len(t, results, 1)
	assert.Equal(t, PeerTestFirewalled, results[0].Status)
	assert.Equal(t, aliceEP, results[0].Observed)
}

func TestPeerTest_NothingHeardIsUnknown(t *testing.T) {
	p := newPeerTestParties()
	now := time.Unix(1700000000, 0)
	_, _, err := p.alice.Start(p.aliceNet, bobEP, now)
	require.NoError(t, err)
	results := p.alice.Expire(now.Add(time.Minute))
	require.Len(t, results, 1)
	assert.Equal(t, PeerTestUnknown, results[0].Status)
}

func TestPeerTest_NonceCollisionIgnoresNewcomer(t *testing.T) {
	p := newPeerTestParties()
	now := time.Unix(1700000000, 0)
	msg := &PeerTestPayload{Nonce: 77, IntroKey: p.aliceNet.key}

	sends, _ := p.bob.Receive(p.bobNet, aliceEP, msg, true, now)
	require.Len(t, sends, 1)

	other := netip.MustParseAddrPort("192.0.2.9:1009")
	p.bobNet.sessions[other] = Keys{MAC: [KeySize]byte{0x99}}
	sends, _ = p.bob.Receive(p.bobNet, other, msg, true, now)
	assert.Empty(t, sends)
	role, _ := p.bob.Role(77)
	assert.Equal(t, RoleBob, role)
}

func TestPeerTest_SecondCharlieIgnored(t *testing.T) {
	p := newPeerTestParties()
	now := time.Unix(1700000000, 0)
	nonce, _, err := p.alice.Start(p.aliceNet, bobEP, now)
	require.NoError(t, err)

	direct := &PeerTestPayload{Nonce: nonce, Alice: aliceEP, IntroKey: p.charlieNet.key}
	sends, _ := p.alice.Receive(p.aliceNet, charlieEP, direct, false, now)
	require.Len(t, sends, 1)

	impostor := netip.MustParseAddrPort("198.51.100.66:6666")
	sends, res := p.alice.Receive(p.aliceNet, impostor, direct, false, now)
	assert.Empty(t, sends)
	assert.Nil(t, res)
}

func TestPeerTest_UnsolicitedDirectPacketIgnored(t *testing.T) {
	p := newPeerTestParties()
	sends, res := p.charlie.Receive(p.charlieNet, aliceEP, &PeerTestPayload{Nonce: 5}, false, time.Now())
	assert.Empty(t, sends)
	assert.Nil(t, res)
	assert.Zero(t, p.charlie.Active())
}

func TestPeerTest_StartNeedsSession(t *testing.T) {
	p := newPeerTestParties()
	_, _, err := p.alice.Start(p.aliceNet, charlieEP, time.Now())
	assert.ErrorIs(t, err, ErrPeerUnknown)
}
