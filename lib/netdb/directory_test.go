package netdb

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/go-i2p/go-ssu/lib/common/router_identity"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeer(t *testing.T, host string) ssu.PeerInfo {
	t.Helper()
	priv, err := router_identity.GeneratePrivateIdentity(router_identity.KEYCERT_SIGN_ED25519)
	require.NoError(t, err)
	var key [ssu.KeySize]byte
	key[0] = 0x42
	return ssu.PeerInfo{
		Identity: priv.Identity,
		Addresses: []ssu.PeerAddress{{
			Endpoint: netip.MustParseAddrPort(host),
			IntroKey: key,
		}},
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestDirectoryAddLookup(t *testing.T) {
	d := NewDirectory(nil)
	peer := testPeer(t, "10.0.0.1:9000")
	require.NoError(t, d.Add(peer))

	got, ok := d.Lookup(peer.Identity.Hash())
	require.True(t, ok)
	assert.Equal(t, peer.Addresses, got.Addresses)
	assert.Equal(t, 1, d.Len())
	assert.Equal(t, peer.Identity.Hash(), d.Hashes()[0])

	// Callers cannot mutate the stored addresses.
	got.Addresses[0].IntroKey[0] = 0
	again, _ := d.Lookup(peer.Identity.Hash())
	assert.Equal(t, byte(0x42), again.Addresses[0].IntroKey[0])

	d.Remove(peer.Identity.Hash())
	_, ok = d.Lookup(peer.Identity.Hash())
	assert.False(t, ok)
}

func TestDirectoryRejectsIncompletePeers(t *testing.T) {
	d := NewDirectory(nil)
	assert.ErrorIs(t, d.Add(ssu.PeerInfo{}), ErrMissingIdentity)

	peer := testPeer(t, "10.0.0.1:9000")
	peer.Addresses = nil
	assert.ErrorIs(t, d.Add(peer), ErrNoAddresses)
}

func TestDirectoryBansAfterSignatureFailure(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	d := NewDirectory(clock.Now)
	peer := testPeer(t, "10.0.0.2:9000")
	require.NoError(t, d.Add(peer))
	hash := peer.Identity.Hash()

	d.ReportSignatureFailure(hash)
	_, ok := d.Lookup(hash)
	assert.False(t, ok)

	clock.Advance(BanDuration + time.Second)
	_, ok = d.Lookup(hash)
	assert.True(t, ok)

	stats := d.Tracker().GetStats(hash)
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.SignatureFailures)
}

func TestDirectorySuccessLiftsBan(t *testing.T) {
	d := NewDirectory(nil)
	peer := testPeer(t, "10.0.0.3:9000")
	require.NoError(t, d.Add(peer))
	hash := peer.Identity.Hash()

	d.ReportSignatureFailure(hash)
	d.ReportSuccess(hash, 40*time.Millisecond)
	_, ok := d.Lookup(hash)
	assert.True(t, ok)
}

func TestPeerTrackerStaleness(t *testing.T) {
	pt := NewPeerTracker(nil)
	peer := testPeer(t, "10.0.0.4:9000").Identity.Hash()

	assert.Equal(t, -1.0, pt.GetSuccessRate(peer))
	assert.False(t, pt.IsLikelyStale(peer))

	pt.RecordSuccess(peer, 100*time.Millisecond)
	pt.RecordSuccess(peer, 50*time.Millisecond)
	assert.Equal(t, 75*time.Millisecond, pt.GetStats(peer).AvgLatency)

	pt.RecordTimeout(peer)
	pt.RecordTimeout(peer)
	assert.False(t, pt.IsLikelyStale(peer))
	pt.RecordTimeout(peer)
	assert.True(t, pt.IsLikelyStale(peer))
	assert.InDelta(t, 0.4, pt.GetSuccessRate(peer), 1e-9)

	pt.RecordSuccess(peer, time.Millisecond)
	assert.False(t, pt.IsLikelyStale(peer))

	pt.Forget(peer)
	assert.Nil(t, pt.GetStats(peer))
}
