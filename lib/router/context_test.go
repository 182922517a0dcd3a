package router

import (
	"net/netip"
	"testing"

	"github.com/go-i2p/go-ssu/lib/common/router_identity"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T) *Context {
	t.Helper()
	priv, err := router_identity.GeneratePrivateIdentity(router_identity.KEYCERT_SIGN_ED25519)
	require.NoError(t, err)
	c, err := NewContext(priv)
	require.NoError(t, err)
	return c
}

func TestContextIdentity(t *testing.T) {
	a := newTestContext(t)
	b := newTestContext(t)
	assert.NotEqual(t, a.IntroKey(), b.IntroKey())
	assert.NotNil(t, a.Signer())
	assert.NotEqual(t, a.Identity().Hash(), b.Identity().Hash())
	assert.False(t, a.ExternalAddr().IsValid())
	assert.False(t, a.Firewalled())
}

func TestContextRebindKeepsLatest(t *testing.T) {
	c := newTestContext(t)
	first := netip.MustParseAddrPort("127.0.0.1:1000")
	second := netip.MustParseAddrPort("127.0.0.1:2000")
	c.Rebind(first)
	c.Rebind(second)

	select {
	case got := <-c.AddressChanged():
		assert.Equal(t, second, got)
	default:
		t.Fatal("no address change queued")
	}
	select {
	case got := <-c.AddressChanged():
		t.Fatalf("unexpected second change %s", got)
	default:
	}
}

func TestContextUpdateReachability(t *testing.T) {
	c := newTestContext(t)
	observed := netip.MustParseAddrPort("203.0.113.7:4444")

	c.UpdateReachability(ssu.PeerTestResult{Status: ssu.PeerTestFirewalled, Observed: observed})
	assert.True(t, c.Firewalled())
	assert.Equal(t, observed, c.ExternalAddr())

	c.UpdateReachability(ssu.PeerTestResult{Status: ssu.PeerTestUnknown})
	assert.True(t, c.Firewalled())

	c.UpdateReachability(ssu.PeerTestResult{Status: ssu.PeerTestReachable, Observed: observed})
	assert.False(t, c.Firewalled())
	assert.Equal(t, observed, c.ExternalAddr())
}
