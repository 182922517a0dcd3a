package i2pcontrol

import (
	"testing"

	"github.com/go-i2p/go-ssu/lib/config"
	"github.com/go-i2p/go-ssu/lib/router"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterStatsProvider(t *testing.T) {
	if testing.Short() {
		t.Skip("binds a UDP socket")
	}
	cfg := config.DefaultSSUConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	r, err := router.CreateRouter(cfg, "")
	require.NoError(t, err)
	defer r.Close()

	p := NewRouterStatsProvider(r, router.Version)
	info := p.GetRouterInfo()
	assert.Equal(t, StatusError, info.NetStatus)
	assert.False(t, p.IsRunning())

	require.NoError(t, r.Start())
	info = p.GetRouterInfo()
	assert.Equal(t, router.Version, info.Version)
	assert.Equal(t, StatusTesting, info.NetStatus)
	assert.Zero(t, info.KnownPeers)

	r.Context().UpdateReachability(ssu.PeerTestResult{
		Status:   ssu.PeerTestFirewalled,
		Observed: r.Host().LocalAddr(),
	})
	info = p.GetRouterInfo()
	assert.Equal(t, StatusFirewalled, info.NetStatus)
	assert.NotEmpty(t, info.External)

	_, err = p.RunPeerTest()
	assert.ErrorIs(t, err, ssu.ErrNoPeerTestPartner)
	assert.Zero(t, p.GetHostStats().Established)
}
