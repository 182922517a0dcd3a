package i2pcontrol

import (
	"time"

	"github.com/go-i2p/go-ssu/lib/netdb"
	"github.com/go-i2p/go-ssu/lib/router"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
)

// Reachability codes reported as i2p.router.net.status.
const (
	StatusOK         = 0
	StatusTesting    = 1
	StatusFirewalled = 2
	StatusError      = 5
)

// RouterStats is a snapshot of the router for RouterInfo.
type RouterStats struct {
	Uptime      int64 // milliseconds
	Version     string
	Status      string
	NetStatus   int
	KnownPeers  int
	ActivePeers int
	External    string
	ClockOffset int64 // milliseconds
}

// RouterStatsProvider is what the handlers need from a router.
type RouterStatsProvider interface {
	GetRouterInfo() RouterStats
	GetHostStats() ssu.HostStats
	IsRunning() bool
	RunPeerTest() (uint32, error)
	Stop()
}

// RouterAccess is the part of *router.Router the provider reads.
type RouterAccess interface {
	Context() *router.Context
	Directory() *netdb.Directory
	Host() *ssu.Host
	ClockOffset() time.Duration
	Uptime() time.Duration
	IsRunning() bool
	RunPeerTest() (uint32, error)
	Stop()
}

type routerStatsProvider struct {
	r       RouterAccess
	version string
}

// NewRouterStatsProvider reports on r.
func NewRouterStatsProvider(r RouterAccess, version string) RouterStatsProvider {
	return &routerStatsProvider{r: r, version: version}
}

func (p *routerStatsProvider) GetRouterInfo() RouterStats {
	rc := p.r.Context()
	host := p.r.Host()
	stats := RouterStats{
		Uptime:      p.r.Uptime().Milliseconds(),
		Version:     p.version,
		KnownPeers:  p.r.Directory().Len(),
		ActivePeers: host.Stats().Established,
		ClockOffset: p.r.ClockOffset().Milliseconds(),
	}
	if ext := rc.ExternalAddr(); ext.IsValid() {
		stats.External = ext.String()
	}
	switch {
	case !p.r.IsRunning():
		stats.NetStatus, stats.Status = StatusError, "Not running"
	case rc.Firewalled():
		stats.NetStatus, stats.Status = StatusFirewalled, "Firewalled"
	case stats.External == "":
		stats.NetStatus, stats.Status = StatusTesting, "Testing"
	default:
		stats.NetStatus, stats.Status = StatusOK, "OK"
	}
	return stats
}

func (p *routerStatsProvider) GetHostStats() ssu.HostStats { return p.r.Host().Stats() }
func (p *routerStatsProvider) IsRunning() bool             { return p.r.IsRunning() }
func (p *routerStatsProvider) RunPeerTest() (uint32, error) {
	return p.r.RunPeerTest()
}
func (p *routerStatsProvider) Stop() { p.r.Stop() }

var _ RouterAccess = (*router.Router)(nil)
