package router

import (
	"context"
	"math/rand/v2"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-i2p/common/base32"
	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/config"
	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/go-i2p/go-ssu/lib/keys"
	"github.com/go-i2p/go-ssu/lib/netdb"
	"github.com/go-i2p/go-ssu/lib/transport"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/go-i2p/go-ssu/lib/util/time/monotonic"
	"github.com/go-i2p/go-ssu/lib/util/time/sntp"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// Version is reported to control clients.
const Version = "0.1.0"

const (
	// PeersFile lists the peers loaded at startup, inside the working dir.
	PeersFile = "peers.yaml"
	// SelfFile is where the router writes its own peer entry.
	SelfFile = "router.yaml"

	// PeerTestInterval is how often reachability is re-tested.
	PeerTestInterval = 10 * time.Minute
	// StatsInterval is how often host statistics are logged.
	StatsInterval = time.Minute
)

// MessageHandler receives every message delivered by a peer.
type MessageHandler func(peer common.Hash, msg *i2np.Message)

// ssu router type
type Router struct {
	cfg     *config.SSUConfig
	workDir string

	rc    *Context
	clock *monotonic.Clock
	peers *netdb.Directory
	host  *ssu.Host
	mux   *transport.TransportMuxer

	handlerMu sync.RWMutex
	handler   MessageHandler

	started   time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeChnl chan struct{}
	running   bool
	runMux    sync.Mutex
	closeOnce sync.Once
}

// CreateRouter builds a router. Its keys come from workDir/router.keys,
// created on first run, and peers listed in workDir/peers.yaml are loaded
// into the directory. An empty workDir gives a throwaway identity.
func CreateRouter(cfg *config.SSUConfig, workDir string) (*Router, error) {
	if cfg == nil {
		cfg = config.DefaultSSUConfig()
	}
	ks, err := keys.LoadOrCreate(workDir, keys.DefaultName, cfg.SignatureType)
	if err != nil {
		return nil, err
	}
	if err := ks.StoreKeys(); err != nil {
		return nil, err
	}
	rc, err := NewContextWithIntroKey(ks.Identity(), ks.IntroKey())
	if err != nil {
		return nil, err
	}
	hash := ks.Identity().Identity.Hash()
	log.WithFields(logger.Fields{
		"at":             "CreateRouter",
		"router_hash":    base32.EncodeToString(hash[:]),
		"signature_type": ks.Identity().Identity.SignatureType(),
	}).Info("router identity ready")

	r := &Router{
		cfg:       cfg,
		workDir:   workDir,
		rc:        rc,
		clock:     monotonic.NewClock(),
		closeChnl: make(chan struct{}),
	}
	r.peers = netdb.NewDirectory(r.clock.Now)
	if workDir != "" {
		if _, err := r.peers.LoadFile(filepath.Join(workDir, PeersFile)); err != nil {
			return nil, err
		}
	}

	r.host, err = ssu.NewHost(cfg, rc, r.peers, ssu.WithClock(r.clock.Now), ssu.WithObserver(r.observer()))
	if err != nil {
		return nil, err
	}
	r.mux = transport.Mux(r.host)
	return r, nil
}

func (r *Router) observer() ssu.Observer {
	return ssu.ObserverFuncs{
		Established: func(peer common.Hash, endpoint netip.AddrPort) {
			log.WithFields(logger.Fields{
				"at":        "(Router) observer",
				"peer_hash": base32.EncodeToString(peer[:])[:16],
				"endpoint":  endpoint.String(),
			}).Info("session established")
		},
		Shutdown: func(peer common.Hash, endpoint netip.AddrPort) {
			r.mux.ReleasePeer(peer)
		},
		Message: func(peer common.Hash, msg *i2np.Message) {
			r.handlerMu.RLock()
			h := r.handler
			r.handlerMu.RUnlock()
			if h == nil {
				log.WithFields(logger.Fields{
					"at":       "(Router) observer",
					"msg_type": msg.Type(),
					"msg_id":   msg.MessageID(),
				}).Debug("message received, no handler")
				return
			}
			h(peer, msg)
		},
		Exception: func(err *ssu.ConnectionError) {
			log.WithError(err).WithFields(logger.Fields{
				"at":              "(Router) observer",
				"endpoint":        err.Endpoint.String(),
				"never_connected": err.NeverConnected,
			}).Warn("session failed")
		},
		PeerTest: r.rc.UpdateReachability,
	}
}

// SetMessageHandler installs h for inbound messages.
func (r *Router) SetMessageHandler(h MessageHandler) {
	r.handlerMu.Lock()
	r.handler = h
	r.handlerMu.Unlock()
}

// Start binds the transports, writes our peer entry and starts the
// background loops.
func (r *Router) Start() error {
	r.runMux.Lock()
	defer r.runMux.Unlock()
	if r.running {
		log.WithFields(logger.Fields{
			"at":     "(Router) Start",
			"reason": "router is already running",
		}).Error("Error Starting router")
		return nil
	}
	if err := r.mux.Start(); err != nil {
		return err
	}
	if err := r.writeSelf(); err != nil {
		log.WithError(err).Warn("could not write router entry")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	if r.cfg.NTPEnabled {
		ts := sntp.NewTimestamper(r.cfg.NTPServer, nil)
		ts.AddListener(r.clock)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			ts.Run(ctx)
		}()
	}
	r.wg.Add(1)
	go r.mainloop(ctx)
	r.running = true
	r.started = r.clock.Now()
	log.WithFields(logger.Fields{
		"at":     "(Router) Start",
		"listen": r.host.LocalAddr().String(),
		"peers":  r.peers.Len(),
	}).Info("router started")
	return nil
}

func (r *Router) mainloop(ctx context.Context) {
	defer r.wg.Done()
	stats := time.NewTicker(StatsInterval)
	defer stats.Stop()
	tests := time.NewTicker(PeerTestInterval)
	defer tests.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stats.C:
			r.logStats()
		case <-tests.C:
			if _, err := r.RunPeerTest(); err != nil {
				log.WithError(err).Debug("peer test not started")
			}
		}
	}
}

func (r *Router) logStats() {
	s := r.host.Stats()
	log.WithFields(logger.Fields{
		"at":           "(Router) logStats",
		"sessions":     s.Sessions,
		"established":  s.Established,
		"handshaking":  s.Handshaking,
		"received":     s.Received,
		"sent":         s.Sent,
		"dropped":      s.Dropped,
		"mac_failures": s.MACFailures,
		"clock_offset": r.clock.Offset(),
	}).Info("host statistics")
}

// RunPeerTest starts a reachability test through a random established peer.
func (r *Router) RunPeerTest() (uint32, error) {
	var established []common.Hash
	for _, h := range r.peers.Hashes() {
		if s, ok := r.host.Session(h); ok && s.IsEstablished() {
			established = append(established, h)
		}
	}
	if len(established) == 0 {
		return 0, ssu.ErrNoPeerTestPartner
	}
	return r.host.RunPeerTest(established[rand.IntN(len(established))])
}

// SelfInfo is our own directory entry: identity, intro key and the address
// peers should dial.
func (r *Router) SelfInfo() ssu.PeerInfo {
	addr := r.rc.ExternalAddr()
	if !addr.IsValid() {
		addr = r.host.LocalAddr()
	}
	if addr.Addr().IsUnspecified() {
		loopback := netip.IPv6Loopback()
		if addr.Addr().Is4() {
			loopback = netip.AddrFrom4([4]byte{127, 0, 0, 1})
		}
		addr = netip.AddrPortFrom(loopback, addr.Port())
	}
	return ssu.PeerInfo{
		Identity:  r.rc.Identity(),
		Addresses: []ssu.PeerAddress{{Endpoint: addr, IntroKey: r.rc.IntroKey()}},
	}
}

func (r *Router) writeSelf() error {
	if r.workDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.workDir, 0o755); err != nil {
		return oops.Wrapf(err, "creating %s", r.workDir)
	}
	path := filepath.Join(r.workDir, SelfFile)
	f, err := os.Create(path)
	if err != nil {
		return oops.Wrapf(err, "creating %s", path)
	}
	if err := netdb.WritePeers(f, r.SelfInfo()); err != nil {
		f.Close()
		return err
	}
	log.WithField("path", path).Debug("router entry written")
	return f.Close()
}

// Send delivers msg to peer over the first transport that can reach it.
func (r *Router) Send(ctx context.Context, peer common.Hash, msg *i2np.Message) error {
	return r.mux.Send(ctx, peer, msg)
}

// Directory is the router's peer directory.
func (r *Router) Directory() *netdb.Directory { return r.peers }

// Host is the router's SSU transport.
func (r *Router) Host() *ssu.Host { return r.host }

// Context is the router's view of itself.
func (r *Router) Context() *Context { return r.rc }

// IsRunning reports whether Start succeeded and Stop has not been called.
func (r *Router) IsRunning() bool {
	r.runMux.Lock()
	defer r.runMux.Unlock()
	return r.running
}

// Uptime is the time since Start, zero when not running.
func (r *Router) Uptime() time.Duration {
	r.runMux.Lock()
	defer r.runMux.Unlock()
	if !r.running {
		return 0
	}
	return r.clock.Now().Sub(r.started)
}

// ClockOffset is the correction NTP applied to the local clock.
func (r *Router) ClockOffset() time.Duration {
	return r.clock.Offset()
}

// Wait blocks until router is fully stopped
func (r *Router) Wait() {
	<-r.closeChnl
}

// Stop signals Wait to return. The transports stay open until Close.
func (r *Router) Stop() {
	r.runMux.Lock()
	defer r.runMux.Unlock()
	if !r.running {
		return
	}
	r.running = false
	if r.cancel != nil {
		r.cancel()
	}
	close(r.closeChnl)
}

// Close stops the background loops and closes every transport. Calling it
// more than once is harmless.
func (r *Router) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.Stop()
		r.wg.Wait()
		err = r.mux.Close()
	})
	return err
}
