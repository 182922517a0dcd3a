package ssu

import (
	"context"
	"errors"
	"hash/fnv"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/config"
	"github.com/go-i2p/go-ssu/lib/crypto/dh"
	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

// Option configures a Host.
type Option func(*Host)

// WithClock replaces the time source used for every session timer.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

// WithObserver registers o before the host starts.
func WithObserver(o Observer) Option {
	return func(h *Host) { h.notifier.add(o) }
}

type inbound struct {
	from netip.AddrPort
	data []byte
}

type outbound struct {
	to   netip.AddrPort
	data []byte
	// flushed, when set, marks a barrier: the send loop closes it once
	// everything queued before it was written.
	flushed chan struct{}
}

type removal struct {
	s   *Session
	err error
}

// Host owns the UDP socket and every session on it.
type Host struct {
	cfg    *config.SSUConfig
	router RouterContext
	peers  PeerDirectory
	now    func() time.Time

	env       *env
	registry  *registry
	stats     *EndpointStatistics
	pool      *BufferPool
	keys      *dh.KeyPool
	notifier  *notifier
	limiter   *sessionLimiter
	peerTests *PeerTestManager
	relays    *relayBook

	connMu sync.RWMutex
	conn   *net.UDPConn
	local  netip.AddrPort

	shards   []chan inbound
	sendq    chan outbound
	removals chan removal

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	readers   sync.WaitGroup
	closeOnce sync.Once
	started   atomic.Bool

	received    atomic.Uint64
	sent        atomic.Uint64
	dropped     atomic.Uint64
	macFailures atomic.Uint64
	removed     atomic.Uint64
}

// NewHost builds a host. Nothing is bound until Start.
func NewHost(cfg *config.SSUConfig, router RouterContext, peers PeerDirectory, opts ...Option) (*Host, error) {
	if cfg == nil {
		cfg = config.DefaultSSUConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, oops.Wrapf(err, "ssu config")
	}
	h := &Host{
		cfg:       cfg,
		router:    router,
		peers:     peers,
		now:       time.Now,
		registry:  newRegistry(),
		stats:     NewEndpointStatistics(),
		pool:      NewBufferPool(DefaultBufferPoolSize),
		notifier:  newNotifier(cfg.SendQueueSize),
		limiter:   newSessionLimiter(cfg.NewSessionRate, cfg.NewSessionBurst),
		peerTests: NewPeerTestManager(PeerTestLifetime),
		relays:    newRelayBook(),
		sendq:     make(chan outbound, cfg.SendQueueSize),
		removals:  make(chan removal, cfg.SendQueueSize),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.keys = dh.NewKeyPool(cfg.KeyPoolSize)
	h.env = &env{
		cfg:       cfg,
		router:    router,
		keys:      h.keys,
		pool:      h.pool,
		validator: i2np.NewExpirationValidator().WithTimeSource(h.now),
		localAddr: h.advertisedAddr,
		issueRelayTag: func() uint32 {
			if !h.introducing() {
				return 0
			}
			return h.relays.issueTag()
		},
	}
	return h, nil
}

// AddObserver registers an observer for session events.
func (h *Host) AddObserver(o Observer) {
	h.notifier.add(o)
}

// Start binds the socket and starts the reader, the workers, the send
// writer and the housekeeping loop.
func (h *Host) Start() error {
	if !h.started.CompareAndSwap(false, true) {
		return nil
	}
	conn, err := listen(h.cfg.ListenAddress)
	if err != nil {
		return err
	}
	h.setConn(conn)

	h.shards = make([]chan inbound, h.cfg.Workers)
	for i := range h.shards {
		h.shards[i] = make(chan inbound, h.cfg.SendQueueSize/h.cfg.Workers+1)
		h.wg.Add(1)
		go h.worker(h.shards[i])
	}
	h.wg.Add(3)
	go h.sendLoop()
	go h.housekeeping()
	go h.watchAddress()
	h.readers.Add(1)
	go h.readLoop(conn)

	log.WithFields(logger.Fields{
		"at":      "(Host) Start",
		"listen":  h.LocalAddr().String(),
		"workers": h.cfg.Workers,
	}).Info("SSU host started")
	return nil
}

func listen(addr string) (*net.UDPConn, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, oops.Wrapf(err, "resolving %s", addr)
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, oops.Wrapf(err, "binding %s", addr)
	}
	return conn, nil
}

func (h *Host) setConn(conn *net.UDPConn) {
	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
	h.connMu.Lock()
	h.conn = conn
	h.local = netip.AddrPortFrom(local.Addr().Unmap(), local.Port())
	h.connMu.Unlock()
}

func (h *Host) currentConn() *net.UDPConn {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return h.conn
}

// LocalAddr is the address the socket is bound to.
func (h *Host) LocalAddr() netip.AddrPort {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return h.local
}

// advertisedAddr is the address peers dial: the published one when the
// router knows it, the bound socket otherwise.
func (h *Host) advertisedAddr() netip.AddrPort {
	if ext := h.router.ExternalAddr(); ext.IsValid() {
		return ext
	}
	return h.LocalAddr()
}

// introducing reports whether we hand out relay tags. A firewalled router
// cannot receive the hole punches that introductions rely on.
func (h *Host) introducing() bool {
	return h.cfg.IntroducerEnabled && !h.router.Firewalled()
}

func (h *Host) readLoop(conn *net.UDPConn) {
	defer h.readers.Done()
	buf := make([]byte, 1<<16)
	for {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if h.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.WithError(err).WithField("at", "(Host) readLoop").Warn("read failed")
			continue
		}
		h.received.Add(1)
		if n < MinPacketSize {
			continue
		}
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())
		d := inbound{from: from, data: append([]byte(nil), buf[:n]...)}
		select {
		case h.shards[shardFor(from, len(h.shards))] <- d:
		case <-h.ctx.Done():
			return
		default:
			h.dropped.Add(1)
		}
	}
}

// shardFor keeps all datagrams from one endpoint on one worker.
func shardFor(ep netip.AddrPort, n int) int {
	f := fnv.New32a()
	b, _ := ep.MarshalBinary()
	f.Write(b)
	return int(f.Sum32() % uint32(n))
}

func (h *Host) worker(in <-chan inbound) {
	defer h.wg.Done()
	for {
		select {
		case d := <-in:
			h.handleDatagram(d.from, d.data)
		case <-h.ctx.Done():
			return
		}
	}
}

// sendLoop is the only writer on the socket.
func (h *Host) sendLoop() {
	defer h.wg.Done()
	for {
		select {
		case o := <-h.sendq:
			if o.flushed != nil {
				close(o.flushed)
				continue
			}
			h.write(o)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Host) write(o outbound) {
	defer h.pool.Put(o.data)
	conn := h.currentConn()
	if _, err := conn.WriteToUDPAddrPort(o.data, o.to); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"at": "(Host) write",
			"to": o.to.String(),
		}).Debug("send failed")
		return
	}
	h.sent.Add(1)
}

func (h *Host) enqueueSend(to netip.AddrPort, datagram []byte) {
	select {
	case h.sendq <- outbound{to: to, data: datagram}:
	case <-h.ctx.Done():
	}
}

// watchAddress rebinds the socket when the router reports a new address.
func (h *Host) watchAddress() {
	defer h.wg.Done()
	changes := h.router.AddressChanged()
	for {
		select {
		case addr, ok := <-changes:
			if !ok {
				return
			}
			if err := h.rebind(addr); err != nil {
				log.WithError(err).WithFields(logger.Fields{
					"at":      "(Host) watchAddress",
					"address": addr.String(),
				}).Error("rebind failed")
			}
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Host) rebind(addr netip.AddrPort) error {
	conn, err := listen(addr.String())
	if err != nil {
		return err
	}
	old := h.currentConn()
	h.setConn(conn)
	h.readers.Add(1)
	go h.readLoop(conn)
	log.WithFields(logger.Fields{
		"at":     "(Host) rebind",
		"listen": h.LocalAddr().String(),
	}).Info("SSU socket rebound")
	return old.Close()
}

// housekeeping ticks sessions and finishes removals.
func (h *Host) housekeeping() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.tick()
		case r := <-h.removals:
			h.finishRemoval(r)
		case <-h.ctx.Done():
			return
		}
	}
}

// tick runs every session that has work, at most TickConcurrency at once,
// and waits for the whole batch.
func (h *Host) tick() {
	start := time.Now()
	now := h.now()
	var busy []*Session
	for _, s := range h.registry.all() {
		if s.needsCPU(now) {
			busy = append(busy, s)
		}
	}
	var g errgroup.Group
	g.SetLimit(h.cfg.TickConcurrency)
	for _, s := range busy {
		g.Go(func() error {
			h.runSession(s, now)
			return nil
		})
	}
	g.Wait()

	h.limiter.cleanup(now)
	for _, res := range h.peerTests.Expire(now) {
		h.notifier.publish(func(o Observer) { o.OnPeerTest(res) })
	}
	if elapsed := time.Since(start); elapsed > h.cfg.TickBudget {
		log.WithFields(logger.Fields{
			"at":       "(Host) tick",
			"reason":   "over_budget",
			"sessions": len(busy),
			"elapsed":  elapsed.String(),
		}).Warn("slow housekeeping tick")
	}
}

func (h *Host) runSession(s *Session, now time.Time) {
	defer h.recoverSession(s, "tick")
	effects, err := s.tick(h.ctx, now)
	if err != nil {
		h.fail(s, err)
		return
	}
	h.applyEffects(s, effects, now)
}

func (h *Host) recoverSession(s *Session, where string) {
	if r := recover(); r != nil {
		log.WithFields(logger.Fields{
			"at":       "(Host) recoverSession",
			"where":    where,
			"panic":    r,
			"endpoint": s.Endpoint().String(),
		}).Error("session handler panicked")
		h.fail(s, oops.Errorf("ssu: panic in %s: %v", where, r))
	}
}

// fail terminates s and queues its removal. Only the first call for a
// session has any effect.
func (h *Host) fail(s *Session, err error) {
	if !s.terminate(err) {
		return
	}
	r := removal{s: s, err: err}
	select {
	case h.removals <- r:
	default:
		go func() {
			select {
			case h.removals <- r:
			case <-h.ctx.Done():
			}
		}()
	}
}

// finishRemoval unregisters a terminated session, records its outcome and
// tells observers. It runs once per session.
func (h *Host) finishRemoval(r removal) {
	s := r.s
	if !s.removed.CompareAndSwap(false, true) {
		return
	}
	if h.registry.remove(s) {
		h.removed.Add(1)
	}
	h.relays.forget(s)
	h.relays.releaseTag(s.RelayTag())

	now := h.now()
	ep := s.Endpoint()
	hash := s.RemoteHash()
	never := s.neverConnected()
	hasPeer := hash != (data.Hash{})

	switch {
	case errors.Is(r.err, ErrSignatureFailed):
		h.stats.Update(ep, (*EndpointStatistic).RecordSignatureFailure)
		if hasPeer && h.peers != nil {
			h.peers.ReportSignatureFailure(hash)
		}
	case never && (errors.Is(r.err, ErrHandshakeTimeout) || errors.Is(r.err, ErrRelayTimeout)):
		h.stats.Update(ep, (*EndpointStatistic).RecordTimeout)
		if hasPeer && h.peers != nil {
			h.peers.ReportTimeout(hash)
		}
	case !never:
		length := s.lifetime(now)
		h.stats.Update(ep, func(st *EndpointStatistic) { st.RecordSessionEnd(length) })
	}

	log.WithError(r.err).WithFields(logger.Fields{
		"at":              "(Host) finishRemoval",
		"endpoint":        ep.String(),
		"never_connected": never,
	}).Debug("session removed")

	if exceptional(r.err) {
		cerr := &ConnectionError{Peer: hash, Endpoint: ep, NeverConnected: never, Err: r.err}
		h.notifier.publish(func(o Observer) { o.OnException(cerr) })
	}
	h.notifier.publish(func(o Observer) { o.OnShutdown(hash, ep) })
}

// exceptional separates failures from orderly endings.
func exceptional(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrHostClosed) &&
		!errors.Is(err, ErrSessionTerminated) &&
		!errors.Is(err, ErrSessionDestroyed) &&
		!errors.Is(err, ErrIdleTimeout)
}

// Connect returns the session with peer, starting a handshake if there is
// none. The session queues messages until it is established.
func (h *Host) Connect(ctx context.Context, peer data.Hash) (*Session, error) {
	if !h.started.Load() || h.ctx.Err() != nil {
		return nil, ErrHostClosed
	}
	if s := h.registry.lookupHash(peer); s != nil && !s.IsTerminated() {
		return s, nil
	}
	if h.peers == nil {
		return nil, ErrPeerUnknown
	}
	info, ok := h.peers.Lookup(peer)
	if !ok || info.Identity == nil {
		return nil, oops.Wrapf(ErrPeerUnknown, "%x", peer[:8])
	}
	now := h.now()

	direct, relayed := h.candidates(info)
	switch {
	case len(direct) > 0:
		addr := direct[0]
		if s := h.registry.lookupEndpoint(addr.Endpoint); s != nil && !s.IsTerminated() {
			return s, nil
		}
		s := newOutboundSession(h.env, info, addr, now)
		if err := h.registry.add(s, addr.Endpoint, peer); err != nil {
			// A concurrent Connect to the same peer got there first.
			if errors.Is(err, ErrSessionExists) {
				if cur := h.registry.lookupEndpoint(addr.Endpoint); cur != nil && !cur.IsTerminated() {
					return cur, nil
				}
			}
			return nil, err
		}
		return s, h.startSession(ctx, s, &sessionRequestState{}, now)
	case relayed != nil:
		s := newOutboundSession(h.env, info, PeerAddress{IntroKey: relayed.IntroKey}, now)
		nonce, err := h.relays.newNonce(s)
		if err != nil {
			return nil, err
		}
		if err := h.registry.add(s, netip.AddrPort{}, peer); err != nil {
			return nil, err
		}
		return s, h.startSession(ctx, s, newRelayRequestState(relayed.Introducers, nonce), now)
	default:
		return nil, oops.Wrapf(ErrNoUsableAddress, "%x", peer[:8])
	}
}

// candidates splits a peer's addresses into directly dialable ones, best
// ranked first, and the first address reachable through introducers.
func (h *Host) candidates(info PeerInfo) ([]PeerAddress, *PeerAddress) {
	byEndpoint := make(map[netip.AddrPort]PeerAddress)
	var eps []netip.AddrPort
	var relayed *PeerAddress
	for i, a := range info.Addresses {
		if a.Direct() && acceptableAddr(a.Endpoint.Addr()) {
			byEndpoint[a.Endpoint] = a
			eps = append(eps, a.Endpoint)
			continue
		}
		if len(a.Introducers) > 0 && relayed == nil {
			relayed = &info.Addresses[i]
		}
	}
	direct := make([]PeerAddress, 0, len(eps))
	for _, ep := range h.stats.Rank(eps) {
		direct = append(direct, byEndpoint[ep])
	}
	return direct, relayed
}

func (h *Host) startSession(ctx context.Context, s *Session, first State, now time.Time) error {
	effects, err := s.start(ctx, first, now)
	if err != nil {
		h.fail(s, err)
		return err
	}
	h.applyEffects(s, effects, now)
	return nil
}

// Name of the transport style, as published in router addresses.
func (h *Host) Name() string {
	return "SSU"
}

// Compatible reports whether peer has an SSU address this host can reach,
// either directly or through an introducer.
func (h *Host) Compatible(peer data.Hash) bool {
	if _, ok := h.Session(peer); ok {
		return true
	}
	info, ok := h.peers.Lookup(peer)
	if !ok {
		return false
	}
	direct, relayed := h.candidates(info)
	return len(direct) > 0 || relayed != nil
}

// Send queues msg for peer, connecting first if needed.
func (h *Host) Send(ctx context.Context, peer data.Hash, msg *i2np.Message) error {
	s, err := h.Connect(ctx, peer)
	if err != nil {
		return err
	}
	return s.Send(msg, h.now())
}

// Session returns the live session with peer, if any.
func (h *Host) Session(peer data.Hash) (*Session, bool) {
	s := h.registry.lookupHash(peer)
	if s == nil || s.IsTerminated() {
		return nil, false
	}
	return s, true
}

// Terminate ends s, telling the peer if the session was established.
// Calling it more than once is harmless.
func (h *Host) Terminate(s *Session) {
	if s.IsTerminated() {
		return
	}
	if dg := s.destroyPacket(h.now()); dg != nil {
		h.enqueueSend(s.Endpoint(), dg)
	}
	h.fail(s, ErrSessionTerminated)
}

// RunPeerTest starts a reachability test through the established peer bob
// and returns its nonce. The result reaches observers through OnPeerTest.
func (h *Host) RunPeerTest(bob data.Hash) (uint32, error) {
	s, ok := h.Session(bob)
	if !ok || !s.IsEstablished() {
		return 0, oops.Wrapf(ErrPeerUnknown, "no established session with %x", bob[:8])
	}
	nonce, sends, err := h.peerTests.Start(h, s.Endpoint(), h.now())
	if err != nil {
		return 0, err
	}
	h.sendPeerTests(sends, h.now())
	return nonce, nil
}

// EndpointStats exposes the per-endpoint history used to rank addresses.
func (h *Host) EndpointStats() *EndpointStatistics {
	return h.stats
}

// HostStats is a snapshot of host activity.
type HostStats struct {
	Sessions      int
	Established   int
	Handshaking   int
	PeerTests     int
	SendQueue     int
	Received      uint64
	Sent          uint64
	Dropped       uint64
	MACFailures   uint64
	Removed       uint64
	KeysAvailable int
	Buffers       BufferPoolStats
}

// Stats takes a snapshot of host activity.
func (h *Host) Stats() HostStats {
	st := HostStats{
		PeerTests:     h.peerTests.Active(),
		SendQueue:     len(h.sendq),
		Received:      h.received.Load(),
		Sent:          h.sent.Load(),
		Dropped:       h.dropped.Load(),
		MACFailures:   h.macFailures.Load(),
		Removed:       h.removed.Load(),
		KeysAvailable: h.keys.Available(),
		Buffers:       h.pool.Stats(),
	}
	for _, s := range h.registry.all() {
		st.Sessions++
		if s.IsEstablished() {
			st.Established++
		} else {
			st.Handshaking++
		}
	}
	return st
}

// sayGoodbye queues a SessionDestroyed for every established session and
// waits, at most closeFlushTimeout, until the send loop has written them.
func (h *Host) sayGoodbye(sessions []*Session, now time.Time) {
	timeout := time.NewTimer(closeFlushTimeout)
	defer timeout.Stop()
	for _, s := range sessions {
		dg := s.destroyPacket(now)
		if dg == nil {
			continue
		}
		select {
		case h.sendq <- outbound{to: s.Endpoint(), data: dg}:
		case <-timeout.C:
			return
		}
	}
	// Without a socket there is no send loop to drain the queue.
	if h.currentConn() == nil {
		return
	}
	done := make(chan struct{})
	select {
	case h.sendq <- outbound{flushed: done}:
	case <-timeout.C:
		return
	}
	select {
	case <-done:
	case <-timeout.C:
		log.WithField("at", "(Host) sayGoodbye").Warn("send queue not drained before close")
	}
}

// Close tells established peers goodbye, stops every goroutine and removes
// all sessions. It is safe to call more than once.
func (h *Host) Close() error {
	var err error
	h.closeOnce.Do(func() {
		h.sayGoodbye(h.registry.all(), h.now())
		h.cancel()
		conn := h.currentConn()
		if conn != nil {
			err = conn.Close()
		}
		h.readers.Wait()
		h.wg.Wait()

		for {
			select {
			case r := <-h.removals:
				h.finishRemoval(r)
				continue
			default:
			}
			break
		}
		for _, s := range h.registry.all() {
			err := ErrHostClosed
			if !s.terminate(ErrHostClosed) {
				err = s.Err()
			}
			h.finishRemoval(removal{s: s, err: err})
		}
		h.notifier.close()
		h.keys.Close()
		log.WithField("at", "(Host) Close").Info("SSU host closed")
	})
	return err
}
