package ssu

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/common/router_identity"
	"github.com/go-i2p/go-ssu/lib/config"
	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// Session is one conversation with a remote router. All state changes
// happen under mu, so a handler and a tick for the same session never
// interleave.
type Session struct {
	mu  sync.Mutex
	env *env

	state    State
	endpoint netip.AddrPort
	// observed is our own address as the peer reported it.
	observed     netip.AddrPort
	peerIntroKey [KeySize]byte
	peerHash     data.Hash
	remote       *router_identity.RouterIdentity
	outgoing     bool
	mtu          int

	created       time.Time
	lastActivity  time.Time
	lastSent      time.Time
	establishedAt time.Time

	frag   *DataFragmenter
	defrag *DataDefragmenter

	// relayTag is the tag we issued to this peer, introTag the one it
	// issued to us.
	relayTag uint32
	introTag uint32

	macFailures int
	terminated  bool
	termErr     error
	// removed is set by the host once the removal has been finished.
	removed atomic.Bool
}

func newSession(e *env, endpoint netip.AddrPort, outgoing bool, now time.Time) *Session {
	return &Session{
		env:          e,
		state:        idleState{},
		endpoint:     endpoint,
		outgoing:     outgoing,
		mtu:          defaultMTU(e.cfg, endpoint),
		created:      now,
		lastActivity: now,
		lastSent:     now,
		frag:         NewDataFragmenter(e.cfg.ResendInterval, e.cfg.MaxSendCount),
		defrag:       NewDataDefragmenter(),
	}
}

// newOutboundSession prepares a session towards a known peer. Connect
// moves it out of Idle.
func newOutboundSession(e *env, peer PeerInfo, addr PeerAddress, now time.Time) *Session {
	s := newSession(e, addr.Endpoint, true, now)
	s.remote = peer.Identity
	s.peerHash = peer.Identity.Hash()
	s.peerIntroKey = addr.IntroKey
	return s
}

func defaultMTU(cfg *config.SSUConfig, ep netip.AddrPort) int {
	if ep.Addr().Is6() {
		return ClampMTU(cfg.MTUv6, true)
	}
	return ClampMTU(cfg.MTU, false)
}

// Endpoint is the remote address. It is invalid for a relayed session that
// has not been introduced yet.
func (s *Session) Endpoint() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// RemoteHash is the peer's identity hash, known up front for outbound
// sessions and after SessionConfirmed for inbound ones.
func (s *Session) RemoteHash() data.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteHashLocked()
}

func (s *Session) remoteHashLocked() data.Hash {
	if s.remote != nil {
		return s.remote.Hash()
	}
	return s.peerHash
}

func (s *Session) RemoteIdentity() *router_identity.RouterIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// State is the current protocol phase. It stays at its last value after
// termination.
func (s *Session) State() StateKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return StateIdle
	}
	return s.state.Kind()
}

func (s *Session) Outgoing() bool { return s.outgoing }

func (s *Session) IsEstablished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.terminated && s.state != nil && s.state.Kind() == StateEstablished
}

func (s *Session) IsTerminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

func (s *Session) MTU() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mtu
}

// RelayTag is the tag we handed this peer, 0 if none.
func (s *Session) RelayTag() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relayTag
}

// IntroducerTag is the tag the peer handed us, 0 if none.
func (s *Session) IntroducerTag() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.introTag
}

// ObservedAddr is our address as the peer saw it during the handshake.
func (s *Session) ObservedAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observed
}

// Pending is the number of outbound messages not yet acknowledged.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frag.Pending()
}

// Delivered is the number of outbound messages the peer acknowledged.
func (s *Session) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frag.Delivered()
}

// Send queues a message. It goes out once the session is established.
func (s *Session) Send(msg *i2np.Message, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return ErrSessionTerminated
	}
	if err := s.env.validator.ValidateMessage(msg); err != nil {
		return oops.Wrapf(ErrMessageExpired, "%v", err)
	}
	if _, err := s.frag.Enqueue(msg.MarshalSSU(), now); err != nil {
		return err
	}
	return nil
}

// receive opens a datagram with the keys of the current state and handles
// it. handled is false when none of those keys authenticate it, leaving
// the caller to try the intro key.
func (s *Session) receive(ctx context.Context, datagram []byte, now time.Time) (effects []Effect, handled bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil, true, nil
	}
	keys := s.state.Keys(s)
	if len(keys) == 0 {
		return nil, false, nil
	}
	pkt, err := OpenAny(datagram, keys...)
	if errors.Is(err, ErrBadMAC) {
		return nil, false, nil
	}
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"at":       "(Session) receive",
			"reason":   "undecodable",
			"endpoint": s.endpoint.String(),
		}).Debug("dropping datagram")
		return nil, true, nil
	}
	effects, err = s.handleLocked(ctx, pkt, now)
	return effects, true, err
}

// dispatch handles a packet the host already opened with the local intro
// key.
func (s *Session) dispatch(ctx context.Context, pkt *Packet, now time.Time) ([]Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil, nil
	}
	return s.handleLocked(ctx, pkt, now)
}

// handleLocked feeds pkt to the current state. Only a packet the state
// accepts counts as activity and clears the MAC failure streak.
func (s *Session) handleLocked(ctx context.Context, pkt *Packet, now time.Time) ([]Effect, error) {
	next, effects, err := s.state.Handle(ctx, s, pkt, now)
	if errors.Is(err, errPacketIgnored) {
		return nil, nil
	}
	if err == nil {
		s.macFailures = 0
		s.lastActivity = now
	}
	return s.applyLocked(next, effects, err, now)
}

// tick runs the time based work of the current state.
func (s *Session) tick(ctx context.Context, now time.Time) ([]Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated || !s.state.NeedsCPU(s, now) {
		return nil, nil
	}
	next, effects, err := s.state.Run(ctx, s, now)
	return s.applyLocked(next, effects, err, now)
}

func (s *Session) needsCPU(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.terminated && s.state.NeedsCPU(s, now)
}

// start moves a fresh outbound session into its first handshake state.
func (s *Session) start(ctx context.Context, first State, now time.Time) ([]Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return nil, ErrSessionTerminated
	}
	s.state = first
	next, effects, err := first.Run(ctx, s, now)
	return s.applyLocked(next, effects, err, now)
}

func (s *Session) applyLocked(next State, effects []Effect, err error, now time.Time) ([]Effect, error) {
	if err != nil {
		return nil, err
	}
	if next != nil && next != s.state {
		log.WithFields(logger.Fields{
			"at":       "(Session) applyLocked",
			"endpoint": s.endpoint.String(),
			"from":     s.state.Kind().String(),
			"to":       next.Kind().String(),
		}).Debug("state transition")
		s.state = next
	}
	for _, e := range effects {
		switch e.Kind {
		case EffectEstablished:
			s.establishedAt = now
			s.lastSent = now
		case EffectMTUHint:
			s.mtu = e.MTU
		}
	}
	return effects, nil
}

// noteMACFailure counts a datagram no key could open and reports whether
// the session should be abandoned.
func (s *Session) noteMACFailure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.macFailures++
	return s.macFailures >= MaxConsecutiveMACFailures
}

// terminate marks the session dead. Only the first call returns true; the
// caller that wins is responsible for removal.
func (s *Session) terminate(err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated {
		return false
	}
	s.terminated = true
	s.termErr = err
	return true
}

// Err is the reason the session ended, nil while it is alive.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termErr
}

// neverConnected reports whether the handshake never completed.
func (s *Session) neverConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.establishedAt.IsZero()
}

// lifetime is how long the session was established, zero if never.
func (s *Session) lifetime(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.establishedAt.IsZero() {
		return 0
	}
	return now.Sub(s.establishedAt)
}

// destroyPacket seals a SessionDestroyed for an established session, nil
// otherwise.
func (s *Session) destroyPacket(now time.Time) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	est, ok := s.state.(*establishedState)
	if !ok {
		return nil
	}
	dg, err := seal(s, PayloadSessionDestroyed, nil, est.keys, now)
	if err != nil {
		return nil
	}
	return dg
}

// establishedKeys returns the session keys once established.
func (s *Session) establishedKeys() (Keys, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	est, ok := s.state.(*establishedState)
	if !ok || s.terminated {
		return Keys{}, false
	}
	return est.keys, true
}
