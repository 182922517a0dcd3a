package ssu

import (
	"context"
	"net/netip"
	"time"

	"github.com/go-i2p/go-ssu/lib/config"
	"github.com/go-i2p/go-ssu/lib/crypto/dh"
	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/go-i2p/go-ssu/lib/util/time/skew"
	"github.com/samber/oops"
)

// StateKind names the protocol phase of a session.
type StateKind int

const (
	StateIdle StateKind = iota
	StateRelayRequest
	StateSessionRequest
	StateSessionCreated
	StateSessionConfirmed
	StateEstablished
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "Idle"
	case StateRelayRequest:
		return "RelayRequest"
	case StateSessionRequest:
		return "SessionRequest"
	case StateSessionCreated:
		return "SessionCreated"
	case StateSessionConfirmed:
		return "SessionConfirmed"
	case StateEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// EffectKind says what the host must do with an Effect.
type EffectKind int

const (
	// EffectSend writes Datagram to To. An empty datagram is a hole punch.
	EffectSend EffectKind = iota
	// EffectDeliver hands a reassembled Message to observers.
	EffectDeliver
	// EffectEstablished reports a completed handshake.
	EffectEstablished
	// EffectDestroyed ends the session; Err says why.
	EffectDestroyed
	// EffectMTUHint reports a message abandoned after MaxSendCount sends.
	EffectMTUHint
	// EffectPeerTest passes an in-session PeerTest to the peer test manager.
	EffectPeerTest
	// EffectRelayIntro asks for a hole punch towards To.
	EffectRelayIntro
	// EffectRestart replaces the session with a fresh inbound handshake
	// for Packet.
	EffectRestart
	// EffectEndpoint moves a relayed session to the endpoint To.
	EffectEndpoint
)

// Effect is one side effect of a transition. States return effects and
// never perform I/O themselves.
type Effect struct {
	Kind     EffectKind
	To       netip.AddrPort
	Datagram []byte
	Message  *i2np.Message
	Packet   *Packet
	Err      error
	MTU      int
}

// State is one phase of the protocol. Handle and Run return the next
// state, or nil to stay, plus the effects to apply. A non-nil error ends
// the session.
type State interface {
	Kind() StateKind
	// Keys lists the key sets inbound packets are opened with in this state.
	Keys(s *Session) []Keys
	Handle(ctx context.Context, s *Session, pkt *Packet, now time.Time) (State, []Effect, error)
	Run(ctx context.Context, s *Session, now time.Time) (State, []Effect, error)
	// NeedsCPU reports whether Run has anything to do at now.
	NeedsCPU(s *Session, now time.Time) bool
}

// env is everything sessions of one host share.
type env struct {
	cfg       *config.SSUConfig
	router    RouterContext
	keys      *dh.KeyPool
	pool      *BufferPool
	validator *i2np.ExpirationValidator
	// localAddr is the current bind address.
	localAddr func() netip.AddrPort
	// issueRelayTag returns a fresh tag, or 0 when we do not introduce.
	issueRelayTag func() uint32
}

func (e *env) introKeys() Keys {
	return IntroKeys(e.router.IntroKey())
}

// handshakeRetry tracks the resend schedule shared by every handshake state.
type handshakeRetry struct {
	sends    int
	lastSend time.Time
}

// due reports whether the next resend is owed, and fails once the budget
// is spent.
func (r *handshakeRetry) due(cfg *config.SSUConfig, now time.Time) (bool, error) {
	if r.sends > 0 && now.Sub(r.lastSend) < cfg.HandshakeResendInterval {
		return false, nil
	}
	if r.sends > cfg.HandshakeRetries {
		return false, oops.Wrapf(ErrHandshakeTimeout, "after %d sends", r.sends)
	}
	return true, nil
}

func (r *handshakeRetry) sent(now time.Time) {
	r.sends++
	r.lastSend = now
}

func (r *handshakeRetry) needsCPU(cfg *config.SSUConfig, now time.Time) bool {
	return r.sends == 0 || now.Sub(r.lastSend) >= cfg.HandshakeResendInterval
}

// checkHandshakeTime rejects handshake packets stamped too far from now.
func checkHandshakeTime(s *Session, pkt *Packet, now time.Time) error {
	return skew.ValidateAt(pkt.Time, now, s.env.cfg.MaxClockSkew)
}

// seal builds a datagram for this session from a pooled buffer.
func seal(s *Session, typ PayloadType, payload []byte, keys Keys, now time.Time) ([]byte, error) {
	iv, err := NewIV()
	if err != nil {
		return nil, err
	}
	return sealWithIV(s, typ, iv, payload, keys, now)
}

func sealWithIV(s *Session, typ PayloadType, iv [IVSize]byte, payload []byte, keys Keys, now time.Time) ([]byte, error) {
	h := &Header{Type: typ, IV: iv, Time: now}
	return Seal(s.env.pool.Get(MaxDatagramSize), h, payload, keys)
}

func sendTo(to netip.AddrPort, datagram []byte) Effect {
	return Effect{Kind: EffectSend, To: to, Datagram: datagram}
}

func unexpected(st State, pkt *Packet) error {
	return oops.Wrapf(ErrUnexpectedPayload, "%s in state %s", pkt.Type, st.Kind())
}

func sessionKeys(k dh.SessionKeys) Keys {
	return Keys{Cipher: k.SessionKey, MAC: k.MACKey}
}
