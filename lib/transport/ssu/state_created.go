package ssu

import (
	"bytes"
	"context"
	"net/netip"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// sessionCreatedState is Bob waiting for SessionConfirmed.
type sessionCreatedState struct {
	x, y      []byte
	keys      Keys
	bob       netip.AddrPort
	relayTag  uint32
	signedOn  uint32
	signature []byte
	retry     handshakeRetry
}

func (st *sessionCreatedState) Kind() StateKind      { return StateSessionCreated }
func (st *sessionCreatedState) Keys(*Session) []Keys { return []Keys{st.keys} }
func (st *sessionCreatedState) NeedsCPU(s *Session, now time.Time) bool {
	return st.retry.needsCPU(s.env.cfg, now)
}

// send builds a fresh SessionCreated. The signature block is encrypted
// with the packet IV, so every resend is encoded again.
func (st *sessionCreatedState) send(s *Session, now time.Time) ([]Effect, error) {
	iv, err := NewIV()
	if err != nil {
		return nil, err
	}
	msg := &SessionCreated{
		Y:         st.y,
		Alice:     s.endpoint,
		RelayTag:  st.relayTag,
		SignedOn:  st.signedOn,
		Signature: st.signature,
	}
	payload, err := msg.Encode(st.keys.Cipher, iv)
	if err != nil {
		return nil, err
	}
	dg, err := sealWithIV(s, PayloadSessionCreated, iv, payload, s.env.introKeys(), now)
	if err != nil {
		return nil, err
	}
	st.retry.sent(now)
	return []Effect{sendTo(s.endpoint, dg)}, nil
}

func (st *sessionCreatedState) Run(ctx context.Context, s *Session, now time.Time) (State, []Effect, error) {
	due, err := st.retry.due(s.env.cfg, now)
	if err != nil || !due {
		return nil, nil, err
	}
	effects, err := st.send(s, now)
	return nil, effects, err
}

func (st *sessionCreatedState) Handle(ctx context.Context, s *Session, pkt *Packet, now time.Time) (State, []Effect, error) {
	switch pkt.Type {
	case PayloadSessionConfirmed:
		return st.confirm(s, pkt, now)
	case PayloadSessionRequest:
		req, err := ParseSessionRequest(pkt.Payload)
		if err != nil {
			return nil, nil, err
		}
		if bytes.Equal(req.X, st.x) {
			effects, err := st.send(s, now)
			return nil, effects, err
		}
		return nil, []Effect{{Kind: EffectRestart, Packet: pkt}}, nil
	default:
		log.WithFields(logger.Fields{
			"at":       "(sessionCreatedState) Handle",
			"reason":   "ignored",
			"endpoint": s.endpoint.String(),
		}).Debug(unexpected(st, pkt).Error())
		return nil, nil, nil
	}
}

// confirm verifies Alice's identity and signature and completes the
// handshake on Bob's side.
func (st *sessionCreatedState) confirm(s *Session, pkt *Packet, now time.Time) (State, []Effect, error) {
	if err := checkHandshakeTime(s, pkt, now); err != nil {
		return nil, nil, err
	}
	conf, err := ParseSessionConfirmed(pkt.Payload)
	if err != nil {
		return nil, nil, err
	}
	verifier, err := conf.Identity.NewVerifier()
	if err != nil {
		return nil, nil, err
	}
	signed := signedData(st.x, st.y, s.endpoint, st.bob, st.relayTag, conf.SignedOn)
	if err := verifier.Verify(signed, conf.Signature); err != nil {
		return nil, nil, oops.Wrapf(ErrSignatureFailed, "session confirmed from %s: %v", s.endpoint, err)
	}
	s.remote = conf.Identity
	s.relayTag = st.relayTag

	est := newEstablishedState(st.keys)
	effects := []Effect{{Kind: EffectEstablished}}
	ack, err := est.flush(s, now, true)
	if err != nil {
		return nil, nil, err
	}
	return est, append(effects, ack...), nil
}
