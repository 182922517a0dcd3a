package ssu

import (
	"context"
	"net/netip"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// idleState is where inbound sessions start. Only a SessionRequest moves
// it anywhere.
type idleState struct{}

func (idleState) Kind() StateKind                   { return StateIdle }
func (idleState) Keys(*Session) []Keys              { return nil }
func (idleState) NeedsCPU(*Session, time.Time) bool { return false }
func (idleState) Run(context.Context, *Session, time.Time) (State, []Effect, error) {
	return nil, nil, nil
}

func (st idleState) Handle(ctx context.Context, s *Session, pkt *Packet, now time.Time) (State, []Effect, error) {
	if pkt.Type != PayloadSessionRequest {
		log.WithFields(logger.Fields{
			"at":       "(idleState) Handle",
			"reason":   "ignored",
			"endpoint": s.endpoint.String(),
		}).Debug(unexpected(st, pkt).Error())
		return nil, nil, nil
	}
	return acceptSessionRequest(s, pkt, now)
}

// acceptSessionRequest answers Alice's SessionRequest: it derives the
// session keys, signs the handshake tuple and sends SessionCreated.
func acceptSessionRequest(s *Session, pkt *Packet, now time.Time) (State, []Effect, error) {
	if err := checkHandshakeTime(s, pkt, now); err != nil {
		return nil, nil, err
	}
	req, err := ParseSessionRequest(pkt.Payload)
	if err != nil {
		return nil, nil, err
	}
	kp, err := s.env.keys.Get()
	if err != nil {
		return nil, nil, err
	}
	derived, err := kp.DeriveSessionKeys(req.X)
	if err != nil {
		return nil, nil, oops.Wrapf(err, "session request from %s", s.endpoint)
	}

	local := s.env.localAddr()
	bob := netip.AddrPortFrom(req.BobIP, local.Port())
	if !req.BobIP.IsValid() {
		bob = local
	}
	st := &sessionCreatedState{
		x:        req.X,
		y:        kp.PublicBytes(),
		keys:     sessionKeys(derived),
		bob:      bob,
		relayTag: s.env.issueRelayTag(),
		signedOn: uint32(now.Unix()),
	}
	st.signature, err = s.env.router.Signer().Sign(signedData(st.x, st.y, s.endpoint, st.bob, st.relayTag, st.signedOn))
	if err != nil {
		return nil, nil, oops.Wrapf(err, "signing session created")
	}
	effects, err := st.send(s, now)
	if err != nil {
		return nil, nil, err
	}
	log.WithFields(logger.Fields{
		"at":        "acceptSessionRequest",
		"endpoint":  s.endpoint.String(),
		"relay_tag": st.relayTag,
	}).Debug("sent session created")
	return st, effects, nil
}
