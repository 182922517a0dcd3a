package ssu

import (
	"context"
	"time"

	"github.com/go-i2p/go-ssu/lib/crypto/dh"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// sessionRequestState is Alice waiting for SessionCreated.
type sessionRequestState struct {
	kp    *dh.KeyPair
	retry handshakeRetry
}

func (st *sessionRequestState) Kind() StateKind { return StateSessionRequest }

func (st *sessionRequestState) Keys(s *Session) []Keys {
	return []Keys{IntroKeys(s.peerIntroKey)}
}

func (st *sessionRequestState) NeedsCPU(s *Session, now time.Time) bool {
	return st.retry.needsCPU(s.env.cfg, now)
}

func (st *sessionRequestState) Run(ctx context.Context, s *Session, now time.Time) (State, []Effect, error) {
	due, err := st.retry.due(s.env.cfg, now)
	if err != nil || !due {
		return nil, nil, err
	}
	if st.kp == nil {
		if st.kp, err = s.env.keys.Get(); err != nil {
			return nil, nil, err
		}
	}
	req := &SessionRequest{X: st.kp.PublicBytes(), BobIP: s.endpoint.Addr()}
	dg, err := seal(s, PayloadSessionRequest, req.Encode(), IntroKeys(s.peerIntroKey), now)
	if err != nil {
		return nil, nil, err
	}
	st.retry.sent(now)
	return nil, []Effect{sendTo(s.endpoint, dg)}, nil
}

func (st *sessionRequestState) Handle(ctx context.Context, s *Session, pkt *Packet, now time.Time) (State, []Effect, error) {
	if pkt.Type != PayloadSessionCreated || st.kp == nil {
		log.WithFields(logger.Fields{
			"at":       "(sessionRequestState) Handle",
			"reason":   "ignored",
			"endpoint": s.endpoint.String(),
		}).Debug(unexpected(st, pkt).Error())
		return nil, nil, nil
	}
	if err := checkHandshakeTime(s, pkt, now); err != nil {
		return nil, nil, err
	}
	created, err := ParseSessionCreated(pkt.Payload)
	if err != nil {
		return nil, nil, err
	}
	derived, err := st.kp.DeriveSessionKeys(created.Y)
	if err != nil {
		return nil, nil, oops.Wrapf(err, "session created from %s", s.endpoint)
	}
	sigLen, err := s.remote.SignatureSize()
	if err != nil {
		return nil, nil, err
	}
	if err := created.DecryptSignature(derived.SessionKey, pkt.IV, sigLen); err != nil {
		return nil, nil, err
	}
	verifier, err := s.remote.NewVerifier()
	if err != nil {
		return nil, nil, err
	}
	x := st.kp.PublicBytes()
	signed := signedData(x, created.Y, created.Alice, s.endpoint, created.RelayTag, created.SignedOn)
	if err := verifier.Verify(signed, created.Signature); err != nil {
		return nil, nil, oops.Wrapf(ErrSignatureFailed, "session created from %s: %v", s.endpoint, err)
	}
	s.introTag = created.RelayTag
	s.observed = created.Alice

	signedOn := uint32(now.Unix())
	sig, err := s.env.router.Signer().Sign(signedData(x, created.Y, created.Alice, s.endpoint, created.RelayTag, signedOn))
	if err != nil {
		return nil, nil, oops.Wrapf(err, "signing session confirmed")
	}
	conf := &SessionConfirmed{Identity: s.env.router.Identity(), SignedOn: signedOn, Signature: sig}
	payload, err := conf.Encode()
	if err != nil {
		return nil, nil, err
	}
	next := &sessionConfirmedState{keys: sessionKeys(derived), payload: payload}
	effects, err := next.send(s, now)
	if err != nil {
		return nil, nil, err
	}
	return next, effects, nil
}
