package ssu

import (
	"context"
	"time"
)

// sessionConfirmedState is Alice after sending SessionConfirmed. The first
// packet under the session keys proves Bob accepted it.
type sessionConfirmedState struct {
	keys    Keys
	payload []byte
	retry   handshakeRetry
}

func (st *sessionConfirmedState) Kind() StateKind { return StateSessionConfirmed }

// Keys also accepts Bob's intro key so a late SessionCreated resend is
// recognized instead of counting as a MAC failure.
func (st *sessionConfirmedState) Keys(s *Session) []Keys {
	return []Keys{st.keys, IntroKeys(s.peerIntroKey)}
}

func (st *sessionConfirmedState) NeedsCPU(s *Session, now time.Time) bool {
	return st.retry.needsCPU(s.env.cfg, now)
}

func (st *sessionConfirmedState) send(s *Session, now time.Time) ([]Effect, error) {
	dg, err := seal(s, PayloadSessionConfirmed, st.payload, st.keys, now)
	if err != nil {
		return nil, err
	}
	st.retry.sent(now)
	return []Effect{sendTo(s.endpoint, dg)}, nil
}

func (st *sessionConfirmedState) Run(ctx context.Context, s *Session, now time.Time) (State, []Effect, error) {
	due, err := st.retry.due(s.env.cfg, now)
	if err != nil || !due {
		return nil, nil, err
	}
	effects, err := st.send(s, now)
	return nil, effects, err
}

func (st *sessionConfirmedState) Handle(ctx context.Context, s *Session, pkt *Packet, now time.Time) (State, []Effect, error) {
	if pkt.Keys != st.keys {
		return nil, nil, errPacketIgnored
	}
	est := newEstablishedState(st.keys)
	effects := []Effect{{Kind: EffectEstablished}}
	next, more, err := est.Handle(ctx, s, pkt, now)
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		next = est
	}
	return next, append(effects, more...), nil
}
