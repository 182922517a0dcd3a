package ssu

import (
	"context"
	"net/netip"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// relayRequestState is Alice asking introducers to reach a firewalled
// peer. The session has no endpoint until a RelayResponse names one.
type relayRequestState struct {
	introducers []IntroducerInfo
	nonce       uint32
	retry       handshakeRetry
}

func newRelayRequestState(introducers []IntroducerInfo, nonce uint32) *relayRequestState {
	if len(introducers) > MaxIntroducers {
		introducers = introducers[:MaxIntroducers]
	}
	return &relayRequestState{introducers: introducers, nonce: nonce}
}

func (st *relayRequestState) Kind() StateKind      { return StateRelayRequest }
func (st *relayRequestState) Keys(*Session) []Keys { return nil }

func (st *relayRequestState) NeedsCPU(s *Session, now time.Time) bool {
	return st.retry.needsCPU(s.env.cfg, now)
}

func (st *relayRequestState) Run(ctx context.Context, s *Session, now time.Time) (State, []Effect, error) {
	if st.retry.sends > 0 && now.Sub(st.retry.lastSend) < s.env.cfg.HandshakeResendInterval {
		return nil, nil, nil
	}
	if st.retry.sends >= s.env.cfg.RelayRetries {
		return nil, nil, oops.Wrapf(ErrRelayTimeout, "nonce %d after %d rounds", st.nonce, st.retry.sends)
	}
	req := &RelayRequest{IntroKey: s.env.router.IntroKey(), Nonce: st.nonce}
	var effects []Effect
	for _, in := range st.introducers {
		req.RelayTag = in.RelayTag
		dg, err := seal(s, PayloadRelayRequest, req.Encode(), IntroKeys(in.IntroKey), now)
		if err != nil {
			return nil, nil, err
		}
		effects = append(effects, sendTo(in.Endpoint, dg))
	}
	st.retry.sent(now)
	return nil, effects, nil
}

func (st *relayRequestState) Handle(ctx context.Context, s *Session, pkt *Packet, now time.Time) (State, []Effect, error) {
	if pkt.Type != PayloadRelayResponse {
		return nil, nil, nil
	}
	resp, err := ParseRelayResponse(pkt.Payload)
	if err != nil {
		return nil, nil, err
	}
	if resp.Nonce != st.nonce {
		return nil, nil, nil
	}
	if !acceptableAddr(resp.Charlie.Addr()) || resp.Charlie.Port() == 0 {
		return nil, nil, oops.Wrapf(ErrInvalidAddress, "relay response names %s", resp.Charlie)
	}
	log.WithFields(logger.Fields{
		"at":      "(relayRequestState) Handle",
		"nonce":   st.nonce,
		"charlie": resp.Charlie.String(),
	}).Debug("introduced by relay")
	s.endpoint = resp.Charlie
	s.observed = resp.Alice
	s.mtu = defaultMTU(s.env.cfg, resp.Charlie)

	next := &sessionRequestState{}
	_, effects, err := next.Run(ctx, s, now)
	if err != nil {
		return nil, nil, err
	}
	return next, append([]Effect{{Kind: EffectEndpoint, To: resp.Charlie}}, effects...), nil
}

// acceptableAddr admits only routable unicast addresses. Loopback and
// private ranges are allowed so that local networks and tests work.
func acceptableAddr(ip netip.Addr) bool {
	if !ip.IsValid() || ip.IsUnspecified() || ip.IsMulticast() || ip.IsLinkLocalUnicast() {
		return false
	}
	return ip.Is4() || ip.Is6()
}
