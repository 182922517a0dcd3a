package ssu

import (
	"errors"
	"net/netip"
	"slices"
	"time"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// handleDatagram routes one datagram. The session at the source endpoint
// gets the first try with its own keys; anything left over must open with
// our intro key.
func (h *Host) handleDatagram(from netip.AddrPort, dg []byte) {
	if !acceptableAddr(from.Addr()) || len(dg) < MinPacketSize {
		h.dropped.Add(1)
		return
	}
	now := h.now()
	s := h.registry.lookupEndpoint(from)
	if s != nil {
		effects, handled, err := h.receiveOn(s, dg, now)
		if err != nil {
			h.fail(s, err)
			return
		}
		if handled {
			h.applyEffects(s, effects, now)
			return
		}
	}

	pkt, err := Open(dg, h.env.introKeys())
	if err != nil {
		h.macFailures.Add(1)
		if s != nil && errors.Is(err, ErrBadMAC) && s.noteMACFailure() {
			h.fail(s, oops.Wrapf(ErrTooManyMACFailures, "from %s", from))
		}
		log.WithError(err).WithFields(logger.Fields{
			"at":     "(Host) handleDatagram",
			"reason": "unauthenticated",
			"from":   from.String(),
		}).Debug("dropping datagram")
		return
	}

	switch pkt.Type {
	case PayloadSessionRequest:
		if s != nil {
			h.dispatchTo(s, pkt, now)
			return
		}
		h.handleSessionRequest(from, pkt, now)
	case PayloadPeerTest:
		h.handlePeerTest(from, pkt, false, now)
	case PayloadRelayRequest:
		h.handleRelayRequest(from, pkt, now)
	case PayloadRelayResponse:
		h.handleRelayResponse(from, pkt, now)
	default:
		if s != nil {
			h.dispatchTo(s, pkt, now)
			return
		}
		log.WithFields(logger.Fields{
			"at":     "(Host) handleDatagram",
			"reason": "no_session",
			"type":   pkt.Type.String(),
			"from":   from.String(),
		}).Debug("dropping packet")
	}
}

func (h *Host) receiveOn(s *Session, dg []byte, now time.Time) (effects []Effect, handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			handled, err = true, oops.Errorf("ssu: panic in receive: %v", r)
		}
	}()
	return s.receive(h.ctx, dg, now)
}

func (h *Host) dispatchTo(s *Session, pkt *Packet, now time.Time) {
	defer h.recoverSession(s, "dispatch")
	effects, err := s.dispatch(h.ctx, pkt, now)
	if err != nil {
		h.fail(s, err)
		return
	}
	h.applyEffects(s, effects, now)
}

func (h *Host) handleSessionRequest(from netip.AddrPort, pkt *Packet, now time.Time) {
	if !h.limiter.Allow(from.Addr(), now) {
		log.WithFields(logger.Fields{
			"at":     "(Host) handleSessionRequest",
			"reason": "rate_limited",
			"from":   from.String(),
		}).Debug("dropping session request")
		return
	}
	s := newSession(h.env, from, false, now)
	if err := h.registry.add(s, from, data.Hash{}); err != nil {
		return
	}
	h.dispatchTo(s, pkt, now)
}

// handlePeerTest feeds a PeerTest to the manager. inSession is true when
// it arrived under an established session's keys.
func (h *Host) handlePeerTest(from netip.AddrPort, pkt *Packet, inSession bool, now time.Time) {
	msg, err := ParsePeerTest(pkt.Payload)
	if err != nil {
		log.WithError(err).WithField("at", "(Host) handlePeerTest").Debug("bad peer test")
		return
	}
	sends, result := h.peerTests.Receive(h, from, msg, inSession, now)
	h.sendPeerTests(sends, now)
	if result != nil {
		res := *result
		log.WithFields(logger.Fields{
			"at":       "(Host) handlePeerTest",
			"nonce":    res.Nonce,
			"status":   res.Status.String(),
			"observed": res.Observed.String(),
		}).Info("peer test finished")
		h.notifier.publish(func(o Observer) { o.OnPeerTest(res) })
	}
}

func (h *Host) sendPeerTests(sends []peerTestSend, now time.Time) {
	for _, ps := range sends {
		dg, err := h.seal(PayloadPeerTest, ps.Msg.Encode(), ps.Keys, now)
		if err != nil {
			log.WithError(err).WithField("at", "(Host) sendPeerTests").Warn("sealing peer test")
			continue
		}
		h.enqueueSend(ps.To, dg)
	}
}

// handleRelayRequest acts as Bob: Charlie is told to punch a hole towards
// Alice and Alice is told where Charlie is.
func (h *Host) handleRelayRequest(from netip.AddrPort, pkt *Packet, now time.Time) {
	if !h.introducing() {
		return
	}
	req, err := ParseRelayRequest(pkt.Payload)
	if err != nil {
		return
	}
	charlie := h.registry.lookupRelayTag(req.RelayTag)
	if charlie == nil {
		log.WithFields(logger.Fields{
			"at":        "(Host) handleRelayRequest",
			"reason":    "unknown_tag",
			"relay_tag": req.RelayTag,
		}).Debug("dropping relay request")
		return
	}
	plan, err := planIntroduction(req, from, charlie)
	if err != nil {
		log.WithError(err).WithField("at", "(Host) handleRelayRequest").Debug("cannot introduce")
		return
	}
	intro, err := h.seal(PayloadRelayIntro, plan.intro.Encode(), plan.charlieKeys, now)
	if err != nil {
		return
	}
	resp, err := h.seal(PayloadRelayResponse, plan.response.Encode(), plan.responseKeys, now)
	if err != nil {
		h.pool.Put(intro)
		return
	}
	h.enqueueSend(plan.charlie, intro)
	h.enqueueSend(from, resp)
	log.WithFields(logger.Fields{
		"at":      "(Host) handleRelayRequest",
		"alice":   plan.alice.String(),
		"charlie": plan.charlie.String(),
	}).Debug("relayed introduction")
}

// handleRelayResponse hands Charlie's address to the session waiting on
// the nonce.
func (h *Host) handleRelayResponse(from netip.AddrPort, pkt *Packet, now time.Time) {
	resp, err := ParseRelayResponse(pkt.Payload)
	if err != nil {
		return
	}
	s := h.relays.take(resp.Nonce)
	if s == nil {
		return
	}
	h.dispatchTo(s, pkt, now)
}

// seal builds a datagram that belongs to no session.
func (h *Host) seal(typ PayloadType, payload []byte, keys Keys, now time.Time) ([]byte, error) {
	iv, err := NewIV()
	if err != nil {
		return nil, err
	}
	return Seal(h.pool.Get(MaxDatagramSize), &Header{Type: typ, IV: iv, Time: now}, payload, keys)
}

// applyEffects carries out what a session transition asked for.
func (h *Host) applyEffects(s *Session, effects []Effect, now time.Time) {
	for _, e := range effects {
		switch e.Kind {
		case EffectSend:
			h.enqueueSend(e.To, e.Datagram)
		case EffectDeliver:
			peer := s.RemoteHash()
			msg := e.Message
			h.notifier.publish(func(o Observer) { o.OnMessage(peer, msg) })
		case EffectEstablished:
			h.onEstablished(s, now)
		case EffectDestroyed:
			h.fail(s, e.Err)
			return
		case EffectMTUHint:
			log.WithError(e.Err).WithFields(logger.Fields{
				"at":       "(Host) applyEffects",
				"endpoint": s.Endpoint().String(),
				"mtu":      e.MTU,
			}).Debug("lowering session MTU")
		case EffectPeerTest:
			h.handlePeerTest(e.To, e.Packet, true, now)
		case EffectRelayIntro:
			h.stats.Update(e.To, (*EndpointStatistic).RecordRelayIntro)
			h.enqueueSend(e.To, []byte{})
		case EffectRestart:
			h.restart(s, e.Packet, now)
			return
		case EffectEndpoint:
			if err := h.registry.bindEndpoint(s, e.To); err != nil {
				h.fail(s, oops.Wrapf(err, "relayed endpoint %s", e.To))
				return
			}
		}
	}
}

// restart replaces s with a fresh inbound session for the peer's new
// SessionRequest.
func (h *Host) restart(old *Session, pkt *Packet, now time.Time) {
	ep := old.Endpoint()
	if !h.limiter.Allow(ep.Addr(), now) {
		return
	}
	fresh := newSession(h.env, ep, false, now)
	h.registry.replace(old, fresh, ep)
	h.fail(old, ErrRestartRequested)
	log.WithFields(logger.Fields{
		"at":       "(Host) restart",
		"endpoint": ep.String(),
	}).Debug("peer restarted handshake")
	h.dispatchTo(fresh, pkt, now)
}

func (h *Host) onEstablished(s *Session, now time.Time) {
	hash := s.RemoteHash()
	ep := s.Endpoint()
	h.registry.bindHash(s, hash)
	h.registry.bindRelayTag(s, s.RelayTag())
	latency := now.Sub(s.created)
	h.stats.Update(ep, func(st *EndpointStatistic) { st.RecordSuccess(latency) })
	if h.peers != nil {
		h.peers.ReportSuccess(hash, latency)
	}
	log.WithFields(logger.Fields{
		"at":       "(Host) onEstablished",
		"endpoint": ep.String(),
		"outgoing": s.Outgoing(),
		"latency":  latency.String(),
	}).Info("session established")
	h.notifier.publish(func(o Observer) { o.OnEstablished(hash, ep) })
}

func (h *Host) introKey() [KeySize]byte {
	return h.router.IntroKey()
}

func (h *Host) sessionKeysFor(ep netip.AddrPort) (Keys, bool) {
	s := h.registry.lookupEndpoint(ep)
	if s == nil {
		return Keys{}, false
	}
	return s.establishedKeys()
}

// pickCharlie returns any established peer not in exclude.
func (h *Host) pickCharlie(exclude ...netip.AddrPort) (netip.AddrPort, Keys, bool) {
	for _, s := range h.registry.all() {
		ep := s.Endpoint()
		if !ep.IsValid() || slices.Contains(exclude, ep) {
			continue
		}
		if keys, ok := s.establishedKeys(); ok {
			return ep, keys, true
		}
	}
	return netip.AddrPort{}, Keys{}, false
}
