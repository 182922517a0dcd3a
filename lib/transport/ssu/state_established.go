package ssu

import (
	"context"
	"time"

	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// establishedState carries data once the handshake is done.
type establishedState struct {
	keys Keys
}

func newEstablishedState(keys Keys) *establishedState {
	return &establishedState{keys: keys}
}

func (st *establishedState) Kind() StateKind { return StateEstablished }

// Keys includes the peer's intro key on outbound sessions so that a late
// SessionCreated resend is ignored rather than counted as a MAC failure.
func (st *establishedState) Keys(s *Session) []Keys {
	if s.outgoing {
		return []Keys{st.keys, IntroKeys(s.peerIntroKey)}
	}
	return []Keys{st.keys}
}

func (st *establishedState) NeedsCPU(s *Session, now time.Time) bool {
	return s.frag.HasUnsent() ||
		s.frag.ResendDue(now) ||
		s.defrag.HasPendingAcks() ||
		s.defrag.OpenCount() > 0 ||
		now.Sub(s.lastSent) >= s.env.cfg.KeepaliveInterval ||
		now.Sub(s.lastActivity) >= s.env.cfg.IdleTimeout
}

func (st *establishedState) Handle(ctx context.Context, s *Session, pkt *Packet, now time.Time) (State, []Effect, error) {
	// A restarting peer knows only our intro key.
	if pkt.Type == PayloadSessionRequest {
		return nil, []Effect{{Kind: EffectRestart, Packet: pkt}}, nil
	}
	if pkt.Keys != st.keys {
		return nil, nil, errPacketIgnored
	}
	switch pkt.Type {
	case PayloadData:
		effects, err := st.receiveData(s, pkt, now)
		return nil, effects, err
	case PayloadPeerTest:
		return nil, []Effect{{Kind: EffectPeerTest, Packet: pkt, To: s.endpoint}}, nil
	case PayloadRelayIntro:
		intro, err := ParseRelayIntro(pkt.Payload)
		if err != nil {
			return nil, nil, err
		}
		if !acceptableAddr(intro.Alice.Addr()) || intro.Alice.Port() == 0 {
			return nil, nil, nil
		}
		return nil, []Effect{{Kind: EffectRelayIntro, To: intro.Alice}}, nil
	case PayloadSessionConfirmed:
		// Alice missed our first packet and is still confirming.
		effects, err := st.flush(s, now, true)
		return nil, effects, err
	case PayloadSessionDestroyed:
		return nil, []Effect{{Kind: EffectDestroyed, Err: ErrSessionDestroyed}}, nil
	default:
		log.WithFields(logger.Fields{
			"at":       "(establishedState) Handle",
			"reason":   "ignored",
			"endpoint": s.endpoint.String(),
		}).Debug(unexpected(st, pkt).Error())
		return nil, nil, nil
	}
}

// receiveData applies the acks a Data packet carries and feeds its
// fragments to the defragmenter. Broken fragments drop their message, not
// the session.
func (st *establishedState) receiveData(s *Session, pkt *Packet, now time.Time) ([]Effect, error) {
	d, err := ParseData(pkt.Payload)
	if err != nil {
		return nil, oops.Wrapf(err, "data packet from %s", s.endpoint)
	}
	for _, id := range d.ExplicitAcks {
		s.frag.Ack(id)
	}
	for _, bf := range d.AckBitfields {
		s.frag.AckBitfield(bf)
	}
	var effects []Effect
	for _, f := range d.Fragments {
		whole, err := s.defrag.AddFragment(f, now)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"at":         "(establishedState) receiveData",
				"reason":     "bad_fragment",
				"message_id": f.MessageID,
			}).Warn("dropping message")
			continue
		}
		if whole == nil {
			continue
		}
		msg, err := i2np.ReadSSUMessage(whole, f.MessageID)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"at":         "(establishedState) receiveData",
				"reason":     "bad_message",
				"message_id": f.MessageID,
			}).Warn("dropping message")
			continue
		}
		if err := s.env.validator.ValidateMessage(msg); err != nil {
			continue
		}
		effects = append(effects, Effect{Kind: EffectDeliver, Message: msg})
	}
	return effects, nil
}

func (st *establishedState) Run(ctx context.Context, s *Session, now time.Time) (State, []Effect, error) {
	if now.Sub(s.lastActivity) >= s.env.cfg.IdleTimeout {
		dg, err := seal(s, PayloadSessionDestroyed, nil, st.keys, now)
		if err != nil {
			return nil, nil, err
		}
		return nil, []Effect{sendTo(s.endpoint, dg), {Kind: EffectDestroyed, Err: ErrIdleTimeout}}, nil
	}
	if n := s.defrag.Housekeep(now); n > 0 {
		log.WithFields(logger.Fields{
			"at":       "(establishedState) Run",
			"reason":   "reassembly_timeout",
			"evicted":  n,
			"endpoint": s.endpoint.String(),
		}).Debug("evicted partial messages")
	}
	// An empty Data packet keeps the peer's idle timer from firing.
	keepalive := now.Sub(s.lastSent) >= s.env.cfg.KeepaliveInterval
	effects, err := st.flush(s, now, keepalive)
	if err != nil {
		return nil, nil, err
	}
	if abandoned := s.frag.TakeAbandoned(); len(abandoned) > 0 {
		effects = append(effects, Effect{
			Kind: EffectMTUHint,
			MTU:  ClampMTU(s.mtu*7/8, s.endpoint.Addr().Is6()),
			Err:  oops.Wrapf(ErrMessageAbandoned, "%d messages", len(abandoned)),
		})
	}
	return nil, effects, nil
}

// flush builds Data packets until nothing is left to send this tick. With
// force set at least one packet goes out even if it is empty.
func (st *establishedState) flush(s *Session, now time.Time, force bool) ([]Effect, error) {
	var effects []Effect
	for i := 0; i < maxPacketsPerTick; i++ {
		dg, err := st.buildData(s, now, force && i == 0)
		if err != nil {
			return effects, err
		}
		if dg == nil {
			break
		}
		effects = append(effects, sendTo(s.endpoint, dg))
		s.lastSent = now
	}
	return effects, nil
}

// buildData packs acks, due resends and new fragments into one Data
// packet. It returns nil when there was nothing to send.
func (st *establishedState) buildData(s *Session, now time.Time, force bool) ([]byte, error) {
	room := MaxPayload(MaxDatagram(s.mtu, s.endpoint.Addr().Is6()))
	buf := s.env.pool.Get(room)
	defer s.env.pool.Put(buf)

	w := NewWriter(buf)
	flagPos := w.Reserve(1)
	room -= 2 // flag and fragment count
	limit := room

	ackRoom := room
	if s.frag.Pending() > 0 {
		ackRoom = room / 2
	}
	acks := s.defrag.Acks(ackRoom)
	acks.write(w)
	room -= acks.size()

	countPos := w.Reserve(1)
	start := w.Len()
	n := s.frag.FillResends(w, room, limit, now)
	n += s.frag.Fill(w, room-(w.Len()-start), now)
	if n == 0 && acks.empty() && !force {
		return nil, nil
	}
	w.Patch(flagPos, acks.flags())
	w.Patch(countPos, byte(n))
	return seal(s, PayloadData, w.Bytes(), st.keys, now)
}
