package ssu

import (
	"time"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// DataFragmenter packs outbound messages into Data packets and tracks
// which fragments the peer has acknowledged.
type DataFragmenter struct {
	pending        []*FragmentedMessage
	resendInterval time.Duration
	maxSends       int
	abandoned      []uint32
	delivered      int
	dropped        int
}

// NewDataFragmenter returns a fragmenter that resends unacked fragments
// every resendInterval, at most maxSends times each.
func NewDataFragmenter(resendInterval time.Duration, maxSends int) *DataFragmenter {
	return &DataFragmenter{resendInterval: resendInterval, maxSends: maxSends}
}

// Enqueue queues a serialized message and returns its message id.
func (f *DataFragmenter) Enqueue(data []byte, now time.Time) (uint32, error) {
	if len(data) == 0 || len(data) > MaxMessageSize {
		return 0, oops.Wrapf(ErrMessageTooLarge, "message of %d bytes", len(data))
	}
	id, err := f.newMessageID()
	if err != nil {
		return 0, err
	}
	f.pending = append(f.pending, newFragmentedMessage(id, data, now))
	return id, nil
}

func (f *DataFragmenter) newMessageID() (uint32, error) {
	var b [4]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			return 0, oops.Wrapf(err, "message id")
		}
		id := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
		if f.find(id) == nil {
			return id, nil
		}
	}
}

func (f *DataFragmenter) find(id uint32) *FragmentedMessage {
	for _, m := range f.pending {
		if m.ID == id {
			return m
		}
	}
	return nil
}

// Pending is the number of messages not yet fully acknowledged.
func (f *DataFragmenter) Pending() int {
	return len(f.pending)
}

// Delivered counts messages the peer acknowledged completely.
func (f *DataFragmenter) Delivered() int {
	return f.delivered
}

// Dropped counts messages given up because they no longer fit the MTU.
func (f *DataFragmenter) Dropped() int {
	return f.dropped
}

// HasUnsent reports whether some message still has bytes to cut.
func (f *DataFragmenter) HasUnsent() bool {
	for _, m := range f.pending {
		if !m.FullyCut() {
			return true
		}
	}
	return false
}

// ResendDue reports whether FillResends would find work.
func (f *DataFragmenter) ResendDue(now time.Time) bool {
	for _, m := range f.pending {
		for _, frag := range m.fragments {
			if frag.dueForResend(now, f.resendInterval) {
				return true
			}
		}
	}
	return false
}

// Fill writes new fragments into w while they fit in capacity bytes and
// returns how many it wrote.
func (f *DataFragmenter) Fill(w *Writer, capacity int, now time.Time) int {
	count := 0
	for _, m := range f.pending {
		for !m.FullyCut() && capacity > fragmentHeaderSize {
			frag := m.cut(capacity - fragmentHeaderSize)
			if frag == nil {
				break
			}
			frag.write(w)
			frag.SendCount = 1
			frag.LastSent = now
			capacity -= frag.wireSize()
			count++
		}
		if capacity <= fragmentHeaderSize {
			break
		}
	}
	return count
}

// FillResends writes fragments due for resend into capacity bytes. limit
// is the most an empty packet could carry at the current MTU.
//
// A message whose fragment already went out maxSends times is abandoned and
// TakeAbandoned reports it. A message with a part that no longer fits in
// limit is dropped, since it could never be resent or completed.
func (f *DataFragmenter) FillResends(w *Writer, capacity, limit int, now time.Time) int {
	count := 0
	kept := f.pending[:0]
	for _, m := range f.pending {
		if m.outgrown(now, f.resendInterval, limit) {
			log.WithFields(logger.Fields{
				"at":         "(DataFragmenter) FillResends",
				"reason":     "outgrown_mtu",
				"message_id": m.ID,
				"limit":      limit,
			}).Warn("dropping message")
			f.dropped++
			continue
		}
		if m.exhausted(now, f.resendInterval, f.maxSends) {
			log.WithFields(logger.Fields{
				"at":         "(DataFragmenter) FillResends",
				"reason":     "max_sends_reached",
				"message_id": m.ID,
				"fragments":  len(m.fragments),
			}).Warn("abandoning message")
			f.abandoned = append(f.abandoned, m.ID)
			continue
		}
		kept = append(kept, m)
		for _, frag := range m.fragments {
			if !frag.dueForResend(now, f.resendInterval) || frag.wireSize() > capacity {
				continue
			}
			frag.write(w)
			frag.SendCount++
			frag.LastSent = now
			capacity -= frag.wireSize()
			count++
		}
	}
	clear(f.pending[len(kept):])
	f.pending = kept
	return count
}

// TakeAbandoned returns and clears the ids of abandoned messages.
func (f *DataFragmenter) TakeAbandoned() []uint32 {
	ids := f.abandoned
	f.abandoned = nil
	return ids
}

// Ack marks a whole message acknowledged.
func (f *DataFragmenter) Ack(id uint32) {
	if m := f.find(id); m != nil {
		m.ackAll()
		f.sweep()
	}
}

// AckBitfield marks the fragments named by bf acknowledged.
func (f *DataFragmenter) AckBitfield(bf AckBitfield) {
	m := f.find(bf.MessageID)
	if m == nil {
		return
	}
	for i := range m.fragments {
		if bf.Received.Has(i) {
			m.ackFragment(i)
		}
	}
	f.sweep()
}

func (f *DataFragmenter) sweep() {
	kept := f.pending[:0]
	for _, m := range f.pending {
		if m.AllAcked() {
			f.delivered++
			continue
		}
		kept = append(kept, m)
	}
	clear(f.pending[len(kept):])
	f.pending = kept
}
