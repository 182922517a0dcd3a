package ssu

import (
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// RebuildMessage collects the fragments of one inbound message. Slots are
// indexed by fragment number; the message is complete once the last
// fragment and every slot below it are filled.
type RebuildMessage struct {
	ID        uint32
	fragments [MaxFragments][]byte
	received  FragmentBitmap
	lastIndex int
	size      int
	opened    time.Time
	ackCount  int
	dirty     bool
}

func newRebuildMessage(id uint32, now time.Time) *RebuildMessage {
	return &RebuildMessage{ID: id, lastIndex: -1, opened: now}
}

// Complete reports whether every fragment has arrived.
func (m *RebuildMessage) Complete() bool {
	return m.lastIndex >= 0 && m.received.Count() == m.lastIndex+1
}

// OpenFor is how long the message has been waiting for fragments.
func (m *RebuildMessage) OpenFor(now time.Time) time.Duration {
	return now.Sub(m.opened)
}

// AckCount is how many bitfield acks were sent for this message.
func (m *RebuildMessage) AckCount() int {
	return m.ackCount
}

func (m *RebuildMessage) add(f DataFragment) error {
	if m.lastIndex >= 0 && f.Index > m.lastIndex {
		return oops.Wrapf(ErrInvalidFragment, "fragment %d after last fragment %d", f.Index, m.lastIndex)
	}
	if f.Last {
		if m.lastIndex >= 0 && m.lastIndex != f.Index {
			return oops.Wrapf(ErrInvalidFragment, "two last fragments (%d and %d)", m.lastIndex, f.Index)
		}
		if !m.received.Empty() && m.received.highest() > f.Index {
			return oops.Wrapf(ErrInvalidFragment, "last fragment %d below received %d", f.Index, m.received.highest())
		}
	}
	m.dirty = true
	if m.received.Has(f.Index) {
		return nil
	}
	if m.size+len(f.Data) > MaxMessageSize {
		return oops.Wrapf(ErrMessageTooLarge, "message %d grows past %d bytes", m.ID, MaxMessageSize)
	}
	m.fragments[f.Index] = append([]byte(nil), f.Data...)
	m.received.Set(f.Index)
	m.size += len(f.Data)
	if f.Last {
		m.lastIndex = f.Index
	}
	return nil
}

func (m *RebuildMessage) assemble() []byte {
	out := make([]byte, 0, m.size)
	for i := 0; i <= m.lastIndex; i++ {
		out = append(out, m.fragments[i]...)
	}
	return out
}

type completedMessage struct {
	at       time.Time
	acksLeft int
}

// DataDefragmenter reassembles inbound messages and decides which acks to
// send. Completed ids are remembered for a while so a resent fragment is
// acked again but never delivered twice.
type DataDefragmenter struct {
	open      map[uint32]*RebuildMessage
	completed map[uint32]*completedMessage
	order     []uint32
	timeout   time.Duration
	maxOpen   int
	evicted   int
}

func NewDataDefragmenter() *DataDefragmenter {
	return &DataDefragmenter{
		open:      make(map[uint32]*RebuildMessage),
		completed: make(map[uint32]*completedMessage),
		timeout:   ReassemblyTimeout,
		maxOpen:   MaxOpenMessages,
	}
}

// OpenCount is the number of partially received messages.
func (d *DataDefragmenter) OpenCount() int {
	return len(d.open)
}

// Evicted counts messages dropped before completing.
func (d *DataDefragmenter) Evicted() int {
	return d.evicted
}

// AddFragment stores one fragment. When it completes a message the whole
// message is returned.
func (d *DataDefragmenter) AddFragment(f DataFragment, now time.Time) ([]byte, error) {
	if c, ok := d.completed[f.MessageID]; ok {
		c.acksLeft = AckRepeat
		return nil, nil
	}
	m, ok := d.open[f.MessageID]
	if !ok {
		if len(d.open) >= d.maxOpen {
			d.evictOldest()
		}
		m = newRebuildMessage(f.MessageID, now)
		d.open[f.MessageID] = m
	}
	if err := m.add(f); err != nil {
		delete(d.open, f.MessageID)
		d.evicted++
		return nil, err
	}
	if !m.Complete() {
		return nil, nil
	}
	delete(d.open, f.MessageID)
	d.markCompleted(f.MessageID, now)
	return m.assemble(), nil
}

func (d *DataDefragmenter) markCompleted(id uint32, now time.Time) {
	if len(d.order) >= completedWindow {
		delete(d.completed, d.order[0])
		d.order = d.order[1:]
	}
	d.completed[id] = &completedMessage{at: now, acksLeft: AckRepeat}
	d.order = append(d.order, id)
}

func (d *DataDefragmenter) evictOldest() {
	var oldest *RebuildMessage
	for _, m := range d.open {
		if oldest == nil || m.opened.Before(oldest.opened) {
			oldest = m
		}
	}
	if oldest != nil {
		log.WithFields(logger.Fields{
			"at":         "(DataDefragmenter) evictOldest",
			"reason":     "too_many_open_messages",
			"message_id": oldest.ID,
		}).Debug("evicting partial message")
		delete(d.open, oldest.ID)
		d.evicted++
	}
}

// HasPendingAcks reports whether the next Data packet has acks to carry.
func (d *DataDefragmenter) HasPendingAcks() bool {
	for _, c := range d.completed {
		if c.acksLeft > 0 {
			return true
		}
	}
	for _, m := range d.open {
		if m.dirty {
			return true
		}
	}
	return false
}

// Acks picks the acks for one packet within room bytes. Completed messages
// are acked explicitly, four bytes per id, which is never larger than a
// bitfield; partial messages get a bitfield.
func (d *DataDefragmenter) Acks(room int) ackSet {
	var set ackSet
	for _, id := range d.order {
		c := d.completed[id]
		if c.acksLeft == 0 || len(set.explicit) == 255 {
			continue
		}
		need := explicitAckSize
		if len(set.explicit) == 0 {
			need++
		}
		if need > room {
			break
		}
		set.explicit = append(set.explicit, id)
		c.acksLeft--
		room -= need
	}
	for _, m := range d.open {
		if !m.dirty || len(set.bitfields) == 255 {
			continue
		}
		bf := AckBitfield{MessageID: m.ID, Received: m.received}
		need := bf.encodedSize()
		if len(set.bitfields) == 0 {
			need++
		}
		if need > room {
			continue
		}
		set.bitfields = append(set.bitfields, bf)
		m.dirty = false
		m.ackCount++
		room -= need
	}
	return set
}

// Housekeep drops partial messages older than the reassembly timeout and
// forgets completed ids older than it. It returns how many partial messages
// were evicted.
func (d *DataDefragmenter) Housekeep(now time.Time) int {
	n := 0
	for id, m := range d.open {
		if m.OpenFor(now) >= d.timeout {
			delete(d.open, id)
			n++
		}
	}
	d.evicted += n
	keep := 0
	for _, id := range d.order {
		if c := d.completed[id]; now.Sub(c.at) >= d.timeout && c.acksLeft == 0 {
			delete(d.completed, id)
			continue
		}
		d.order[keep] = id
		keep++
	}
	d.order = d.order[:keep]
	return n
}
