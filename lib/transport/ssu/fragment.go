package ssu

import "time"

// Fragment is one contiguous slice of an outbound message.
type Fragment struct {
	MessageID uint32
	Index     int
	Last      bool
	Data      []byte
	SendCount int
	LastSent  time.Time
	Acked     bool
}

func (f *Fragment) wireSize() int {
	return fragmentHeaderSize + len(f.Data)
}

func (f *Fragment) write(w *Writer) {
	writeFragmentHeader(w, f.MessageID, f.Index, f.Last, len(f.Data))
	w.Write(f.Data)
}

// dueForResend is true once an unacked fragment has waited interval since
// it was last sent.
func (f *Fragment) dueForResend(now time.Time, interval time.Duration) bool {
	return !f.Acked && f.SendCount > 0 && now.Sub(f.LastSent) >= interval
}

// FragmentedMessage is an outbound message in flight. Fragments are cut
// lazily, when there is room for them in a packet, so the fragment size
// follows the space actually available.
type FragmentedMessage struct {
	ID        uint32
	data      []byte
	offset    int
	minSize   int
	fragments []*Fragment
	acked     int
	enqueued  time.Time
}

func newFragmentedMessage(id uint32, data []byte, now time.Time) *FragmentedMessage {
	return &FragmentedMessage{
		ID:       id,
		data:     data,
		minSize:  (len(data) + MaxFragments - 1) / MaxFragments,
		enqueued: now,
	}
}

// Size is the length of the whole message.
func (m *FragmentedMessage) Size() int { return len(m.data) }

// Fragments returns the fragments cut so far.
func (m *FragmentedMessage) Fragments() []*Fragment { return m.fragments }

// FullyCut reports whether every byte belongs to a fragment.
func (m *FragmentedMessage) FullyCut() bool {
	return m.offset == len(m.data)
}

// AllAcked reports whether the peer acknowledged the entire message.
func (m *FragmentedMessage) AllAcked() bool {
	return m.FullyCut() && m.acked == len(m.fragments)
}

// cut takes the next fragment of at most room bytes. A fragment smaller
// than len/128 is only cut when it is the remainder, which keeps every
// message within MaxFragments.
func (m *FragmentedMessage) cut(room int) *Fragment {
	remaining := len(m.data) - m.offset
	if remaining == 0 || room <= 0 {
		return nil
	}
	size := min(remaining, room, MaxFragmentSize)
	if size < remaining && (size < m.minSize || len(m.fragments) == MaxFragments-1) {
		return nil
	}
	f := &Fragment{
		MessageID: m.ID,
		Index:     len(m.fragments),
		Last:      size == remaining,
		Data:      m.data[m.offset : m.offset+size],
	}
	m.offset += size
	m.fragments = append(m.fragments, f)
	return f
}

func (m *FragmentedMessage) ackFragment(i int) {
	if i < len(m.fragments) && !m.fragments[i].Acked {
		m.fragments[i].Acked = true
		m.acked++
	}
}

func (m *FragmentedMessage) ackAll() {
	for i := range m.fragments {
		m.ackFragment(i)
	}
}

// DueForResend lists the unacked fragments that have waited interval.
func (m *FragmentedMessage) DueForResend(now time.Time, interval time.Duration) []*Fragment {
	var due []*Fragment
	for _, f := range m.fragments {
		if f.dueForResend(now, interval) {
			due = append(due, f)
		}
	}
	return due
}

// outgrown reports whether part of the message can no longer go out in a
// packet offering limit bytes: a due fragment cut for a larger MTU, or a
// remainder that cannot be cut at that size.
func (m *FragmentedMessage) outgrown(now time.Time, interval time.Duration, limit int) bool {
	for _, f := range m.fragments {
		if f.dueForResend(now, interval) && f.wireSize() > limit {
			return true
		}
	}
	if m.FullyCut() {
		return false
	}
	room := min(limit-fragmentHeaderSize, MaxFragmentSize)
	remaining := len(m.data) - m.offset
	return room < remaining && (room < m.minSize || len(m.fragments) == MaxFragments-1)
}

// exhausted reports whether a due fragment already used every send.
func (m *FragmentedMessage) exhausted(now time.Time, interval time.Duration, maxSends int) bool {
	for _, f := range m.fragments {
		if f.dueForResend(now, interval) && f.SendCount >= maxSends {
			return true
		}
	}
	return false
}
