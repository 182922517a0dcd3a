package ssu

import "math/bits"

// FragmentBitmap records which of a message's up to 128 fragments are
// present.
type FragmentBitmap [2]uint64

func (b *FragmentBitmap) Set(i int)     { b[i>>6] |= 1 << uint(i&63) }
func (b FragmentBitmap) Has(i int) bool { return b[i>>6]&(1<<uint(i&63)) != 0 }
func (b FragmentBitmap) Count() int     { return bits.OnesCount64(b[0]) + bits.OnesCount64(b[1]) }
func (b FragmentBitmap) Empty() bool    { return b[0]|b[1] == 0 }
func (b FragmentBitmap) highest() int {
	if b[1] != 0 {
		return 127 - bits.LeadingZeros64(b[1])
	}
	return 63 - bits.LeadingZeros64(b[0])
}

// AckBitfield acknowledges the fragments of a partially received message.
type AckBitfield struct {
	MessageID uint32
	Received  FragmentBitmap
}

// encodedSize is 4 bytes of id plus one byte per seven fragments.
func (a AckBitfield) encodedSize() int {
	return 4 + bitfieldBytes(a.Received)
}

func bitfieldBytes(b FragmentBitmap) int {
	n := b.highest() + 1
	if n <= 0 {
		return 1
	}
	return (n + 6) / 7
}

// write emits msgID followed by 7-bit groups, low fragments first; the high
// bit of each byte says another byte follows.
func (a AckBitfield) write(w *Writer) {
	w.WriteUint32(a.MessageID)
	n := bitfieldBytes(a.Received)
	for i := 0; i < n; i++ {
		var v byte
		for j := 0; j < 7; j++ {
			if idx := i*7 + j; idx < MaxFragments && a.Received.Has(idx) {
				v |= 1 << uint(j)
			}
		}
		if i < n-1 {
			v |= 0x80
		}
		w.WriteByte(v)
	}
}

func readAckBitfield(r *Reader) (AckBitfield, error) {
	var a AckBitfield
	id, err := r.ReadUint32()
	if err != nil {
		return a, err
	}
	a.MessageID = id
	for i := 0; ; i++ {
		v, err := r.ReadByte()
		if err != nil {
			return a, err
		}
		for j := 0; j < 7; j++ {
			if idx := i*7 + j; v&(1<<uint(j)) != 0 {
				if idx >= MaxFragments {
					return a, ErrInvalidFragment
				}
				a.Received.Set(idx)
			}
		}
		if v&0x80 == 0 {
			return a, nil
		}
		if (i+1)*7 >= MaxFragments {
			return a, ErrInvalidFragment
		}
	}
}

// ackSet is what one Data packet acknowledges.
type ackSet struct {
	explicit  []uint32
	bitfields []AckBitfield
}

func (a ackSet) empty() bool {
	return len(a.explicit) == 0 && len(a.bitfields) == 0
}

// size is the encoded length including the count bytes.
func (a ackSet) size() int {
	n := 0
	if len(a.explicit) > 0 {
		n += 1 + explicitAckSize*len(a.explicit)
	}
	if len(a.bitfields) > 0 {
		n++
		for _, bf := range a.bitfields {
			n += bf.encodedSize()
		}
	}
	return n
}

func (a ackSet) flags() byte {
	var f byte
	if len(a.explicit) > 0 {
		f |= dataFlagExplicitAcks
	}
	if len(a.bitfields) > 0 {
		f |= dataFlagAckBitfields
	}
	return f
}

func (a ackSet) write(w *Writer) {
	if len(a.explicit) > 0 {
		w.WriteByte(byte(len(a.explicit)))
		for _, id := range a.explicit {
			w.WriteUint32(id)
		}
	}
	if len(a.bitfields) > 0 {
		w.WriteByte(byte(len(a.bitfields)))
		for _, bf := range a.bitfields {
			bf.write(w)
		}
	}
}
