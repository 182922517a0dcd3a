package ssu

import (
	"encoding/binary"
	"net/netip"
)

// Reader is a bounds-checked cursor over an immutable byte slice. Every read
// either consumes exactly what it asked for or returns ErrShortRead and
// leaves the cursor where it was.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Len is the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.buf) - r.off
}

// Offset is the number of bytes consumed so far.
func (r *Reader) Offset() int {
	return r.off
}

func (r *Reader) ReadByte() (byte, error) {
	if r.Len() < 1 {
		return 0, ErrShortRead
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.Next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadUint24 reads a three byte big endian value.
func (r *Reader) ReadUint24() (uint32, error) {
	b, err := r.Next(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2]), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Next returns the next n bytes as a sub-slice of the underlying buffer.
// Callers that keep the bytes past the lifetime of the datagram must copy.
func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrShortRead
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

// ReadCopy is Next followed by a copy.
func (r *Reader) ReadCopy(n int) ([]byte, error) {
	b, err := r.Next(n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (r *Reader) ReadArray32() (k [32]byte, err error) {
	b, err := r.Next(32)
	if err != nil {
		return k, err
	}
	copy(k[:], b)
	return k, nil
}

// ReadLengthPrefixed reads a one byte length followed by that many bytes.
func (r *Reader) ReadLengthPrefixed() ([]byte, error) {
	mark := r.off
	n, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	b, err := r.Next(int(n))
	if err != nil {
		r.off = mark
		return nil, err
	}
	return b, nil
}

// ReadIP reads a length-prefixed IP address. A zero length yields the zero
// Addr, which is how an unfilled address is encoded.
func (r *Reader) ReadIP() (netip.Addr, error) {
	mark := r.off
	b, err := r.ReadLengthPrefixed()
	if err != nil {
		return netip.Addr{}, err
	}
	switch len(b) {
	case 0:
		return netip.Addr{}, nil
	case 4:
		return netip.AddrFrom4([4]byte(b)), nil
	case 16:
		return netip.AddrFrom16([16]byte(b)).Unmap(), nil
	default:
		r.off = mark
		return netip.Addr{}, ErrMalformedPacket
	}
}

// ReadEndpoint reads a length-prefixed IP followed by a two byte port.
func (r *Reader) ReadEndpoint() (netip.AddrPort, error) {
	mark := r.off
	ip, err := r.ReadIP()
	if err != nil {
		return netip.AddrPort{}, err
	}
	port, err := r.ReadUint16()
	if err != nil {
		r.off = mark
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(ip, port), nil
}

// Rest consumes and returns everything left.
func (r *Reader) Rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}
