package ssu

import (
	"encoding/binary"
	"net/netip"
)

// Writer appends big endian fields to a byte slice.
type Writer struct {
	buf []byte
}

// NewWriter writes into buf starting at its current length.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) WriteByte(b byte) error {
	w.buf = append(w.buf, b)
	return nil
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteUint24(v uint32) {
	w.buf = append(w.buf, byte(v>>16), byte(v>>8), byte(v))
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	return len(b), nil
}

func (w *Writer) WriteLengthPrefixed(b []byte) {
	w.buf = append(w.buf, byte(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteIP writes a length-prefixed address; the zero Addr is written as an
// empty field.
func (w *Writer) WriteIP(ip netip.Addr) {
	if !ip.IsValid() {
		w.buf = append(w.buf, 0)
		return
	}
	w.WriteLengthPrefixed(ipBytes(ip))
}

func (w *Writer) WriteEndpoint(ep netip.AddrPort) {
	w.WriteIP(ep.Addr())
	w.WriteUint16(ep.Port())
}

// Reserve appends n zero bytes and returns their offset for later patching.
func (w *Writer) Reserve(n int) int {
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return off
}

// Patch overwrites one previously reserved byte.
func (w *Writer) Patch(off int, b byte) {
	w.buf[off] = b
}

func ipBytes(ip netip.Addr) []byte {
	if ip.Is4() || ip.Is4In6() {
		b := ip.Unmap().As4()
		return b[:]
	}
	b := ip.As16()
	return b[:]
}
