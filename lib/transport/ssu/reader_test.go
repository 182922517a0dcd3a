package ssu

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterReader_Fields(t *testing.T) {
	w := NewWriter(nil)
	w.WriteByte(0xab)
	w.WriteUint16(0x1234)
	w.WriteUint24(0x56789a)
	w.WriteUint32(0xdeadbeef)
	w.WriteLengthPrefixed([]byte("hi"))
	w.WriteEndpoint(netip.MustParseAddrPort("192.0.2.7:8887"))
	w.WriteEndpoint(netip.MustParseAddrPort("[2001:db8::1]:443"))
	w.WriteIP(netip.Addr{})

	r := NewReader(w.Bytes())
	b, err := r.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), b)
	u16, _ := r.ReadUint16()
	assert.Equal(t, uint16(0x1234), u16)
	u24, _ := r.ReadUint24()
	assert.Equal(t, uint32(0x56789a), u24)
	u32, _ := r.ReadUint32()
	assert.Equal(t, uint32(0xdeadbeef), u32)
	lp, err := r.ReadLengthPrefixed()
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), lp)
	v4, err := r.ReadEndpoint()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("192.0.2.7:8887"), v4)
	v6, err := r.ReadEndpoint()
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddrPort("[2001:db8::1]:443"), v6)
	empty, err := r.ReadIP()
	require.NoError(t, err)
	assert.False(t, empty.IsValid())
	assert.Zero(t, r.Len())
}

func TestReader_ShortReads(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	_, err := r.ReadUint32()
	assert.ErrorIs(t, err, ErrShortRead)

	r = NewReader([]byte{5, 1, 2})
	_, err = r.ReadLengthPrefixed()
	assert.ErrorIs(t, err, ErrShortRead)

	_, err = NewReader(nil).ReadByte()
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestReader_BadIPLength(t *testing.T) {
	r := NewReader([]byte{5, 1, 2, 3, 4, 5})
	_, err := r.ReadIP()
	assert.ErrorIs(t, err, ErrMalformedPacket)
}

func TestReader_MappedIPv4IsUnmapped(t *testing.T) {
	w := NewWriter(nil)
	w.WriteByte(16)
	mapped := netip.MustParseAddr("::ffff:10.1.2.3").As16()
	w.Write(mapped[:])
	ip, err := NewReader(w.Bytes()).ReadIP()
	require.NoError(t, err)
	assert.True(t, ip.Is4())
	assert.Equal(t, "10.1.2.3", ip.String())
}

func TestWriter_ReserveAndPatch(t *testing.T) {
	w := NewWriter(make([]byte, 0, 8))
	pos := w.Reserve(1)
	w.WriteUint16(7)
	w.Patch(pos, 0x42)
	assert.Equal(t, []byte{0x42, 0, 7}, w.Bytes())
}
