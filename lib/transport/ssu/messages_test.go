package ssu

import (
	"net/netip"
	"testing"

	"github.com/go-i2p/go-ssu/lib/common/router_identity"
	"github.com/go-i2p/go-ssu/lib/crypto/dh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRequest_RoundTrip(t *testing.T) {
	x := make([]byte, dh.PublicKeySize)
	x[0], x[255] = 1, 2
	req := &SessionRequest{X: x, BobIP: netip.MustParseAddr("198.51.100.4")}

	got, err := ParseSessionRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req.X, got.X)
	assert.Equal(t, req.BobIP, got.BobIP)

	_, err = ParseSessionRequest(x[:100])
	assert.ErrorIs(t, err, ErrShortRead)
}

func TestSessionCreated_SignatureNeedsSessionKey(t *testing.T) {
	var key [KeySize]byte
	key[3] = 9
	iv, err := NewIV()
	require.NoError(t, err)
	sig := make([]byte, 64)
	for i := range sig {
		sig[i] = byte(i)
	}
	msg := &SessionCreated{
		Y:         make([]byte, dh.PublicKeySize),
		Alice:     netip.MustParseAddrPort("203.0.113.9:1234"),
		RelayTag:  77,
		SignedOn:  1700000000,
		Signature: sig,
	}
	payload, err := msg.Encode(key, iv)
	require.NoError(t, err)

	got, err := ParseSessionCreated(payload)
	require.NoError(t, err)
	assert.Equal(t, msg.Alice, got.Alice)
	assert.Equal(t, uint32(77), got.RelayTag)
	assert.Nil(t, got.Signature)

	require.NoError(t, got.DecryptSignature(key, iv, len(sig)))
	assert.Equal(t, sig, got.Signature)

	var wrong [KeySize]byte
	other, _ := ParseSessionCreated(payload)
	require.NoError(t, other.DecryptSignature(wrong, iv, len(sig)))
	assert.NotEqual(t, sig, other.Signature)
}

func TestSessionConfirmed_SignatureEndsPayload(t *testing.T) {
	priv, err := router_identity.GeneratePrivateIdentity(router_identity.KEYCERT_SIGN_ED25519)
	require.NoError(t, err)
	sigLen, err := priv.Identity.SignatureSize()
	require.NoError(t, err)
	sig := make([]byte, sigLen)
	sig[0], sig[sigLen-1] = 0xaa, 0xbb

	msg := &SessionConfirmed{Identity: priv.Identity, SignedOn: 42, Signature: sig}
	payload, err := msg.Encode()
	require.NoError(t, err)
	assert.Zero(t, (FlagSize+TimeSize+len(payload))%16, "body needs no block padding")

	got, err := ParseSessionConfirmed(payload)
	require.NoError(t, err)
	assert.Equal(t, priv.Identity.Hash(), got.Identity.Hash())
	assert.Equal(t, uint32(42), got.SignedOn)
	assert.Equal(t, sig, got.Signature)
}

func TestRelayMessages_RoundTrip(t *testing.T) {
	req := &RelayRequest{
		RelayTag:  5,
		Challenge: []byte{1, 2},
		Nonce:     99,
	}
	req.IntroKey[0] = 7
	got, err := ParseRelayRequest(req.Encode())
	require.NoError(t, err)
	assert.Equal(t, req.RelayTag, got.RelayTag)
	assert.False(t, got.Alice.IsValid())
	assert.Equal(t, req.Challenge, got.Challenge)
	assert.Equal(t, req.IntroKey, got.IntroKey)
	assert.Equal(t, req.Nonce, got.Nonce)

	resp := &RelayResponse{
		Charlie: netip.MustParseAddrPort("192.0.2.1:10"),
		Alice:   netip.MustParseAddrPort("[2001:db8::5]:20"),
		Nonce:   3,
	}
	gotResp, err := ParseRelayResponse(resp.Encode())
	require.NoError(t, err)
	assert.Equal(t, resp, gotResp)
}

func TestPeerTestPayload_HasAddress(t *testing.T) {
	fromAlice := &PeerTestPayload{Nonce: 1}
	got, err := ParsePeerTest(fromAlice.Encode())
	require.NoError(t, err)
	assert.False(t, got.HasAddress())

	relayed := &PeerTestPayload{Nonce: 1, Alice: netip.MustParseAddrPort("192.0.2.8:9000")}
	got, err = ParsePeerTest(relayed.Encode())
	require.NoError(t, err)
	assert.True(t, got.HasAddress())
	assert.Equal(t, relayed.Alice, got.Alice)
}

func TestParseData_AcksAndFragments(t *testing.T) {
	var bf FragmentBitmap
	bf.Set(0)
	bf.Set(8)
	acks := ackSet{
		explicit:  []uint32{11, 12},
		bitfields: []AckBitfield{{MessageID: 13, Received: bf}},
	}
	w := NewWriter(nil)
	w.WriteByte(acks.flags())
	acks.write(w)
	w.WriteByte(2)
	writeFragmentHeader(w, 20, 0, false, 3)
	w.Write([]byte("abc"))
	writeFragmentHeader(w, 20, 1, true, 2)
	w.Write([]byte("de"))
	assert.Equal(t, 1+acks.size()+1+2*fragmentHeaderSize+5, w.Len())

	d, err := ParseData(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []uint32{11, 12}, d.ExplicitAcks)
	require.Len(t, d.AckBitfields, 1)
	assert.Equal(t, uint32(13), d.AckBitfields[0].MessageID)
	assert.Equal(t, bf, d.AckBitfields[0].Received)
	require.Len(t, d.Fragments, 2)
	assert.Equal(t, DataFragment{MessageID: 20, Index: 0, Data: []byte("abc")}, d.Fragments[0])
	assert.Equal(t, DataFragment{MessageID: 20, Index: 1, Last: true, Data: []byte("de")}, d.Fragments[1])
}

func TestParseData_TruncatedFragment(t *testing.T) {
	w := NewWriter(nil)
	w.WriteByte(0)
	w.WriteByte(1)
	writeFragmentHeader(w, 1, 0, true, 100)
	w.Write([]byte("short"))
	_, err := ParseData(w.Bytes())
	assert.ErrorIs(t, err, ErrInvalidFragment)
}

func TestAckBitfield_HighFragments(t *testing.T) {
	var bf FragmentBitmap
	for _, i := range []int{0, 6, 7, 63, 64, 127} {
		bf.Set(i)
	}
	a := AckBitfield{MessageID: 1, Received: bf}
	w := NewWriter(nil)
	a.write(w)
	assert.Equal(t, a.encodedSize(), w.Len())

	got, err := readAckBitfield(NewReader(w.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, bf, got.Received)
	assert.Equal(t, 6, got.Received.Count())
}
