package ssu

import (
	"net/netip"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-ssu/lib/common/router_identity"
	"github.com/go-i2p/go-ssu/lib/crypto/aes"
	"github.com/go-i2p/go-ssu/lib/crypto/dh"
	"github.com/samber/oops"
)

// SessionRequest opens a handshake: X ‖ ipLen ‖ BobIP.
type SessionRequest struct {
	X     []byte
	BobIP netip.Addr
}

func (m *SessionRequest) Encode() []byte {
	w := NewWriter(make([]byte, 0, dh.PublicKeySize+17))
	w.Write(m.X)
	w.WriteIP(m.BobIP)
	return w.Bytes()
}

func ParseSessionRequest(payload []byte) (*SessionRequest, error) {
	r := NewReader(payload)
	x, err := r.ReadCopy(dh.PublicKeySize)
	if err != nil {
		return nil, oops.Wrapf(err, "session request X")
	}
	ip, err := r.ReadIP()
	if err != nil {
		return nil, oops.Wrapf(err, "session request address")
	}
	return &SessionRequest{X: x, BobIP: ip}, nil
}

// SessionCreated answers a SessionRequest:
//
//	Y ‖ ipLen ‖ AliceIP ‖ AlicePort ‖ relayTag ‖ signedOn ‖ E(sig ‖ pad)
//
// The signature block is encrypted with the new session key and the
// packet IV.
type SessionCreated struct {
	Y         []byte
	Alice     netip.AddrPort
	RelayTag  uint32
	SignedOn  uint32
	Signature []byte
	// encrypted holds the still encrypted signature block after parsing.
	encrypted []byte
}

// Encode writes the payload, encrypting the signature under sessionKey
// with iv.
func (m *SessionCreated) Encode(sessionKey [KeySize]byte, iv [IVSize]byte) ([]byte, error) {
	w := NewWriter(make([]byte, 0, dh.PublicKeySize+64+len(m.Signature)))
	w.Write(m.Y)
	w.WriteEndpoint(m.Alice)
	w.WriteUint32(m.RelayTag)
	w.WriteUint32(m.SignedOn)

	block := make([]byte, (len(m.Signature)+aes.BlockSize-1)&^(aes.BlockSize-1))
	copy(block, m.Signature)
	if _, err := rand.Read(block[len(m.Signature):]); err != nil {
		return nil, oops.Wrapf(err, "signature padding")
	}
	enc := &aes.AESSymmetricEncrypter{Key: sessionKey[:], IV: iv[:]}
	if err := enc.EncryptInto(block, block); err != nil {
		return nil, oops.Wrapf(err, "encrypting signature")
	}
	w.Write(block)
	return w.Bytes(), nil
}

func ParseSessionCreated(payload []byte) (*SessionCreated, error) {
	r := NewReader(payload)
	y, err := r.ReadCopy(dh.PublicKeySize)
	if err != nil {
		return nil, oops.Wrapf(err, "session created Y")
	}
	alice, err := r.ReadEndpoint()
	if err != nil {
		return nil, oops.Wrapf(err, "session created address")
	}
	tag, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	signedOn, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return &SessionCreated{
		Y:         y,
		Alice:     alice,
		RelayTag:  tag,
		SignedOn:  signedOn,
		encrypted: append([]byte(nil), r.Rest()...),
	}, nil
}

// DecryptSignature recovers a signature of sigLen bytes from the encrypted
// block once the session key is known.
func (m *SessionCreated) DecryptSignature(sessionKey [KeySize]byte, iv [IVSize]byte, sigLen int) error {
	blockLen := (sigLen + aes.BlockSize - 1) &^ (aes.BlockSize - 1)
	if len(m.encrypted) < blockLen {
		return oops.Wrapf(ErrShortRead, "signature block of %d bytes, need %d", len(m.encrypted), blockLen)
	}
	dec := &aes.AESSymmetricDecrypter{Key: sessionKey[:], IV: iv[:]}
	plain, err := dec.DecryptNoPadding(m.encrypted[:blockLen])
	if err != nil {
		return err
	}
	m.Signature = plain[:sigLen]
	return nil
}

// SessionConfirmed carries Alice's identity and her signature:
//
//	fragInfo ‖ identLen ‖ identity ‖ signedOn ‖ pad ‖ sig
//
// Padding is chosen so the packet body needs no further block padding,
// which puts the signature at the very end of the payload.
type SessionConfirmed struct {
	Identity  *router_identity.RouterIdentity
	SignedOn  uint32
	Signature []byte
}

func (m *SessionConfirmed) Encode() ([]byte, error) {
	ident := m.Identity.Bytes()
	base := 1 + 2 + len(ident) + 4 + len(m.Signature)
	pad := (aes.BlockSize - (FlagSize+TimeSize+base)%aes.BlockSize) % aes.BlockSize

	w := NewWriter(make([]byte, 0, base+pad))
	w.WriteByte(0x01)
	w.WriteUint16(uint16(len(ident)))
	w.Write(ident)
	w.WriteUint32(m.SignedOn)
	padding := make([]byte, pad)
	if _, err := rand.Read(padding); err != nil {
		return nil, oops.Wrapf(err, "confirm padding")
	}
	w.Write(padding)
	w.Write(m.Signature)
	return w.Bytes(), nil
}

func ParseSessionConfirmed(payload []byte) (*SessionConfirmed, error) {
	r := NewReader(payload)
	info, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if info != 0x01 {
		return nil, oops.Wrapf(ErrMalformedPacket, "fragmented session confirmed (info %#x)", info)
	}
	n, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	raw, err := r.Next(int(n))
	if err != nil {
		return nil, oops.Wrapf(err, "session confirmed identity")
	}
	ident, _, err := router_identity.ReadRouterIdentity(raw)
	if err != nil {
		return nil, err
	}
	signedOn, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	sigLen, err := ident.SignatureSize()
	if err != nil {
		return nil, err
	}
	rest := r.Rest()
	if len(rest) < sigLen {
		return nil, oops.Wrapf(ErrShortRead, "session confirmed signature")
	}
	return &SessionConfirmed{
		Identity:  ident,
		SignedOn:  signedOn,
		Signature: append([]byte(nil), rest[len(rest)-sigLen:]...),
	}, nil
}

// signedData builds the tuple both handshake signatures cover:
// X ‖ Y ‖ AliceIP ‖ AlicePort ‖ BobIP ‖ BobPort ‖ relayTag ‖ signedOn.
func signedData(x, y []byte, alice, bob netip.AddrPort, relayTag, signedOn uint32) []byte {
	w := NewWriter(make([]byte, 0, len(x)+len(y)+48))
	w.Write(x)
	w.Write(y)
	w.Write(ipBytes(alice.Addr()))
	w.WriteUint16(alice.Port())
	w.Write(ipBytes(bob.Addr()))
	w.WriteUint16(bob.Port())
	w.WriteUint32(relayTag)
	w.WriteUint32(signedOn)
	return w.Bytes()
}

// RelayRequest asks an introducer to introduce Alice to the peer that holds
// RelayTag.
type RelayRequest struct {
	RelayTag  uint32
	Alice     netip.AddrPort
	Challenge []byte
	IntroKey  [KeySize]byte
	Nonce     uint32
}

func (m *RelayRequest) Encode() []byte {
	w := NewWriter(make([]byte, 0, 64+len(m.Challenge)))
	w.WriteUint32(m.RelayTag)
	w.WriteEndpoint(m.Alice)
	w.WriteLengthPrefixed(m.Challenge)
	w.Write(m.IntroKey[:])
	w.WriteUint32(m.Nonce)
	return w.Bytes()
}

func ParseRelayRequest(payload []byte) (*RelayRequest, error) {
	r := NewReader(payload)
	m := &RelayRequest{}
	var err error
	if m.RelayTag, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if m.Alice, err = r.ReadEndpoint(); err != nil {
		return nil, err
	}
	chal, err := r.ReadLengthPrefixed()
	if err != nil {
		return nil, err
	}
	m.Challenge = append([]byte(nil), chal...)
	if m.IntroKey, err = r.ReadArray32(); err != nil {
		return nil, err
	}
	if m.Nonce, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return m, nil
}

// RelayResponse tells Alice where Charlie is and how Bob saw her.
type RelayResponse struct {
	Charlie netip.AddrPort
	Alice   netip.AddrPort
	Nonce   uint32
}

func (m *RelayResponse) Encode() []byte {
	w := NewWriter(make([]byte, 0, 48))
	w.WriteEndpoint(m.Charlie)
	w.WriteEndpoint(m.Alice)
	w.WriteUint32(m.Nonce)
	return w.Bytes()
}

func ParseRelayResponse(payload []byte) (*RelayResponse, error) {
	r := NewReader(payload)
	m := &RelayResponse{}
	var err error
	if m.Charlie, err = r.ReadEndpoint(); err != nil {
		return nil, err
	}
	if m.Alice, err = r.ReadEndpoint(); err != nil {
		return nil, err
	}
	if m.Nonce, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	return m, nil
}

// RelayIntro tells Charlie to punch a hole towards Alice.
type RelayIntro struct {
	Alice     netip.AddrPort
	Challenge []byte
}

func (m *RelayIntro) Encode() []byte {
	w := NewWriter(make([]byte, 0, 24+len(m.Challenge)))
	w.WriteEndpoint(m.Alice)
	w.WriteLengthPrefixed(m.Challenge)
	return w.Bytes()
}

func ParseRelayIntro(payload []byte) (*RelayIntro, error) {
	r := NewReader(payload)
	alice, err := r.ReadEndpoint()
	if err != nil {
		return nil, err
	}
	chal, err := r.ReadLengthPrefixed()
	if err != nil {
		return nil, err
	}
	return &RelayIntro{Alice: alice, Challenge: append([]byte(nil), chal...)}, nil
}

// PeerTestPayload is nonce ‖ ipLen ‖ AliceIP ‖ port ‖ introKey. An empty
// address marks the packet as coming from Alice herself.
type PeerTestPayload struct {
	Nonce    uint32
	Alice    netip.AddrPort
	IntroKey [KeySize]byte
}

func (m *PeerTestPayload) Encode() []byte {
	w := NewWriter(make([]byte, 0, 60))
	w.WriteUint32(m.Nonce)
	w.WriteEndpoint(m.Alice)
	w.Write(m.IntroKey[:])
	return w.Bytes()
}

func ParsePeerTest(payload []byte) (*PeerTestPayload, error) {
	r := NewReader(payload)
	m := &PeerTestPayload{}
	var err error
	if m.Nonce, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if m.Alice, err = r.ReadEndpoint(); err != nil {
		return nil, err
	}
	if m.IntroKey, err = r.ReadArray32(); err != nil {
		return nil, err
	}
	return m, nil
}

// HasAddress reports whether the Alice address is filled in.
func (m *PeerTestPayload) HasAddress() bool {
	return m.Alice.Addr().IsValid()
}

// DataFragment is one fragment parsed out of a Data packet.
type DataFragment struct {
	MessageID uint32
	Index     int
	Last      bool
	Data      []byte
}

// DataPayload is a parsed Data packet.
type DataPayload struct {
	Flags        byte
	ExplicitAcks []uint32
	AckBitfields []AckBitfield
	Fragments    []DataFragment
}

// ParseData decodes acks and fragments from a Data payload. Fragment data
// aliases payload.
func ParseData(payload []byte) (*DataPayload, error) {
	r := NewReader(payload)
	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d := &DataPayload{Flags: flags}
	if flags&dataFlagExplicitAcks != 0 {
		n, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		d.ExplicitAcks = make([]uint32, 0, n)
		for i := 0; i < int(n); i++ {
			id, err := r.ReadUint32()
			if err != nil {
				return nil, oops.Wrapf(err, "explicit ack %d", i)
			}
			d.ExplicitAcks = append(d.ExplicitAcks, id)
		}
	}
	if flags&dataFlagAckBitfields != 0 {
		n, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		for i := 0; i < int(n); i++ {
			bf, err := readAckBitfield(r)
			if err != nil {
				return nil, oops.Wrapf(err, "ack bitfield %d", i)
			}
			d.AckBitfields = append(d.AckBitfields, bf)
		}
	}
	if flags&dataFlagExtData != 0 {
		if _, err := r.ReadLengthPrefixed(); err != nil {
			return nil, err
		}
	}
	n, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	for i := 0; i < int(n); i++ {
		id, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		info, err := r.ReadUint24()
		if err != nil {
			return nil, err
		}
		size := int(info & MaxFragmentSize)
		body, err := r.Next(size)
		if err != nil {
			return nil, oops.Wrapf(ErrInvalidFragment, "fragment %d claims %d bytes", i, size)
		}
		d.Fragments = append(d.Fragments, DataFragment{
			MessageID: id,
			Index:     int(info >> 17 & 0x7f),
			Last:      info&(1<<16) != 0,
			Data:      body,
		})
	}
	return d, nil
}

// writeFragmentHeader writes msgID ‖ info for one fragment.
func writeFragmentHeader(w *Writer, msgID uint32, index int, last bool, size int) {
	info := uint32(index&0x7f)<<17 | uint32(size&MaxFragmentSize)
	if last {
		info |= 1 << 16
	}
	w.WriteUint32(msgID)
	w.WriteUint24(info)
}
