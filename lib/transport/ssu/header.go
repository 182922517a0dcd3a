package ssu

import (
	"encoding/binary"
	"time"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-ssu/lib/crypto/aes"
	"github.com/go-i2p/go-ssu/lib/crypto/hmac"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// Keys is the pair used to seal and open a packet. Before a session key
// exists both halves are the same intro key.
type Keys struct {
	Cipher [KeySize]byte
	MAC    [KeySize]byte
}

// IntroKeys uses one intro key for both encryption and MAC.
func IntroKeys(k [KeySize]byte) Keys {
	return Keys{Cipher: k, MAC: k}
}

// Header is the decrypted fixed part of a packet.
type Header struct {
	Type       PayloadType
	IV         [IVSize]byte
	Time       time.Time
	Rekey      []byte
	ExtOptions []byte
}

// Packet is a datagram that passed MAC verification and was decrypted.
type Packet struct {
	Header
	Payload []byte
	// Keys are the keys that opened the packet.
	Keys Keys
}

// NewIV returns a random packet IV.
func NewIV() (iv [IVSize]byte, err error) {
	_, err = rand.Read(iv[:])
	return iv, err
}

// Seal encrypts and authenticates payload under keys, appending the datagram
// to dst. The IV in h is used as is so callers that need it (SessionCreated
// encrypts its signature with the same IV) can choose it first.
func Seal(dst []byte, h *Header, payload []byte, keys Keys) ([]byte, error) {
	plainLen := FlagSize + TimeSize + len(payload)
	if len(h.ExtOptions) > 0 {
		if len(h.ExtOptions) > 255 {
			return nil, oops.Wrapf(ErrMalformedPacket, "extended options of %d bytes", len(h.ExtOptions))
		}
		plainLen += 1 + len(h.ExtOptions)
	}
	bodyLen := (plainLen + aes.BlockSize - 1) &^ (aes.BlockSize - 1)

	start := len(dst)
	dst = append(dst, make([]byte, MACSize+IVSize+bodyLen)...)
	pkt := dst[start:]
	copy(pkt[MACSize:], h.IV[:])

	body := pkt[MACSize+IVSize:]
	flag := byte(h.Type) << payloadTypeBits
	if len(h.ExtOptions) > 0 {
		flag |= flagExtOptions
	}
	w := NewWriter(body[:0])
	w.WriteByte(flag)
	ts := h.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	w.WriteUint32(uint32(ts.Unix()))
	if len(h.ExtOptions) > 0 {
		w.WriteLengthPrefixed(h.ExtOptions)
	}
	w.Write(payload)
	if pad := body[plainLen:]; len(pad) > 0 {
		if _, err := rand.Read(pad); err != nil {
			return nil, oops.Wrapf(err, "packet padding")
		}
	}

	enc := &aes.AESSymmetricEncrypter{Key: keys.Cipher[:], IV: h.IV[:]}
	if err := enc.EncryptInto(body, body); err != nil {
		return nil, oops.Wrapf(err, "encrypting %s", h.Type)
	}
	mac := packetMAC(keys.MAC, body, h.IV[:])
	copy(pkt[:MACSize], mac[:])
	return dst, nil
}

// packetMAC computes HMAC-MD5(encrypted ‖ IV ‖ uint16(len ^ version)).
func packetMAC(key [KeySize]byte, encrypted, iv []byte) hmac.HMACDigest {
	var lenField [2]byte
	binary.BigEndian.PutUint16(lenField[:], uint16(len(encrypted))^ProtocolVersion)
	return hmac.I2PHMACParts(hmac.HMACKey(key), encrypted, iv, lenField[:])
}

// CheckLength rejects datagrams that cannot be a packet at all.
func CheckLength(datagram []byte) error {
	if len(datagram) < MinPacketSize || (len(datagram)-MACSize-IVSize)%aes.BlockSize != 0 {
		return ErrMalformedPacket
	}
	return nil
}

// VerifyMAC checks the datagram MAC against macKey in constant time without
// touching the encrypted body.
func VerifyMAC(datagram []byte, macKey [KeySize]byte) error {
	if err := CheckLength(datagram); err != nil {
		return err
	}
	mac := packetMAC(macKey, datagram[MACSize+IVSize:], datagram[MACSize:MACSize+IVSize])
	if !mac.Equal(datagram[:MACSize]) {
		return ErrBadMAC
	}
	return nil
}

// Open authenticates the datagram and only then decrypts it into a fresh
// buffer, leaving datagram untouched.
func Open(datagram []byte, keys Keys) (*Packet, error) {
	if err := VerifyMAC(datagram, keys.MAC); err != nil {
		return nil, err
	}
	p := &Packet{Keys: keys}
	copy(p.IV[:], datagram[MACSize:MACSize+IVSize])

	body := make([]byte, len(datagram)-MACSize-IVSize)
	dec := &aes.AESSymmetricDecrypter{Key: keys.Cipher[:], IV: p.IV[:]}
	if err := dec.DecryptInto(body, datagram[MACSize+IVSize:]); err != nil {
		return nil, oops.Wrapf(err, "decrypting packet")
	}

	r := NewReader(body)
	flag, _ := r.ReadByte()
	ts, _ := r.ReadUint32()
	p.Type = PayloadType(flag >> payloadTypeBits)
	p.Time = time.Unix(int64(ts), 0)
	if flag&flagRekey != 0 {
		rekey, err := r.Next(RekeySize)
		if err != nil {
			return nil, oops.Wrapf(ErrMalformedPacket, "rekey material truncated")
		}
		p.Rekey = rekey
	}
	if flag&flagExtOptions != 0 {
		opts, err := r.ReadLengthPrefixed()
		if err != nil {
			return nil, oops.Wrapf(ErrMalformedPacket, "extended options truncated")
		}
		p.ExtOptions = opts
	}
	p.Payload = r.Rest()
	log.WithFields(logger.Fields{
		"at":      "Open",
		"type":    p.Type.String(),
		"payload": len(p.Payload),
	}).Debug("opened packet")
	return p, nil
}

// OpenAny tries each key set in order and returns the first that
// authenticates the datagram.
func OpenAny(datagram []byte, candidates ...Keys) (*Packet, error) {
	if err := CheckLength(datagram); err != nil {
		return nil, err
	}
	for _, k := range candidates {
		p, err := Open(datagram, k)
		if err == nil {
			return p, nil
		}
		if err != ErrBadMAC {
			return nil, err
		}
	}
	return nil, ErrBadMAC
}
