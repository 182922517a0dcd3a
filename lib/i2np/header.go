package i2np

/*
I2P I2NP Message
https://geti2p.net/spec/i2np
Accurate for version 0.9.28

Standard (16 bytes):

+----+----+----+----+----+----+----+----+
|type|      msg_id       |  expiration
+----+----+----+----+----+----+----+----+
                         |  size   |chks|
+----+----+----+----+----+----+----+----+

Short (SSU, 5 bytes):

+----+----+----+----+----+
|type| short_expiration  |
+----+----+----+----+----+

type :: Integer
        length -> 1 byte
        purpose -> identifies the message type (see table below)

msg_id :: Integer
          length -> 4 bytes
          purpose -> uniquely identifies this message (for some time at least)
                     This is usually a locally-generated random number, but
                     for outgoing tunnel build messages it may be derived from
                     the incoming message. See below.

expiration :: Date
              8 bytes
              date this message will expire

short_expiration :: Integer
                    4 bytes
                    date this message will expire (seconds since the epoch)

size :: Integer
        length -> 2 bytes
        purpose -> length of the payload

chks :: Integer
        length -> 1 byte
        purpose -> checksum of the payload
                   SHA256 hash truncated to the first byte

data ::
        length -> $size bytes
        purpose -> actual message contents

Over SSU only the short form is used. The message id is taken from the SSU
fragment header that carried the message.
*/

import (
	"encoding/binary"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// Message is an application message as seen by the transport.
type Message struct {
	msgType    int
	id         uint32
	expiration time.Time
	payload    []byte
}

// NewMessage creates a message. A zero expiration means DefaultMessageLifetime from now.
func NewMessage(msgType int, payload []byte, expiration time.Time) *Message {
	if expiration.IsZero() {
		expiration = time.Now().Add(DefaultMessageLifetime * time.Second)
	}
	return &Message{
		msgType:    msgType,
		expiration: expiration.Truncate(time.Second),
		payload:    payload,
	}
}

func (m *Message) Type() int              { return m.msgType }
func (m *Message) MessageID() uint32      { return m.id }
func (m *Message) SetMessageID(id uint32) { m.id = id }
func (m *Message) Expiration() time.Time  { return m.expiration }
func (m *Message) Payload() []byte        { return m.payload }

// SSULen returns the serialized length with the short header.
func (m *Message) SSULen() int {
	return SSUHeaderSize + len(m.payload)
}

// MarshalSSU serializes the message with the 5-byte short header.
func (m *Message) MarshalSSU() []byte {
	out := make([]byte, m.SSULen())
	out[0] = byte(m.msgType)
	binary.BigEndian.PutUint32(out[1:5], uint32(m.expiration.Unix()))
	copy(out[SSUHeaderSize:], m.payload)
	return out
}

// ReadSSUMessage parses a reassembled SSU message. id is the SSU message id.
// The payload aliases data.
func ReadSSUMessage(data []byte, id uint32) (*Message, error) {
	if len(data) < SSUHeaderSize {
		log.WithFields(logger.Fields{
			"at":          "i2np.ReadSSUMessage",
			"data_length": len(data),
		}).Debug("short ssu message")
		return nil, oops.Wrapf(ERR_I2NP_NOT_ENOUGH_DATA, "need %d bytes, got %d", SSUHeaderSize, len(data))
	}
	return &Message{
		msgType:    int(data[0]),
		id:         id,
		expiration: time.Unix(int64(binary.BigEndian.Uint32(data[1:5])), 0),
		payload:    data[SSUHeaderSize:],
	}, nil
}
