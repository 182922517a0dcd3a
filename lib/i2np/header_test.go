package i2np

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_SSURoundTrip(t *testing.T) {
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := NewMessage(I2NP_MESSAGE_TYPE_DELIVERY_STATUS, []byte("payload"), exp)

	raw := msg.MarshalSSU()
	require.Len(t, raw, SSUHeaderSize+7)
	assert.Equal(t, byte(I2NP_MESSAGE_TYPE_DELIVERY_STATUS), raw[0])

	got, err := ReadSSUMessage(raw, 0xCAFEBABE)
	require.NoError(t, err)
	assert.Equal(t, I2NP_MESSAGE_TYPE_DELIVERY_STATUS, got.Type())
	assert.Equal(t, uint32(0xCAFEBABE), got.MessageID())
	assert.True(t, exp.Equal(got.Expiration()))
	assert.Equal(t, []byte("payload"), got.Payload())
}

func TestMessage_ExpirationTruncatedToSeconds(t *testing.T) {
	exp := time.Unix(1704067200, 999_000_000)
	msg := NewMessage(I2NP_MESSAGE_TYPE_DATA, nil, exp)
	assert.Equal(t, int64(1704067200), msg.Expiration().Unix())
	assert.Equal(t, 0, msg.Expiration().Nanosecond())
}

func TestMessage_DefaultLifetime(t *testing.T) {
	msg := NewMessage(I2NP_MESSAGE_TYPE_DATA, nil, time.Time{})
	assert.WithinDuration(t, time.Now().Add(DefaultMessageLifetime*time.Second), msg.Expiration(), 2*time.Second)
}

func TestReadSSUMessage_Short(t *testing.T) {
	_, err := ReadSSUMessage([]byte{1, 2, 3}, 1)
	assert.ErrorIs(t, err, ERR_I2NP_NOT_ENOUGH_DATA)
}
