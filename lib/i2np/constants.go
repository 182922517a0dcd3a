package i2np

import "errors"

// Message types the transport itself cares about. Every other type value is
// carried through untouched.
const (
	I2NP_MESSAGE_TYPE_DATABASE_STORE  = 1
	I2NP_MESSAGE_TYPE_DELIVERY_STATUS = 10
	I2NP_MESSAGE_TYPE_GARLIC          = 11
	I2NP_MESSAGE_TYPE_TUNNEL_DATA     = 18
	I2NP_MESSAGE_TYPE_DATA            = 20
)

// SSUHeaderSize is the length of the short header used over SSU.
const SSUHeaderSize = 5

var (
	ERR_I2NP_NOT_ENOUGH_DATA = errors.New("not enough i2np header data")
	ERR_I2NP_MESSAGE_EXPIRED = errors.New("i2np message has expired")
)

// Default expiration tolerance for clock skew (5 minutes into the past).
const DefaultExpirationTolerance = 5 * 60

// DefaultMessageLifetime is the expiration applied by NewMessage when none is given.
const DefaultMessageLifetime = 60 // seconds
