package skew

import (
	"errors"
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

// DefaultMaxSkew is the window applied to SSU handshake timestamps.
const DefaultMaxSkew = 60 * time.Second

var ErrClockSkew = errors.New("clock skew")

// nowFunc is overridable for testing. Defaults to time.Now.
var nowFunc = time.Now

// ValidateTimestampWithSkew checks published against the current time.
// A zero-value time.Time is always rejected. A non-positive maxSkew is rejected
// with an error.
func ValidateTimestampWithSkew(published time.Time, maxSkew time.Duration) error {
	return ValidateAt(published, nowFunc(), maxSkew)
}

// ValidateAt checks that published lies within ±maxSkew of now.
func ValidateAt(published, now time.Time, maxSkew time.Duration) error {
	if maxSkew <= 0 {
		return oops.Errorf("clock skew: maxSkew must be positive, got %s", maxSkew)
	}
	if published.IsZero() {
		return oops.Wrapf(ErrClockSkew, "timestamp is zero")
	}

	skew := now.Sub(published)
	if skew > maxSkew {
		log.WithFields(logger.Fields{
			"at":   "skew.ValidateAt",
			"skew": skew.String(),
			"max":  maxSkew.String(),
		}).Debug("timestamp too far in the past")
		return oops.Wrapf(ErrClockSkew, "timestamp is %s in the past (max %s)", skew, maxSkew)
	}
	if skew < -maxSkew {
		log.WithFields(logger.Fields{
			"at":   "skew.ValidateAt",
			"skew": (-skew).String(),
			"max":  maxSkew.String(),
		}).Debug("timestamp too far in the future")
		return oops.Wrapf(ErrClockSkew, "timestamp is %s in the future (max %s)", -skew, maxSkew)
	}
	return nil
}
