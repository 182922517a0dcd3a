package i2np

import (
	"time"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// ExpirationValidator rejects messages whose expiration has passed, allowing
// for clock skew between routers.
type ExpirationValidator struct {
	// messages that expired within this window are still accepted
	toleranceSeconds int64
	// nil means time.Now
	timeSource func() time.Time
	enabled    bool
}

// NewExpirationValidator creates a validator with DefaultExpirationTolerance.
func NewExpirationValidator() *ExpirationValidator {
	return &ExpirationValidator{
		toleranceSeconds: DefaultExpirationTolerance,
		enabled:          true,
	}
}

// WithTolerance sets the clock skew tolerance in seconds.
// Returns the validator for method chaining.
func (v *ExpirationValidator) WithTolerance(seconds int64) *ExpirationValidator {
	if seconds < 0 {
		seconds = 0
	}
	v.toleranceSeconds = seconds
	return v
}

// WithTimeSource sets a custom time source for testing.
// Returns the validator for method chaining.
func (v *ExpirationValidator) WithTimeSource(source func() time.Time) *ExpirationValidator {
	v.timeSource = source
	return v
}

// Disable turns off expiration checking.
// Returns the validator for method chaining.
func (v *ExpirationValidator) Disable() *ExpirationValidator {
	v.enabled = false
	return v
}

// IsEnabled returns whether expiration checking is enabled.
func (v *ExpirationValidator) IsEnabled() bool {
	return v.enabled
}

// now returns the current time using the configured time source.
func (v *ExpirationValidator) now() time.Time {
	if v.timeSource != nil {
		return v.timeSource()
	}
	return time.Now()
}

// IsExpired checks if the given expiration time is in the past,
// accounting for the configured tolerance.
func (v *ExpirationValidator) IsExpired(expiration time.Time) bool {
	if !v.enabled {
		return false
	}

	return v.now().After(expiration.Add(time.Duration(v.toleranceSeconds) * time.Second))
}

// ValidateExpiration checks if the message expiration is valid.
// Returns nil if valid, or an error describing the expiration issue.
func (v *ExpirationValidator) ValidateExpiration(expiration time.Time) error {
	if !v.enabled {
		return nil
	}

	if v.IsExpired(expiration) {
		now := v.now()
		age := now.Sub(expiration)
		return oops.Wrapf(ERR_I2NP_MESSAGE_EXPIRED,
			"message expired %v ago (expiration: %v, now: %v, tolerance: %ds)",
			age.Round(time.Second), expiration.UTC(), now.UTC(), v.toleranceSeconds)
	}
	return nil
}

// ValidateMessage checks if a message has expired.
func (v *ExpirationValidator) ValidateMessage(msg *Message) error {
	if !v.enabled {
		return nil
	}

	expiration := msg.Expiration()
	if err := v.ValidateExpiration(expiration); err != nil {
		log.WithFields(logger.Fields{
			"at":         "(ExpirationValidator) ValidateMessage",
			"type":       msg.Type(),
			"message_id": msg.MessageID(),
			"expiration": expiration.UTC(),
		}).Warn("rejecting expired message")
		return err
	}
	return nil
}
