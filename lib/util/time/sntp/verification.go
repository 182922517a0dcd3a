package sntp

import (
	"time"

	"github.com/beevik/ntp"
	"github.com/samber/oops"
)

const (
	maxRTT            = 2 * time.Second
	maxClockOffset    = 10 * time.Minute
	maxRootDispersion = 1 * time.Second
	maxRootDelay      = 1 * time.Second
)

// validateResponse checks the leap indicator, stratum level, timing metrics,
// time value and root metrics of a response.
func validateResponse(response *ntp.Response) error {
	if response.Leap == ntp.LeapNotInSync {
		return oops.Errorf("server clock not synchronized")
	}
	if response.Stratum == 0 || response.Stratum > 15 {
		return oops.Errorf("stratum %d out of range", response.Stratum)
	}
	if response.RTT < 0 || response.RTT > maxRTT {
		return oops.Errorf("round-trip delay %v out of bounds", response.RTT)
	}
	if absDuration(response.ClockOffset) > maxClockOffset {
		return oops.Errorf("clock offset %v out of bounds", response.ClockOffset)
	}
	if response.Time.IsZero() {
		return oops.Errorf("zero time")
	}
	if response.RootDispersion > maxRootDispersion || response.RootDelay > maxRootDelay {
		return oops.Errorf("root metrics too high (dispersion %v, delay %v)", response.RootDispersion, response.RootDelay)
	}
	return nil
}
