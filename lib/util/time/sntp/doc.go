// Package sntp keeps the transport clock in step with NTP.
//
// A Timestamper queries a handful of samples from an NTP server with
// github.com/beevik/ntp, rejects responses that fail sanity checks, takes the
// median offset and pushes it into every registered OffsetListener (typically
// a *monotonic.Clock).
package sntp
