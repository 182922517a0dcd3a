// Package monotonic provides the transport clock.
//
// Clock.Now returns time.Now shifted by an offset learned from NTP. The value
// keeps Go's monotonic reading, so durations computed between two Now calls
// are immune to wall clock jumps, while the wall part is what goes on the wire
// in SSU header timestamps.
package monotonic
