// Package skew validates peer-supplied timestamps against the local clock.
//
// SSU handshake headers carry the sender's clock in seconds; packets whose
// timestamp falls outside the configured window are rejected so that stale
// captures cannot be replayed and badly skewed peers are detected early.
//
//	if err := skew.ValidateAt(headerTime, clock.Now(), 60*time.Second); err != nil {
//	    // drop the packet
//	}
package skew
