package ssu

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/go-i2p/common/data"
	"github.com/samber/oops"
)

// Sentinels are plain errors so that oops wrapping keeps them matchable
// with errors.Is.
var (
	ErrShortRead              = errors.New("ssu: read past end of buffer")
	ErrMalformedPacket        = errors.New("ssu: malformed packet")
	ErrBadMAC                 = errors.New("ssu: MAC verification failed")
	ErrUnexpectedPayload      = errors.New("ssu: unexpected payload type for state")
	ErrSignatureFailed        = errors.New("ssu: handshake signature verification failed")
	ErrHandshakeTimeout       = errors.New("ssu: handshake retries exhausted")
	ErrRelayTimeout           = errors.New("ssu: no relay response from introducers")
	ErrTooManyMACFailures     = errors.New("ssu: too many consecutive MAC failures")
	ErrSessionTerminated      = errors.New("ssu: session terminated")
	ErrSessionDestroyed       = errors.New("ssu: session destroyed by peer")
	ErrIdleTimeout            = errors.New("ssu: session idle timeout")
	ErrMessageTooLarge        = errors.New("ssu: message exceeds maximum size")
	ErrMessageExpired         = errors.New("ssu: message expired before send")
	ErrMessageAbandoned       = errors.New("ssu: message abandoned after max sends")
	ErrInvalidFragment        = errors.New("ssu: invalid fragment")
	ErrInvalidAddress         = errors.New("ssu: address family not accepted")
	ErrPeerUnknown            = errors.New("ssu: peer not found in directory")
	ErrNoUsableAddress        = errors.New("ssu: peer has no usable SSU address")
	ErrHostClosed             = errors.New("ssu: host closed")
	ErrSendQueueFull          = errors.New("ssu: send queue full")
	ErrRateLimited            = errors.New("ssu: new session rate exceeded")
	ErrPeerTestInProgress     = errors.New("ssu: peer test already running")
	ErrNoPeerTestPartner      = errors.New("ssu: no established peer to act as charlie")
	ErrSessionExists          = errors.New("ssu: session already exists for endpoint")
	ErrRestartRequested       = errors.New("ssu: peer restarted the handshake")
	ErrIdentityMismatch       = errors.New("ssu: peer identity does not match the dialed hash")
	ErrUnsupportedPayloadType = errors.New("ssu: unsupported payload type")
)

// errPacketIgnored is returned by a state for an authentic datagram that
// was not meant for it, such as a resend under keys the session has moved
// past. It never leaves the session.
var errPacketIgnored = errors.New("ssu: packet ignored")

// ConnectionError is reported to observers when a session ends abnormally.
// NeverConnected separates handshake failures from teardown of an
// established session, the two call for different retry policies.
type ConnectionError struct {
	Peer           data.Hash
	Endpoint       netip.AddrPort
	NeverConnected bool
	Err            error
}

func (e *ConnectionError) Error() string {
	phase := "after connect"
	if e.NeverConnected {
		phase = "during handshake"
	}
	return fmt.Sprintf("ssu: connection to %s failed %s: %v", e.Endpoint, phase, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// WrapSSUError adds the failing operation to err.
func WrapSSUError(err error, operation string) error {
	return oops.In("ssu").Wrapf(err, "SSU %s failed", operation)
}
