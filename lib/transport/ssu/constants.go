package ssu

import "time"

// PayloadType is the 4-bit message type carried in the header flag byte.
type PayloadType uint8

const (
	PayloadSessionRequest   PayloadType = 0
	PayloadSessionCreated   PayloadType = 1
	PayloadSessionConfirmed PayloadType = 2
	PayloadRelayRequest     PayloadType = 3
	PayloadRelayResponse    PayloadType = 4
	PayloadRelayIntro       PayloadType = 5
	PayloadData             PayloadType = 6
	PayloadPeerTest         PayloadType = 7
	PayloadSessionDestroyed PayloadType = 8
)

func (t PayloadType) String() string {
	switch t {
	case PayloadSessionRequest:
		return "SessionRequest"
	case PayloadSessionCreated:
		return "SessionCreated"
	case PayloadSessionConfirmed:
		return "SessionConfirmed"
	case PayloadRelayRequest:
		return "RelayRequest"
	case PayloadRelayResponse:
		return "RelayResponse"
	case PayloadRelayIntro:
		return "RelayIntro"
	case PayloadData:
		return "Data"
	case PayloadPeerTest:
		return "PeerTest"
	case PayloadSessionDestroyed:
		return "SessionDestroyed"
	default:
		return "Unknown"
	}
}

// Header geometry.
//
//	+---- 16 ----+---- 16 ----+-1-+--4--+-------+---------+
//	|    MAC     |     IV     |flg|time | [opt] | payload |
//	+------------+------------+---+-----+-------+---------+
//	                          \____ AES-CBC encrypted ____/
const (
	MACSize       = 16
	IVSize        = 16
	KeySize       = 32
	FlagSize      = 1
	TimeSize      = 4
	RekeySize     = 64
	HeaderSize    = MACSize + IVSize + FlagSize + TimeSize
	MinPacketSize = HeaderSize

	// ProtocolVersion is XORed into the length field covered by the MAC.
	ProtocolVersion = 0

	flagRekey       = 1 << 3
	flagExtOptions  = 1 << 2
	payloadTypeBits = 4
)

// MTU profiles. The MTU counts the IP and UDP headers, so the largest
// datagram is the MTU minus the per-family overhead.
const (
	DefaultMTUv4 = 1484
	MinMTUv4     = 620
	DefaultMTUv6 = 1488
	MinMTUv6     = 1280

	IPv4UDPOverhead = 28
	IPv6UDPOverhead = 48

	// MaxDatagramSize bounds every buffer handed out by the send pool.
	MaxDatagramSize = 1536
)

// Fragmentation limits.
const (
	MaxMessageSize  = 62464
	MaxFragments    = 128
	MaxFragmentSize = 1<<14 - 1

	fragmentHeaderSize = 7
	explicitAckSize    = 4

	// AckRepeat is how many Data packets carry the explicit ack of a completed message.
	AckRepeat = 3

	// ReassemblyTimeout evicts inbound messages that never completed.
	ReassemblyTimeout = 30 * time.Second

	// MaxOpenMessages caps the inbound rebuild buffers held by one session.
	MaxOpenMessages = 64

	// completedWindow is how many recently completed message ids a session
	// remembers for duplicate suppression.
	completedWindow = 512
)

// Session limits.
const (
	MaxConsecutiveMACFailures = 5
	MaxIntroducers            = 3
	PeerTestLifetime          = 15 * time.Second

	// maxPacketsPerTick bounds the Data packets one session builds per tick.
	maxPacketsPerTick = 64

	// closeFlushTimeout bounds how long Close waits for goodbyes to go out.
	closeFlushTimeout = time.Second
)

// Data packet flag bits.
const (
	dataFlagExplicitAcks = 1 << 7
	dataFlagAckBitfields = 1 << 6
	dataFlagWantReply    = 1 << 2
	dataFlagExtData      = 1 << 1
)

// MaxDatagram returns the largest datagram that fits an MTU for the given
// address family.
func MaxDatagram(mtu int, ipv6 bool) int {
	if ipv6 {
		return mtu - IPv6UDPOverhead
	}
	return mtu - IPv4UDPOverhead
}

// MaxPayload returns the largest payload that can be sealed into a datagram
// of at most max bytes once the header and block padding are accounted for.
func MaxPayload(max int) int {
	body := (max - MACSize - IVSize) &^ 15
	return body - FlagSize - TimeSize
}

// ClampMTU keeps an MTU inside the profile for its address family.
func ClampMTU(mtu int, ipv6 bool) int {
	lo, hi := MinMTUv4, DefaultMTUv4
	if ipv6 {
		lo, hi = MinMTUv6, DefaultMTUv6
	}
	if mtu < lo {
		return lo
	}
	if mtu > hi {
		return hi
	}
	return mtu
}
