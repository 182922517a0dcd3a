package config

import (
	"net"
	"time"
)

// SSUConfig holds every tunable of the SSU transport and the daemon around it.
type SSUConfig struct {
	// ListenAddress is the UDP host:port to bind. Port 0 lets the OS choose.
	ListenAddress string

	// MTU is the IPv4 datagram MTU. Default: 1484
	MTU int
	// MTUv6 is the IPv6 datagram MTU. Default: 1488
	MTUv6 int

	// IntroducerEnabled makes the host hand out relay tags to peers that
	// connect to it and relay introductions for them.
	IntroducerEnabled bool

	// HandshakeRetries is how many times a handshake packet is resent before
	// the session is given up. Default: 5
	HandshakeRetries int
	// HandshakeResendInterval is the wait between handshake resends. Default: 1s
	HandshakeResendInterval time.Duration
	// RelayRetries is how many RelayRequest rounds are tried. Default: 3
	RelayRetries int

	// IdleTimeout tears down established sessions without traffic. Default: 10m
	IdleTimeout time.Duration
	// KeepaliveInterval is how long an established session may go without
	// sending before an empty Data packet is sent. It must be shorter than
	// IdleTimeout. Default: 2m
	KeepaliveInterval time.Duration
	// ResendInterval is the minimum wait before an unacked fragment is resent.
	ResendInterval time.Duration
	// MaxSendCount caps transmissions of a single fragment. Default: 10
	MaxSendCount int

	TickInterval    time.Duration
	TickBudget      time.Duration
	TickConcurrency int
	Workers         int
	SendQueueSize   int
	KeyPoolSize     int

	// MaxClockSkew bounds the header timestamp of handshake packets. Default: 60s
	MaxClockSkew time.Duration

	// NewSessionRate and NewSessionBurst parameterize the per-IP token bucket
	// on inbound session creation.
	NewSessionRate  float64
	NewSessionBurst int

	NTPEnabled bool
	NTPServer  string

	// SignatureType of the locally generated router identity. Default: 7 (Ed25519)
	SignatureType int

	// ControlEnabled starts the I2PControl JSON-RPC endpoint on ControlAddress.
	ControlEnabled  bool
	ControlAddress  string
	ControlPassword string
}

// DefaultSSUConfig returns the compiled-in defaults.
func DefaultSSUConfig() *SSUConfig {
	return &SSUConfig{
		ListenAddress:           "0.0.0.0:0",
		MTU:                     1484,
		MTUv6:                   1488,
		IntroducerEnabled:       false,
		HandshakeRetries:        5,
		HandshakeResendInterval: time.Second,
		RelayRetries:            3,
		IdleTimeout:             10 * time.Minute,
		KeepaliveInterval:       2 * time.Minute,
		ResendInterval:          600 * time.Millisecond,
		MaxSendCount:            10,
		TickInterval:            50 * time.Millisecond,
		TickBudget:              100 * time.Millisecond,
		TickConcurrency:         8,
		Workers:                 4,
		SendQueueSize:           1024,
		KeyPoolSize:             16,
		MaxClockSkew:            60 * time.Second,
		NewSessionRate:          5,
		NewSessionBurst:         10,
		NTPEnabled:              false,
		NTPServer:               "pool.ntp.org",
		SignatureType:           7,
		ControlEnabled:          false,
		ControlAddress:          "127.0.0.1:7650",
		ControlPassword:         "itoopie",
	}
}

// Validate checks if the configuration values are usable.
func (c *SSUConfig) Validate() error {
	log.Debug("Validating SSU configuration")
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return newValidationError("ssu.listen must be host:port")
	}
	if c.MTU < 620 || c.MTU > 1500 {
		log.WithField("mtu", c.MTU).Error("Invalid SSU configuration")
		return newValidationError("ssu.mtu must be between 620 and 1500")
	}
	if c.MTUv6 < 1280 || c.MTUv6 > 1500 {
		log.WithField("mtu_v6", c.MTUv6).Error("Invalid SSU configuration")
		return newValidationError("ssu.mtu_v6 must be between 1280 and 1500")
	}
	if c.HandshakeRetries < 1 || c.RelayRetries < 1 {
		return newValidationError("ssu.handshake_retries and ssu.relay_retries must be at least 1")
	}
	if c.MaxSendCount < 1 {
		return newValidationError("ssu.max_send_count must be at least 1")
	}
	if c.TickInterval <= 0 || c.ResendInterval <= 0 || c.HandshakeResendInterval <= 0 {
		return newValidationError("ssu intervals must be positive")
	}
	if c.KeepaliveInterval <= 0 || c.KeepaliveInterval >= c.IdleTimeout {
		log.WithField("keepalive_interval", c.KeepaliveInterval).Error("Invalid SSU configuration")
		return newValidationError("ssu.keepalive_interval must be positive and shorter than ssu.idle_timeout")
	}
	if c.Workers < 1 || c.TickConcurrency < 1 || c.SendQueueSize < 1 {
		log.WithField("workers", c.Workers).Error("Invalid SSU configuration")
		return newValidationError("ssu.workers, ssu.tick_concurrency and ssu.send_queue_size must be at least 1")
	}
	if c.NewSessionRate <= 0 || c.NewSessionBurst < 1 {
		return newValidationError("ssu.rate_limit must allow at least one session")
	}
	if c.NTPEnabled && c.NTPServer == "" {
		return newValidationError("ntp.server is required when ntp.enabled is set")
	}
	if c.ControlEnabled {
		if _, _, err := net.SplitHostPort(c.ControlAddress); err != nil {
			return newValidationError("i2pcontrol.address must be host:port")
		}
		if c.ControlPassword == "" {
			return newValidationError("i2pcontrol.password is required when i2pcontrol.enabled is set")
		}
	}
	log.Debug("SSU configuration validated successfully")
	return nil
}

// validationError is returned when configuration validation fails
type validationError struct {
	message string
}

func newValidationError(message string) error {
	return &validationError{message: message}
}

func (e *validationError) Error() string {
	return "configuration validation failed: " + e.message
}
