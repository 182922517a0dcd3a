package config

import (
	"io"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type yamlRateLimit struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

type yamlSSU struct {
	Listen                  string        `yaml:"listen"`
	MTU                     int           `yaml:"mtu"`
	MTUv6                   int           `yaml:"mtu_v6"`
	IntroducerEnabled       bool          `yaml:"introducer_enabled"`
	HandshakeRetries        int           `yaml:"handshake_retries"`
	HandshakeResendInterval string        `yaml:"handshake_resend_interval"`
	RelayRetries            int           `yaml:"relay_retries"`
	IdleTimeout             string        `yaml:"idle_timeout"`
	KeepaliveInterval       string        `yaml:"keepalive_interval"`
	ResendInterval          string        `yaml:"resend_interval"`
	MaxSendCount            int           `yaml:"max_send_count"`
	TickInterval            string        `yaml:"tick_interval"`
	TickBudget              string        `yaml:"tick_budget"`
	TickConcurrency         int           `yaml:"tick_concurrency"`
	Workers                 int           `yaml:"workers"`
	SendQueueSize           int           `yaml:"send_queue_size"`
	KeyPoolSize             int           `yaml:"key_pool_size"`
	MaxClockSkew            string        `yaml:"max_clock_skew"`
	RateLimit               yamlRateLimit `yaml:"rate_limit"`
}

type yamlNTP struct {
	Enabled bool   `yaml:"enabled"`
	Server  string `yaml:"server"`
}

type yamlRouter struct {
	SignatureType int `yaml:"signature_type"`
}

type yamlControl struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}

type yamlDocument struct {
	SSU        yamlSSU     `yaml:"ssu"`
	NTP        yamlNTP     `yaml:"ntp"`
	Router     yamlRouter  `yaml:"router"`
	I2PControl yamlControl `yaml:"i2pcontrol"`
}

// WriteYAML writes cfg in the layout read back by InitConfig. Durations are
// written in time.Duration string form.
func WriteYAML(w io.Writer, cfg *SSUConfig) error {
	doc := yamlDocument{
		SSU: yamlSSU{
			Listen:                  cfg.ListenAddress,
			MTU:                     cfg.MTU,
			MTUv6:                   cfg.MTUv6,
			IntroducerEnabled:       cfg.IntroducerEnabled,
			HandshakeRetries:        cfg.HandshakeRetries,
			HandshakeResendInterval: cfg.HandshakeResendInterval.String(),
			RelayRetries:            cfg.RelayRetries,
			IdleTimeout:             cfg.IdleTimeout.String(),
			KeepaliveInterval:       cfg.KeepaliveInterval.String(),
			ResendInterval:          cfg.ResendInterval.String(),
			MaxSendCount:            cfg.MaxSendCount,
			TickInterval:            cfg.TickInterval.String(),
			TickBudget:              cfg.TickBudget.String(),
			TickConcurrency:         cfg.TickConcurrency,
			Workers:                 cfg.Workers,
			SendQueueSize:           cfg.SendQueueSize,
			KeyPoolSize:             cfg.KeyPoolSize,
			MaxClockSkew:            cfg.MaxClockSkew.String(),
			RateLimit: yamlRateLimit{
				PerSecond: cfg.NewSessionRate,
				Burst:     cfg.NewSessionBurst,
			},
		},
		NTP:    yamlNTP{Enabled: cfg.NTPEnabled, Server: cfg.NTPServer},
		Router: yamlRouter{SignatureType: cfg.SignatureType},
		I2PControl: yamlControl{
			Enabled:  cfg.ControlEnabled,
			Address:  cfg.ControlAddress,
			Password: cfg.ControlPassword,
		},
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return oops.Wrapf(err, "encoding config yaml")
	}
	return enc.Close()
}
