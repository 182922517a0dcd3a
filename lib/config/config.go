package config

import (
	"os"
	"path/filepath"

	"github.com/go-i2p/go-ssu/lib/util"
	"github.com/go-i2p/logger"
	"github.com/spf13/viper"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const GOSSU_BASE_DIR = ".go-ssu"

func InitConfig() {
	if CfgFile != "" {
		viper.SetConfigFile(CfgFile)
	} else {
		viper.AddConfigPath(BuildSSUDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	handleConfigFile()
}

func setDefaults() {
	d := DefaultSSUConfig()

	viper.SetDefault("ssu.listen", d.ListenAddress)
	viper.SetDefault("ssu.mtu", d.MTU)
	viper.SetDefault("ssu.mtu_v6", d.MTUv6)
	viper.SetDefault("ssu.introducer_enabled", d.IntroducerEnabled)
	viper.SetDefault("ssu.handshake_retries", d.HandshakeRetries)
	viper.SetDefault("ssu.handshake_resend_interval", d.HandshakeResendInterval)
	viper.SetDefault("ssu.relay_retries", d.RelayRetries)
	viper.SetDefault("ssu.idle_timeout", d.IdleTimeout)
	viper.SetDefault("ssu.keepalive_interval", d.KeepaliveInterval)
	viper.SetDefault("ssu.resend_interval", d.ResendInterval)
	viper.SetDefault("ssu.max_send_count", d.MaxSendCount)
	viper.SetDefault("ssu.tick_interval", d.TickInterval)
	viper.SetDefault("ssu.tick_budget", d.TickBudget)
	viper.SetDefault("ssu.tick_concurrency", d.TickConcurrency)
	viper.SetDefault("ssu.workers", d.Workers)
	viper.SetDefault("ssu.send_queue_size", d.SendQueueSize)
	viper.SetDefault("ssu.key_pool_size", d.KeyPoolSize)
	viper.SetDefault("ssu.max_clock_skew", d.MaxClockSkew)
	viper.SetDefault("ssu.rate_limit.per_second", d.NewSessionRate)
	viper.SetDefault("ssu.rate_limit.burst", d.NewSessionBurst)

	viper.SetDefault("ntp.enabled", d.NTPEnabled)
	viper.SetDefault("ntp.server", d.NTPServer)

	viper.SetDefault("router.signature_type", d.SignatureType)

	viper.SetDefault("i2pcontrol.enabled", d.ControlEnabled)
	viper.SetDefault("i2pcontrol.address", d.ControlAddress)
	viper.SetDefault("i2pcontrol.password", d.ControlPassword)
}

// NewSSUConfigFromViper creates a new SSUConfig from current viper settings.
func NewSSUConfigFromViper() *SSUConfig {
	return &SSUConfig{
		ListenAddress:           viper.GetString("ssu.listen"),
		MTU:                     viper.GetInt("ssu.mtu"),
		MTUv6:                   viper.GetInt("ssu.mtu_v6"),
		IntroducerEnabled:       viper.GetBool("ssu.introducer_enabled"),
		HandshakeRetries:        viper.GetInt("ssu.handshake_retries"),
		HandshakeResendInterval: viper.GetDuration("ssu.handshake_resend_interval"),
		RelayRetries:            viper.GetInt("ssu.relay_retries"),
		IdleTimeout:             viper.GetDuration("ssu.idle_timeout"),
		KeepaliveInterval:       viper.GetDuration("ssu.keepalive_interval"),
		ResendInterval:          viper.GetDuration("ssu.resend_interval"),
		MaxSendCount:            viper.GetInt("ssu.max_send_count"),
		TickInterval:            viper.GetDuration("ssu.tick_interval"),
		TickBudget:              viper.GetDuration("ssu.tick_budget"),
		TickConcurrency:         viper.GetInt("ssu.tick_concurrency"),
		Workers:                 viper.GetInt("ssu.workers"),
		SendQueueSize:           viper.GetInt("ssu.send_queue_size"),
		KeyPoolSize:             viper.GetInt("ssu.key_pool_size"),
		MaxClockSkew:            viper.GetDuration("ssu.max_clock_skew"),
		NewSessionRate:          viper.GetFloat64("ssu.rate_limit.per_second"),
		NewSessionBurst:         viper.GetInt("ssu.rate_limit.burst"),
		NTPEnabled:              viper.GetBool("ntp.enabled"),
		NTPServer:               viper.GetString("ntp.server"),
		SignatureType:           viper.GetInt("router.signature_type"),
		ControlEnabled:          viper.GetBool("i2pcontrol.enabled"),
		ControlAddress:          viper.GetString("i2pcontrol.address"),
		ControlPassword:         viper.GetString("i2pcontrol.password"),
	}
}

func createDefaultConfig(defaultConfigDir string) {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	if err := os.MkdirAll(defaultConfigDir, 0o755); err != nil {
		log.Fatalf("Could not create config directory: %s", err)
	}
	f, err := os.OpenFile(defaultConfigFile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		log.Fatalf("Could not create default config file: %s", err)
	}
	defer f.Close()
	if err := WriteYAML(f, DefaultSSUConfig()); err != nil {
		log.Fatalf("Could not write default config file: %s", err)
	}
	log.Debugf("Created default configuration at: %s", defaultConfigFile)
}

func handleConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if CfgFile != "" {
				log.Fatalf("Config file %s is not found: %s", CfgFile, err)
			} else {
				createDefaultConfig(BuildSSUDirPath())
			}
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	} else {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

func BuildSSUDirPath() string {
	return filepath.Join(util.UserHome(), GOSSU_BASE_DIR)
}
