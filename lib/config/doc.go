// Package config provides configuration management for the go-ssu daemon.
//
// Values come from three layers, later layers winning: the compiled-in
// defaults returned by DefaultSSUConfig, the YAML config file (by default
// $HOME/.go-ssu/config.yaml, created with the defaults on first run) and
// command line flags bound into viper by the caller.
//
// All transport settings live under the "ssu." key prefix, NTP settings under
// "ntp.", identity settings under "router." and the control endpoint under
// "i2pcontrol.".
package config
