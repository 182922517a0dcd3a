// Package i2pcontrol serves a JSON-RPC 2.0 endpoint for monitoring and
// controlling a running go-ssu router, following the I2PControl protocol
// used by I2P routers.
//
// # Methods
//
//   - Authenticate: exchange the configured password for a token
//   - Echo: connectivity check
//   - RouterInfo: uptime, version, reachability and peer counts
//   - SSUInfo: counters from the SSU host
//   - RouterManager: Shutdown, or PeerTest to re-test reachability
//   - I2PControl: change the password
//
// Every method except Authenticate needs a "Token" parameter. Tokens expire
// after TokenExpiration.
//
// # Configuration
//
//	i2pcontrol:
//	  enabled: true
//	  address: "127.0.0.1:7650"
//	  password: "itoopie"
package i2pcontrol

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()
