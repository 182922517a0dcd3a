// Package ssu implements the SSU UDP transport: authenticated, encrypted
// point-to-point sessions between routers over a single UDP socket.
//
// # Packets
//
// Every datagram carries a 16 byte HMAC-MD5 MAC, a 16 byte IV and an
// AES-CBC encrypted body holding a flag byte, a timestamp and the payload.
// The MAC covers the encrypted body and is verified before anything is
// decrypted. Before a session exists packets are keyed by the receiver's
// intro key; afterwards by the session key and MAC key derived from a
// Diffie-Hellman exchange.
//
// # Sessions
//
// A Session moves through Idle, RelayRequest, SessionRequest,
// SessionCreated, SessionConfirmed and Established. Each state is a value
// implementing State; Handle and Run return the next state and a list of
// effects, which the session applies while holding its mutex.
//
// # Host
//
// Host owns the socket and the session registry:
//   - one goroutine reads datagrams and hands them to worker shards picked by
//     endpoint, so a session always sees its packets in arrival order
//   - one goroutine writes every outbound datagram
//   - a housekeeping loop ticks sessions that have work and removes sessions
//     that ended, exactly once each
//
// # Messages
//
// Application messages are lib/i2np messages in their 5 byte SSU header
// form. Messages up to 62464 bytes are split into at most 128 fragments,
// acknowledged selectively and resent until acknowledged or abandoned.
//
// # NAT traversal
//
// Hosts with IntroducerEnabled hand out relay tags and relay introductions
// for firewalled peers. PeerTest runs the three party reachability test.
package ssu

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()
