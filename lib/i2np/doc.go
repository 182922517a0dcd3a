// Package i2np carries the application messages moved by the SSU transport.
//
// The transport treats a message as an opaque, type-tagged, expiring byte
// buffer. Over SSU the 16-byte standard I2NP header is replaced by the 5-byte
// short header (type and expiration in seconds); the message id travels in
// the SSU fragment headers instead and the size is implied by reassembly.
package i2np
