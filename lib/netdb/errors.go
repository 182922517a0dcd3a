package netdb

import "errors"

var (
	ErrMissingIdentity = errors.New("netdb: peer has no router identity")
	ErrNoAddresses     = errors.New("netdb: peer has no SSU addresses")
	ErrBadPeerEntry    = errors.New("netdb: malformed peer entry")
)
