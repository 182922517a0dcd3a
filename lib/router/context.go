package router

import (
	"net/netip"
	"sync"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/go-ssu/lib/common/router_identity"
	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var _ ssu.RouterContext = (*Context)(nil)

// Context is the local router as the SSU host sees it: identity, intro key
// and what peer tests have taught us about our reachability.
type Context struct {
	priv     *router_identity.PrivateIdentity
	signer   types.Signer
	introKey [ssu.KeySize]byte

	mu         sync.RWMutex
	external   netip.AddrPort
	firewalled bool

	changes chan netip.AddrPort
}

// NewContext wraps priv and draws a random intro key.
func NewContext(priv *router_identity.PrivateIdentity) (*Context, error) {
	var introKey [ssu.KeySize]byte
	if _, err := rand.Read(introKey[:]); err != nil {
		return nil, oops.Wrapf(err, "intro key")
	}
	return NewContextWithIntroKey(priv, introKey)
}

// NewContextWithIntroKey wraps priv with a known intro key, such as one
// loaded from the keystore.
func NewContextWithIntroKey(priv *router_identity.PrivateIdentity, introKey [ssu.KeySize]byte) (*Context, error) {
	signer, err := priv.Signer()
	if err != nil {
		return nil, oops.Wrapf(err, "router signer")
	}
	return &Context{
		priv:     priv,
		signer:   signer,
		introKey: introKey,
		changes:  make(chan netip.AddrPort, 1),
	}, nil
}

func (c *Context) Identity() *router_identity.RouterIdentity { return c.priv.Identity }
func (c *Context) Signer() types.Signer                      { return c.signer }
func (c *Context) IntroKey() [ssu.KeySize]byte               { return c.introKey }

func (c *Context) ExternalAddr() netip.AddrPort {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.external
}

func (c *Context) Firewalled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firewalled
}

func (c *Context) AddressChanged() <-chan netip.AddrPort {
	return c.changes
}

// Rebind asks the host to move its socket to addr. Only the latest request
// is kept if the host has not picked up the previous one.
func (c *Context) Rebind(addr netip.AddrPort) {
	for {
		select {
		case c.changes <- addr:
			return
		default:
		}
		select {
		case <-c.changes:
		default:
		}
	}
}

// UpdateReachability folds a peer test result into what we publish.
// Unknown results leave the current view alone.
func (c *Context) UpdateReachability(result ssu.PeerTestResult) {
	c.mu.Lock()
	switch result.Status {
	case ssu.PeerTestReachable:
		c.firewalled = false
		if result.Observed.IsValid() {
			c.external = result.Observed
		}
	case ssu.PeerTestFirewalled:
		c.firewalled = true
		if result.Observed.IsValid() {
			c.external = result.Observed
		}
	}
	external, firewalled := c.external, c.firewalled
	c.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":         "(Context) UpdateReachability",
		"status":     result.Status.String(),
		"external":   external.String(),
		"firewalled": firewalled,
	}).Info("reachability updated")
}
