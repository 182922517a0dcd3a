package ssu

import (
	"net/netip"
	"sync"
	"time"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/common/router_identity"
	"github.com/go-i2p/go-ssu/lib/crypto/types"
	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/go-i2p/logger"
)

// RouterContext is the read-only view of the local router the transport
// needs.
type RouterContext interface {
	Identity() *router_identity.RouterIdentity
	Signer() types.Signer
	// IntroKey keys packets sent to us before a session exists.
	IntroKey() [KeySize]byte
	// ExternalAddr is our address as published; the zero value means unknown.
	ExternalAddr() netip.AddrPort
	Firewalled() bool
	// AddressChanged delivers a new local bind address.
	AddressChanged() <-chan netip.AddrPort
}

// IntroducerInfo names a peer willing to relay introductions to a
// firewalled router.
type IntroducerInfo struct {
	Endpoint netip.AddrPort
	IntroKey [KeySize]byte
	RelayTag uint32
}

// PeerAddress is one published SSU address of a peer. A peer behind a
// firewall publishes introducers instead of a reachable endpoint.
type PeerAddress struct {
	Endpoint    netip.AddrPort
	IntroKey    [KeySize]byte
	Introducers []IntroducerInfo
}

// Direct reports whether the address can be dialed without an introducer.
func (a PeerAddress) Direct() bool {
	return a.Endpoint.IsValid() && len(a.Introducers) == 0
}

// PeerInfo is what the directory knows about one peer.
type PeerInfo struct {
	Identity  *router_identity.RouterIdentity
	Addresses []PeerAddress
}

// PeerDirectory answers address lookups and records connection outcomes.
type PeerDirectory interface {
	Lookup(hash data.Hash) (PeerInfo, bool)
	ReportSuccess(hash data.Hash, latency time.Duration)
	ReportTimeout(hash data.Hash)
	ReportSignatureFailure(hash data.Hash)
}

// PeerTestStatus is the outcome of a reachability test.
type PeerTestStatus int

const (
	PeerTestReachable PeerTestStatus = iota
	PeerTestFirewalled
	PeerTestUnknown
)

func (s PeerTestStatus) String() string {
	switch s {
	case PeerTestReachable:
		return "reachable"
	case PeerTestFirewalled:
		return "firewalled"
	default:
		return "unknown"
	}
}

// PeerTestResult is reported to observers when a test we started ends.
type PeerTestResult struct {
	Nonce  uint32
	Status PeerTestStatus
	// Observed is our address as Bob saw it.
	Observed netip.AddrPort
	Charlie  netip.AddrPort
}

// Observer receives session events. Calls arrive in order from a single
// goroutine and must not block for long.
type Observer interface {
	OnEstablished(peer data.Hash, endpoint netip.AddrPort)
	OnShutdown(peer data.Hash, endpoint netip.AddrPort)
	OnMessage(peer data.Hash, msg *i2np.Message)
	OnException(err *ConnectionError)
	OnPeerTest(result PeerTestResult)
}

// ObserverFuncs adapts optional callbacks to Observer.
type ObserverFuncs struct {
	Established func(peer data.Hash, endpoint netip.AddrPort)
	Shutdown    func(peer data.Hash, endpoint netip.AddrPort)
	Message     func(peer data.Hash, msg *i2np.Message)
	Exception   func(err *ConnectionError)
	PeerTest    func(result PeerTestResult)
}

func (o ObserverFuncs) OnEstablished(peer data.Hash, endpoint netip.AddrPort) {
	if o.Established != nil {
		o.Established(peer, endpoint)
	}
}

func (o ObserverFuncs) OnShutdown(peer data.Hash, endpoint netip.AddrPort) {
	if o.Shutdown != nil {
		o.Shutdown(peer, endpoint)
	}
}

func (o ObserverFuncs) OnMessage(peer data.Hash, msg *i2np.Message) {
	if o.Message != nil {
		o.Message(peer, msg)
	}
}

func (o ObserverFuncs) OnException(err *ConnectionError) {
	if o.Exception != nil {
		o.Exception(err)
	}
}

func (o ObserverFuncs) OnPeerTest(result PeerTestResult) {
	if o.PeerTest != nil {
		o.PeerTest(result)
	}
}

// notifier fans events out to every observer from one goroutine, so each
// observer sees events in the order they were published.
type notifier struct {
	mu        sync.RWMutex
	observers []Observer
	events    chan func(Observer)
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newNotifier(size int) *notifier {
	n := &notifier{
		events: make(chan func(Observer), size),
		done:   make(chan struct{}),
	}
	n.wg.Add(1)
	go n.run()
	return n
}

func (n *notifier) add(o Observer) {
	n.mu.Lock()
	n.observers = append(n.observers, o)
	n.mu.Unlock()
}

func (n *notifier) publish(event func(Observer)) {
	select {
	case n.events <- event:
	case <-n.done:
	}
}

func (n *notifier) run() {
	defer n.wg.Done()
	for {
		select {
		case ev := <-n.events:
			n.deliver(ev)
		case <-n.done:
			for {
				select {
				case ev := <-n.events:
					n.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (n *notifier) deliver(ev func(Observer)) {
	n.mu.RLock()
	observers := n.observers
	n.mu.RUnlock()
	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(logger.Fields{
						"at":    "(notifier) deliver",
						"panic": r,
					}).Error("observer panicked")
				}
			}()
			ev(o)
		}()
	}
}

func (n *notifier) close() {
	n.closeOnce.Do(func() {
		close(n.done)
		n.wg.Wait()
	})
}
