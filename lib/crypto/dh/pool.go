package dh

import (
	"sync"

	"github.com/go-i2p/logger"
)

// DefaultPoolSize is how many keypairs the pool keeps ready.
const DefaultPoolSize = 16

// KeyPool hands out precomputed ephemeral keypairs. A single generator
// goroutine keeps the buffer topped up; Get falls back to inline generation
// when the buffer is empty so callers never wait on the generator.
type KeyPool struct {
	ready chan *KeyPair
	done  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewKeyPool starts a pool holding up to size keypairs.
func NewKeyPool(size int) *KeyPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &KeyPool{
		ready: make(chan *KeyPair, size),
		done:  make(chan struct{}),
	}
	p.wg.Add(1)
	go p.fill()
	return p
}

func (p *KeyPool) fill() {
	defer p.wg.Done()
	for {
		kp, err := GenerateKeyPair()
		if err != nil {
			log.WithError(err).Error("keypair generation failed")
			return
		}
		select {
		case p.ready <- kp:
		case <-p.done:
			return
		}
	}
}

// Get returns a keypair that has never been handed out before.
func (p *KeyPool) Get() (*KeyPair, error) {
	select {
	case <-p.done:
		return nil, ErrPoolClosed
	default:
	}
	select {
	case kp := <-p.ready:
		return kp, nil
	default:
		log.WithFields(logger.Fields{
			"at":     "(KeyPool) Get",
			"reason": "pool_empty",
		}).Debug("generating keypair inline")
		return GenerateKeyPair()
	}
}

// Available reports how many precomputed keypairs are buffered.
func (p *KeyPool) Available() int {
	return len(p.ready)
}

// Close stops the generator and waits for it to exit. Safe to call twice.
func (p *KeyPool) Close() {
	p.once.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}
