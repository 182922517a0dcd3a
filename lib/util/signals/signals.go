// Package signals dispatches process signals to registered handlers.
//
// SIGHUP runs reload handlers (the daemon re-reads its config file). SIGINT
// and SIGTERM first run pre-shutdown handlers, bounded by a graceful timeout,
// and then the interrupt handlers. Handlers run in registration order and a
// panicking handler does not stop the ones after it.
package signals

import (
	"os"
	"os/signal"
	"slices"
	"sync"
	"time"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

const defaultGracefulTimeout = 30 * time.Second

// sigChan is buffered to avoid missing signals delivered while no receiver is ready.
var sigChan = make(chan os.Signal, 1)

// Handler is a function called when a signal is received.
type Handler func()

var (
	mu              sync.RWMutex
	reloaders       []Handler
	preShutdown     []Handler
	interrupters    []Handler
	gracefulTimeout = defaultGracefulTimeout
	stopOnce        sync.Once
)

func register(list *[]Handler, f Handler) {
	if f == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	*list = append(*list, f)
}

// RegisterReloadHandler registers a handler called on SIGHUP.
func RegisterReloadHandler(f Handler) { register(&reloaders, f) }

// RegisterPreShutdownHandler registers a handler that runs before the
// interrupt handlers, e.g. to send SessionDestroyed to every peer.
func RegisterPreShutdownHandler(f Handler) { register(&preShutdown, f) }

// RegisterInterruptHandler registers a handler called on SIGINT/SIGTERM.
func RegisterInterruptHandler(f Handler) { register(&interrupters, f) }

// SetGracefulTimeout bounds the pre-shutdown phase. Non-positive values reset
// it to 30 seconds.
func SetGracefulTimeout(timeout time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if timeout <= 0 {
		timeout = defaultGracefulTimeout
	}
	gracefulTimeout = timeout
}

func snapshot(list []Handler) []Handler {
	mu.RLock()
	defer mu.RUnlock()
	return slices.Clone(list)
}

func runAll(kind string, handlers []Handler) {
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(logger.Fields{
						"at":    "signals.runAll",
						"kind":  kind,
						"panic": r,
					}).Error("signal handler panicked")
				}
			}()
			h()
		}()
	}
}

func handleReload() {
	runAll("reload", snapshot(reloaders))
}

// handlePreShutdown returns false when the graceful timeout expired first.
func handlePreShutdown() bool {
	handlers := snapshot(preShutdown)
	if len(handlers) == 0 {
		return true
	}
	mu.RLock()
	timeout := gracefulTimeout
	mu.RUnlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		runAll("pre-shutdown", handlers)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		log.WithField("timeout", timeout).Warn("pre-shutdown handlers timed out")
		return false
	}
}

func handleInterrupted() {
	handlePreShutdown()
	runAll("interrupt", snapshot(interrupters))
}

// StopHandle closes the signal channel, causing Handle() to return.
// Safe to call multiple times.
func StopHandle() {
	stopOnce.Do(func() {
		signal.Stop(sigChan)
		close(sigChan)
	})
}
