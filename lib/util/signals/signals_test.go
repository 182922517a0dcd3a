package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func resetHandlers(t *testing.T) {
	t.Helper()
	mu.Lock()
	reloaders, preShutdown, interrupters = nil, nil, nil
	gracefulTimeout = defaultGracefulTimeout
	mu.Unlock()
}

func TestInterrupt_PreShutdownRunsFirst(t *testing.T) {
	resetHandlers(t)
	var order []string
	RegisterInterruptHandler(func() { order = append(order, "interrupt") })
	RegisterPreShutdownHandler(func() { order = append(order, "pre1") })
	RegisterPreShutdownHandler(func() { order = append(order, "pre2") })

	handleInterrupted()
	assert.Equal(t, []string{"pre1", "pre2", "interrupt"}, order)
}

func TestHandlers_PanicDoesNotStopChain(t *testing.T) {
	resetHandlers(t)
	called := false
	RegisterReloadHandler(func() { panic("boom") })
	RegisterReloadHandler(func() { called = true })

	assert.NotPanics(t, handleReload)
	assert.True(t, called)
}

func TestHandlers_NilIgnored(t *testing.T) {
	resetHandlers(t)
	RegisterReloadHandler(nil)
	RegisterInterruptHandler(nil)
	RegisterPreShutdownHandler(nil)
	assert.Empty(t, snapshot(reloaders))
	assert.Empty(t, snapshot(interrupters))
	assert.Empty(t, snapshot(preShutdown))
}

func TestPreShutdown_Timeout(t *testing.T) {
	resetHandlers(t)
	SetGracefulTimeout(20 * time.Millisecond)
	release := make(chan struct{})
	defer close(release)
	RegisterPreShutdownHandler(func() { <-release })

	start := time.Now()
	assert.False(t, handlePreShutdown())
	assert.Less(t, time.Since(start), time.Second)
}

func TestSetGracefulTimeout_NonPositiveResets(t *testing.T) {
	resetHandlers(t)
	SetGracefulTimeout(-1)
	mu.RLock()
	defer mu.RUnlock()
	assert.Equal(t, defaultGracefulTimeout, gracefulTimeout)
}
