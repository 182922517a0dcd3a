package transport

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockTransport implements Transport interface for testing
type mockTransport struct {
	mu         sync.Mutex
	name       string
	compatible bool
	sendError  error
	startError error
	closed     bool
	started    bool
	sent       map[data.Hash]int
}

func newMockTransport(name string, compatible bool) *mockTransport {
	return &mockTransport{name: name, compatible: compatible, sent: make(map[data.Hash]int)}
}

func (m *mockTransport) Name() string { return m.name }

func (m *mockTransport) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startError != nil {
		return m.startError
	}
	m.started = true
	return nil
}

func (m *mockTransport) Compatible(peer data.Hash) bool { return m.compatible }

func (m *mockTransport) Send(ctx context.Context, peer data.Hash, msg *i2np.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendError != nil {
		return m.sendError
	}
	m.sent[peer]++
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) sentTo(peer data.Hash) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[peer]
}

func testMessage() *i2np.Message {
	return i2np.NewMessage(1, []byte("hello"), time.Now().Add(time.Minute))
}

func peerHash(b byte) data.Hash {
	var h data.Hash
	h[0] = b
	return h
}

func TestMuxSendPicksFirstCompatible(t *testing.T) {
	skip := newMockTransport("NTCP", false)
	ssu := newMockTransport("SSU", true)
	tmux := Mux(skip, ssu)

	peer := peerHash(1)
	require.NoError(t, tmux.Send(context.Background(), peer, testMessage()))
	assert.Equal(t, 0, skip.sentTo(peer))
	assert.Equal(t, 1, ssu.sentTo(peer))
	assert.Equal(t, 1, tmux.ActiveSessionCount())

	// Bound peers keep their transport.
	require.NoError(t, tmux.Send(context.Background(), peer, testMessage()))
	assert.Equal(t, 2, ssu.sentTo(peer))
	assert.Equal(t, 1, tmux.ActiveSessionCount())
}

func TestMuxSendFallsBackOnError(t *testing.T) {
	broken := newMockTransport("A", true)
	broken.sendError = errors.New("unreachable")
	working := newMockTransport("B", true)
	tmux := Mux(broken, working)

	peer := peerHash(2)
	require.NoError(t, tmux.Send(context.Background(), peer, testMessage()))
	assert.Equal(t, 1, working.sentTo(peer))
}

func TestMuxSendNoTransport(t *testing.T) {
	tmux := Mux(newMockTransport("A", false))
	err := tmux.Send(context.Background(), peerHash(3), testMessage())
	assert.ErrorIs(t, err, ErrNoTransportAvailable)

	failing := newMockTransport("B", true)
	failing.sendError = errors.New("boom")
	err = Mux(failing).Send(context.Background(), peerHash(3), testMessage())
	assert.ErrorIs(t, err, ErrNoTransportAvailable)

	err = Mux().Send(context.Background(), peerHash(3), testMessage())
	assert.ErrorIs(t, err, ErrNoTransportAvailable)
}

func TestMuxConnectionLimit(t *testing.T) {
	tmux := MuxWithLimit(2, newMockTransport("SSU", true))
	ctx := context.Background()

	require.NoError(t, tmux.Send(ctx, peerHash(1), testMessage()))
	require.NoError(t, tmux.Send(ctx, peerHash(2), testMessage()))
	err := tmux.Send(ctx, peerHash(3), testMessage())
	assert.Equal(t, ErrConnectionPoolFull, err)

	// Bound peers are not limited.
	require.NoError(t, tmux.Send(ctx, peerHash(1), testMessage()))

	tmux.ReleasePeer(peerHash(1))
	tmux.ReleasePeer(peerHash(9))
	assert.Equal(t, 1, tmux.ActiveSessionCount())
	require.NoError(t, tmux.Send(ctx, peerHash(3), testMessage()))
}

func TestMuxDefaultLimit(t *testing.T) {
	tmux := Mux()
	assert.Equal(t, DefaultMaxConnections, tmux.getMaxConnections())
	tmux.MaxConnections = -1
	assert.Equal(t, DefaultMaxConnections, tmux.getMaxConnections())
}

func TestMuxRebindsAfterBoundFailure(t *testing.T) {
	first := newMockTransport("A", true)
	second := newMockTransport("B", true)
	tmux := Mux(first, second)
	peer := peerHash(4)

	require.NoError(t, tmux.Send(context.Background(), peer, testMessage()))
	assert.Equal(t, 1, first.sentTo(peer))

	first.mu.Lock()
	first.sendError = errors.New("session gone")
	first.mu.Unlock()

	require.NoError(t, tmux.Send(context.Background(), peer, testMessage()))
	assert.Equal(t, 1, second.sentTo(peer))
	assert.Equal(t, 1, tmux.ActiveSessionCount())
}

func TestMuxStartAndClose(t *testing.T) {
	a := newMockTransport("A", true)
	b := newMockTransport("B", true)
	tmux := Mux(a, b)

	require.NoError(t, tmux.Start())
	assert.True(t, a.started)
	assert.True(t, b.started)

	require.NoError(t, tmux.Send(context.Background(), peerHash(5), testMessage()))
	require.NoError(t, tmux.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.Equal(t, 0, tmux.ActiveSessionCount())
}

func TestMuxStartFailureClosesStarted(t *testing.T) {
	a := newMockTransport("A", true)
	b := newMockTransport("B", true)
	b.startError = errors.New("bind failed")
	tmux := Mux(a, b)

	err := tmux.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, b.startError)
	assert.True(t, a.closed)
	assert.False(t, b.closed)

	assert.ErrorIs(t, Mux().Start(), ErrNoTransportAvailable)
}

func TestMuxNameAndCompatible(t *testing.T) {
	tmux := Mux(newMockTransport("NTCP", false), newMockTransport("SSU", true))
	assert.Equal(t, "Muxed Transport: NTCP, SSU", tmux.Name())
	assert.True(t, tmux.Compatible(peerHash(1)))
	assert.False(t, Mux(newMockTransport("NTCP", false)).Compatible(peerHash(1)))

	transports := tmux.GetTransports()
	transports[0] = nil
	assert.NotNil(t, tmux.GetTransports()[0])
}

func TestMuxConcurrentSend(t *testing.T) {
	ssu := newMockTransport("SSU", true)
	tmux := Mux(ssu)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func(b byte) {
			defer wg.Done()
			assert.NoError(t, tmux.Send(context.Background(), peerHash(b), testMessage()))
		}(byte(i))
	}
	wg.Wait()
	assert.Equal(t, 32, tmux.ActiveSessionCount())
}
