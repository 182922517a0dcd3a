package router

import (
	"bytes"
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	common "github.com/go-i2p/common/data"
	"github.com/go-i2p/go-ssu/lib/config"
	"github.com/go-i2p/go-ssu/lib/i2np"
	"github.com/go-i2p/go-ssu/lib/keys"
	"github.com/go-i2p/go-ssu/lib/netdb"
	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, dir string) *Router {
	t.Helper()
	cfg := config.DefaultSSUConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	r, err := CreateRouter(cfg, dir)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

type inbox struct {
	mu   sync.Mutex
	msgs []*i2np.Message
	from []common.Hash
}

func (in *inbox) handle(peer common.Hash, msg *i2np.Message) {
	in.mu.Lock()
	in.msgs = append(in.msgs, msg)
	in.from = append(in.from, peer)
	in.mu.Unlock()
}

func (in *inbox) snapshot() ([]*i2np.Message, []common.Hash) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]*i2np.Message(nil), in.msgs...), append([]common.Hash(nil), in.from...)
}

func TestRouterExchange(t *testing.T) {
	if testing.Short() {
		t.Skip("binds UDP sockets")
	}
	alice := newTestRouter(t, t.TempDir())
	bob := newTestRouter(t, t.TempDir())
	received := &inbox{}
	bob.SetMessageHandler(received.handle)

	require.NoError(t, alice.Start())
	require.NoError(t, bob.Start())
	require.NoError(t, alice.Directory().Add(bob.SelfInfo()))

	payload := bytes.Repeat([]byte("ssu"), 2000)
	msg := i2np.NewMessage(3, payload, time.Now().Add(time.Minute))
	bobHash := bob.Context().Identity().Hash()
	require.NoError(t, alice.Send(context.Background(), bobHash, msg))

	require.Eventually(t, func() bool {
		msgs, _ := received.snapshot()
		return len(msgs) == 1
	}, 10*time.Second, 20*time.Millisecond)

	msgs, from := received.snapshot()
	assert.Equal(t, payload, msgs[0].Payload())
	assert.Equal(t, alice.Context().Identity().Hash(), from[0])
}

func TestRouterWritesSelfEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("binds UDP sockets")
	}
	dir := t.TempDir()
	r := newTestRouter(t, dir)
	require.NoError(t, r.Start())

	f, err := os.Open(filepath.Join(dir, SelfFile))
	require.NoError(t, err)
	defer f.Close()
	infos, err := netdb.ReadPeers(f)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, r.Context().Identity().Hash(), infos[0].Identity.Hash())
	assert.Equal(t, r.Host().LocalAddr(), infos[0].Addresses[0].Endpoint)
}

func TestRouterLoadsPeerFile(t *testing.T) {
	dir := t.TempDir()
	other := newTestContext(t)
	f, err := os.Create(filepath.Join(dir, PeersFile))
	require.NoError(t, err)
	require.NoError(t, netdb.WritePeers(f, ssu.PeerInfo{
		Identity:  other.Identity(),
		Addresses: []ssu.PeerAddress{{Endpoint: mustAddr("127.0.0.1:9999"), IntroKey: other.IntroKey()}},
	}))
	require.NoError(t, f.Close())

	r := newTestRouter(t, dir)
	assert.Equal(t, 1, r.Directory().Len())
	assert.True(t, r.Host().Compatible(other.Identity().Hash()))
}

func TestRouterKeepsIdentityAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	first := newTestRouter(t, dir)
	require.NoError(t, first.Close())
	_, err := os.Stat(filepath.Join(dir, keys.DefaultName))
	require.NoError(t, err)

	second := newTestRouter(t, dir)
	assert.Equal(t, first.Context().Identity().Hash(), second.Context().Identity().Hash())
	assert.Equal(t, first.Context().IntroKey(), second.Context().IntroKey())

	throwaway := newTestRouter(t, "")
	assert.NotEqual(t, first.Context().Identity().Hash(), throwaway.Context().Identity().Hash())
}

func TestRouterPeerTestNeedsSession(t *testing.T) {
	r := newTestRouter(t, "")
	_, err := r.RunPeerTest()
	assert.ErrorIs(t, err, ssu.ErrNoPeerTestPartner)
}

func TestRouterStopAndClose(t *testing.T) {
	if testing.Short() {
		t.Skip("binds UDP sockets")
	}
	r := newTestRouter(t, "")
	require.NoError(t, r.Start())
	require.NoError(t, r.Start())

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	r.Stop()
	r.Stop()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return after Stop")
	}
	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

func mustAddr(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}
