package i2pcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-i2p/go-ssu/lib/transport/ssu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStats struct {
	info    RouterStats
	host    ssu.HostStats
	testErr error
	stopped atomic.Bool
}

func (f *fakeStats) GetRouterInfo() RouterStats   { return f.info }
func (f *fakeStats) GetHostStats() ssu.HostStats  { return f.host }
func (f *fakeStats) IsRunning() bool              { return !f.stopped.Load() }
func (f *fakeStats) RunPeerTest() (uint32, error) { return 42, f.testErr }
func (f *fakeStats) Stop()                        { f.stopped.Store(true) }

func newFakeStats() *fakeStats {
	return &fakeStats{
		info: RouterStats{
			Uptime:      1500,
			Version:     "0.1.0",
			Status:      "OK",
			NetStatus:   StatusOK,
			KnownPeers:  7,
			ActivePeers: 3,
		},
		host: ssu.HostStats{Sessions: 4, Established: 3, Received: 100, Sent: 90},
	}
}

func rpcCode(t *testing.T, err error) int {
	t.Helper()
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr), "expected *RPCError, got %T", err)
	return rpcErr.Code
}

func TestEchoHandler(t *testing.T) {
	h := NewEchoHandler()
	got, err := h.Handle(context.Background(), json.RawMessage(`{"Echo":"hello","Token":"t"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Result": "hello"}, got)

	_, err = h.Handle(context.Background(), json.RawMessage(`{}`))
	assert.Equal(t, ErrCodeInvalidParams, rpcCode(t, err))

	_, err = h.Handle(context.Background(), json.RawMessage(`{bad`))
	assert.Equal(t, ErrCodeInvalidParams, rpcCode(t, err))
}

func TestRouterInfoHandler(t *testing.T) {
	h := NewRouterInfoHandler(newFakeStats())

	got, err := h.Handle(context.Background(), json.RawMessage(`{"i2p.router.netdb.activepeers":null,"i2p.router.status":null,"bogus":null}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"i2p.router.netdb.activepeers": 3,
		"i2p.router.status":            "OK",
	}, got)

	got, err = h.Handle(context.Background(), nil)
	require.NoError(t, err)
	m := got.(map[string]any)
	assert.Len(t, m, 4)
	assert.Equal(t, int64(1500), m["i2p.router.uptime"])
	assert.Equal(t, 7, m["i2p.router.netdb.knownpeers"])
}

func TestSSUInfoHandler(t *testing.T) {
	got, err := NewSSUInfoHandler(newFakeStats()).Handle(context.Background(), nil)
	require.NoError(t, err)
	m := got.(map[string]any)
	assert.Equal(t, 4, m["i2p.ssu.sessions"])
	assert.Equal(t, uint64(100), m["i2p.ssu.received"])
}

func TestRouterManagerHandler(t *testing.T) {
	stats := newFakeStats()
	h := NewRouterManagerHandler(stats)

	got, err := h.Handle(context.Background(), json.RawMessage(`{"PeerTest":null}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"PeerTest": uint32(42)}, got)

	stats.testErr = ssu.ErrNoPeerTestPartner
	_, err = h.Handle(context.Background(), json.RawMessage(`{"PeerTest":null}`))
	assert.Equal(t, ErrCodeInternalError, rpcCode(t, err))

	_, err = h.Handle(context.Background(), json.RawMessage(`{"Restart":null}`))
	assert.Equal(t, ErrCodeNotImpl, rpcCode(t, err))
	_, err = h.Handle(context.Background(), json.RawMessage(`{"Reseed":null}`))
	assert.Equal(t, ErrCodeNotImpl, rpcCode(t, err))
	_, err = h.Handle(context.Background(), json.RawMessage(`{}`))
	assert.Equal(t, ErrCodeInvalidParams, rpcCode(t, err))

	got, err = h.Handle(context.Background(), json.RawMessage(`{"Shutdown":null}`))
	require.NoError(t, err)
	assert.Contains(t, got, "Shutdown")
	assert.Eventually(t, func() bool { return !stats.IsRunning() }, time.Second, 10*time.Millisecond)
}

func TestI2PControlHandler(t *testing.T) {
	am, err := NewAuthManager("old")
	require.NoError(t, err)
	h := NewI2PControlHandler(am)

	_, err = h.Handle(context.Background(), json.RawMessage(`{}`))
	assert.Equal(t, ErrCodeInvalidParams, rpcCode(t, err))
	_, err = h.Handle(context.Background(), json.RawMessage(`{"i2pcontrol.password":""}`))
	assert.Equal(t, ErrCodeInvalidParams, rpcCode(t, err))

	got, err := h.Handle(context.Background(), json.RawMessage(`{"i2pcontrol.password":"new"}`))
	require.NoError(t, err)
	assert.Equal(t, true, got.(map[string]any)["SettingsSaved"])
	_, err = am.Authenticate("new", time.Minute)
	assert.NoError(t, err)
}

func TestMethodRegistryDispatch(t *testing.T) {
	mr := NewMethodRegistry()
	mr.Register("Fail", RPCHandlerFunc(func(ctx context.Context, params json.RawMessage) (any, error) {
		return nil, errors.New("boom")
	}))
	assert.True(t, mr.IsRegistered("Fail"))

	_, rpcErr := mr.Dispatch(context.Background(), "Missing", nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, ErrCodeMethodNotFound, rpcErr.Code)

	_, rpcErr = mr.Dispatch(context.Background(), "Fail", nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, ErrCodeInternalError, rpcErr.Code)

	assert.Nil(t, mr.HandleRequest(context.Background(), &Request{JSONRPC: "2.0", Method: "Fail"}))
}
