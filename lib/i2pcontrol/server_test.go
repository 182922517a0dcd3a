package i2pcontrol

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-i2p/go-ssu/lib/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *fakeStats) {
	t.Helper()
	cfg := config.DefaultSSUConfig()
	cfg.ControlPassword = "itoopie"
	stats := newFakeStats()
	s, err := NewServer(cfg, stats)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, stats
}

func call(t *testing.T, url, method string, params map[string]any) Response {
	t.Helper()
	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": 1, "method": method, "params": params})
	require.NoError(t, err)
	resp, err := http.Post(url+"/jsonrpc", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServerAuthFlow(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := call(t, ts.URL, "Echo", map[string]any{"Echo": "hi"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeAuthRequired, resp.Error.Code)

	resp = call(t, ts.URL, "Authenticate", map[string]any{"API": 1, "Password": "wrong"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeAuthFailed, resp.Error.Code)

	resp = call(t, ts.URL, "Authenticate", map[string]any{"API": 1, "Password": "itoopie"})
	require.Nil(t, resp.Error)
	token := resp.Result.(map[string]any)["Token"].(string)
	require.NotEmpty(t, token)

	resp = call(t, ts.URL, "Echo", map[string]any{"Echo": "hi", "Token": token})
	require.Nil(t, resp.Error)
	assert.Equal(t, "hi", resp.Result.(map[string]any)["Result"])

	resp = call(t, ts.URL, "RouterInfo", map[string]any{"i2p.router.netdb.knownpeers": nil, "Token": token})
	require.Nil(t, resp.Error)
	assert.Equal(t, float64(7), resp.Result.(map[string]any)["i2p.router.netdb.knownpeers"])

	resp = call(t, ts.URL, "Echo", map[string]any{"Echo": "hi", "Token": "forged"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeAuthFailed, resp.Error.Code)

	resp = call(t, ts.URL, "Nope", map[string]any{"Token": token})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
}

func TestServerRejectsBadHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/jsonrpc")
	require.NoError(t, err)
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeInvalidRequest, out.Error.Code)

	resp, err = http.Post(ts.URL+"/jsonrpc", "text/plain", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	out = Response{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	resp.Body.Close()
	require.NotNil(t, out.Error)
	assert.Equal(t, ErrCodeInvalidRequest, out.Error.Code)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/jsonrpc", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
}

func TestServerNotification(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/jsonrpc", "application/json",
		bytes.NewReader([]byte(`{"jsonrpc":"2.0","method":"Authenticate","params":{"API":1,"Password":"itoopie"}}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServerStartStop(t *testing.T) {
	cfg := config.DefaultSSUConfig()
	cfg.ControlAddress = "127.0.0.1:0"
	s, err := NewServer(cfg, newFakeStats())
	require.NoError(t, err)
	assert.Nil(t, s.Addr())

	require.NoError(t, s.Start())
	addr := s.Addr()
	require.NotNil(t, addr)
	resp := call(t, "http://"+addr.String(), "Authenticate", map[string]any{"API": 1, "Password": "itoopie"})
	assert.Nil(t, resp.Error)

	s.Stop()
	s.Stop()
}

func TestNewServerValidation(t *testing.T) {
	cfg := config.DefaultSSUConfig()
	_, err := NewServer(cfg, nil)
	assert.ErrorIs(t, err, ErrNilStats)
	cfg.ControlPassword = ""
	_, err = NewServer(cfg, newFakeStats())
	assert.ErrorIs(t, err, ErrEmptyPassword)
}
