package i2pcontrol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	req, rpcErr := ParseRequest([]byte(`{"jsonrpc":"2.0","id":1,"method":"Echo","params":{"Echo":"x"}}`))
	require.Nil(t, rpcErr)
	assert.Equal(t, "Echo", req.Method)
	assert.False(t, req.IsNotification())

	req, rpcErr = ParseRequest([]byte(`{"jsonrpc":"2.0","method":"Echo"}`))
	require.Nil(t, rpcErr)
	assert.True(t, req.IsNotification())

	for name, tc := range map[string]struct {
		body string
		code int
	}{
		"empty":          {"", ErrCodeParseError},
		"bad json":       {"{", ErrCodeParseError},
		"wrong version":  {`{"jsonrpc":"1.0","id":1,"method":"Echo"}`, ErrCodeInvalidRequest},
		"missing method": {`{"jsonrpc":"2.0","id":1}`, ErrCodeInvalidRequest},
	} {
		t.Run(name, func(t *testing.T) {
			_, rpcErr := ParseRequest([]byte(tc.body))
			require.NotNil(t, rpcErr)
			assert.Equal(t, tc.code, rpcErr.Code)
		})
	}
}

func TestRPCErrorString(t *testing.T) {
	assert.Equal(t, "JSON-RPC error -32601: nope", NewRPCError(ErrCodeMethodNotFound, "nope").Error())
	assert.Contains(t, NewRPCErrorWithData(ErrCodeInternalError, "boom", "detail").Error(), "detail")
}
