package i2pcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-i2p/go-ssu/lib/transport/ssu"
)

// TokenExpiration is how long an Authenticate token stays valid.
const TokenExpiration = 10 * time.Minute

// unmarshalParams decodes params into v. Absent params decode as an empty
// object.
func unmarshalParams(params json.RawMessage, v any, method string) error {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return NewRPCErrorWithData(ErrCodeInvalidParams, "invalid "+method+" parameters", err.Error())
	}
	return nil
}

// NewEchoHandler returns {"Result": <Echo>}.
func NewEchoHandler() RPCHandler {
	return RPCHandlerFunc(func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			Echo any `json:"Echo"`
		}
		if err := unmarshalParams(params, &req, "Echo"); err != nil {
			return nil, err
		}
		if req.Echo == nil {
			return nil, NewRPCError(ErrCodeInvalidParams, "Echo parameter is required")
		}
		return map[string]any{"Result": req.Echo}, nil
	})
}

// NewAuthenticateHandler trades a password for a token. Only API version 1
// is served.
func NewAuthenticateHandler(am *AuthManager) RPCHandler {
	return RPCHandlerFunc(func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			API      int    `json:"API"`
			Password string `json:"Password"`
		}
		if err := unmarshalParams(params, &req, "Authenticate"); err != nil {
			return nil, err
		}
		if req.API != 1 {
			return nil, NewRPCError(ErrCodeInvalidParams, "unsupported API version")
		}
		token, err := am.Authenticate(req.Password, TokenExpiration)
		if err != nil {
			return nil, NewRPCError(ErrCodeAuthFailed, err.Error())
		}
		return map[string]any{"API": req.API, "Token": token}, nil
	})
}

// RouterInfoHandler answers the requested i2p.router.* keys. Keys it does
// not know are left out; an empty request gets the common set.
type RouterInfoHandler struct {
	stats RouterStatsProvider
}

func NewRouterInfoHandler(stats RouterStatsProvider) *RouterInfoHandler {
	return &RouterInfoHandler{stats: stats}
}

func (h *RouterInfoHandler) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	var req map[string]any
	if err := unmarshalParams(params, &req, "RouterInfo"); err != nil {
		return nil, err
	}
	rs := h.stats.GetRouterInfo()
	available := map[string]any{
		"i2p.router.uptime":            rs.Uptime,
		"i2p.router.version":           rs.Version,
		"i2p.router.status":            rs.Status,
		"i2p.router.net.status":        rs.NetStatus,
		"i2p.router.netdb.knownpeers":  rs.KnownPeers,
		"i2p.router.netdb.activepeers": rs.ActivePeers,
		"i2p.router.net.external":      rs.External,
		"i2p.router.net.clockoffset":   rs.ClockOffset,
	}

	result := make(map[string]any)
	for field := range req {
		if v, ok := available[field]; ok {
			result[field] = v
		}
	}
	if len(result) == 0 {
		for _, field := range []string{
			"i2p.router.uptime",
			"i2p.router.version",
			"i2p.router.net.status",
			"i2p.router.netdb.knownpeers",
		} {
			result[field] = available[field]
		}
	}
	return result, nil
}

// NewSSUInfoHandler reports the SSU host counters.
func NewSSUInfoHandler(stats RouterStatsProvider) RPCHandler {
	return RPCHandlerFunc(func(ctx context.Context, params json.RawMessage) (any, error) {
		s := stats.GetHostStats()
		return map[string]any{
			"i2p.ssu.sessions":       s.Sessions,
			"i2p.ssu.established":    s.Established,
			"i2p.ssu.handshaking":    s.Handshaking,
			"i2p.ssu.peertests":      s.PeerTests,
			"i2p.ssu.sendqueue":      s.SendQueue,
			"i2p.ssu.received":       s.Received,
			"i2p.ssu.sent":           s.Sent,
			"i2p.ssu.dropped":        s.Dropped,
			"i2p.ssu.macfailures":    s.MACFailures,
			"i2p.ssu.keysavailable":  s.KeysAvailable,
			"i2p.ssu.buffers.idle":   s.Buffers.Idle,
			"i2p.ssu.buffers.misses": s.Buffers.Misses,
		}, nil
	})
}

// RouterManagerHandler runs Shutdown and PeerTest. Restart and Reseed are
// reported as not implemented.
type RouterManagerHandler struct {
	stats RouterStatsProvider
}

func NewRouterManagerHandler(stats RouterStatsProvider) *RouterManagerHandler {
	return &RouterManagerHandler{stats: stats}
}

func (h *RouterManagerHandler) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	var req map[string]any
	if err := unmarshalParams(params, &req, "RouterManager"); err != nil {
		return nil, err
	}
	if _, ok := req["Restart"]; ok {
		return nil, NewRPCErrorWithData(ErrCodeNotImpl, "Restart not implemented", "use Shutdown and restart manually")
	}
	if _, ok := req["Reseed"]; ok {
		return nil, NewRPCErrorWithData(ErrCodeNotImpl, "Reseed not implemented", "peers are read from peers.yaml")
	}

	result := make(map[string]any)
	if _, ok := req["PeerTest"]; ok {
		nonce, err := h.stats.RunPeerTest()
		if errors.Is(err, ssu.ErrNoPeerTestPartner) {
			return nil, NewRPCErrorWithData(ErrCodeInternalError, "peer test not started", err.Error())
		}
		if err != nil {
			return nil, err
		}
		result["PeerTest"] = nonce
	}
	if _, ok := req["Shutdown"]; ok {
		go func() {
			log.WithField("at", "(RouterManagerHandler) Handle").Info("shutdown requested via I2PControl")
			h.stats.Stop()
		}()
		result["Shutdown"] = nil
	}
	if len(result) == 0 {
		return nil, NewRPCErrorWithData(ErrCodeInvalidParams, "no operations specified", "specify Shutdown or PeerTest")
	}
	return result, nil
}

// NewI2PControlHandler changes the control password. Every issued token is
// revoked.
func NewI2PControlHandler(am *AuthManager) RPCHandler {
	return RPCHandlerFunc(func(ctx context.Context, params json.RawMessage) (any, error) {
		var req map[string]any
		if err := unmarshalParams(params, &req, "I2PControl"); err != nil {
			return nil, err
		}
		raw, ok := req["i2pcontrol.password"]
		if !ok {
			return nil, NewRPCError(ErrCodeInvalidParams, "no settings specified")
		}
		password, ok := raw.(string)
		if !ok || password == "" {
			return nil, NewRPCError(ErrCodeInvalidParams, "i2pcontrol.password must be a non-empty string")
		}
		am.ChangePassword(password)
		return map[string]any{
			"i2pcontrol.password": nil,
			"SettingsSaved":       true,
			"RestartNeeded":       false,
		}, nil
	})
}
