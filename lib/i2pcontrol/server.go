package i2pcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-i2p/go-ssu/lib/config"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

const (
	// MaxRequestSize bounds a request body.
	MaxRequestSize = 1 << 20
	// TokenCleanupInterval is how often expired tokens are purged.
	TokenCleanupInterval = 5 * time.Minute
)

var (
	ErrNilStats      = errors.New("i2pcontrol: stats provider cannot be nil")
	ErrEmptyPassword = errors.New("i2pcontrol: password cannot be empty")
)

// Server is the HTTP endpoint for I2PControl requests.
type Server struct {
	address     string
	authManager *AuthManager
	registry    *MethodRegistry
	httpServer  *http.Server

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewServer prepares a server on cfg.ControlAddress. Nothing is bound until
// Start.
func NewServer(cfg *config.SSUConfig, stats RouterStatsProvider) (*Server, error) {
	if stats == nil {
		return nil, ErrNilStats
	}
	if cfg.ControlPassword == "" {
		return nil, ErrEmptyPassword
	}
	am, err := NewAuthManager(cfg.ControlPassword)
	if err != nil {
		return nil, err
	}

	registry := NewMethodRegistry()
	registry.Register("Echo", NewEchoHandler())
	registry.Register("Authenticate", NewAuthenticateHandler(am))
	registry.Register("RouterInfo", NewRouterInfoHandler(stats))
	registry.Register("SSUInfo", NewSSUInfoHandler(stats))
	registry.Register("RouterManager", NewRouterManagerHandler(stats))
	registry.Register("I2PControl", NewI2PControlHandler(am))

	s := &Server{
		address:     cfg.ControlAddress,
		authManager: am,
		registry:    registry,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/jsonrpc", s.handleRPC)
	mux.HandleFunc("/", s.handleRPC)
	s.httpServer = &http.Server{
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler is the JSON-RPC HTTP handler, for mounting or testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return oops.Wrapf(err, "i2pcontrol listen on %s", s.address)
	}
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":      "(Server) Start",
		"address": ln.Addr().String(),
	}).Info("starting I2PControl server")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).WithField("at", "(Server) Start").Error("I2PControl server error")
		}
	}()
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(TokenCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.authManager.CleanupExpiredTokens()
			}
		}
	}()
	return nil
}

// Addr is the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts the server down, giving requests in flight five seconds.
func (s *Server) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).WithField("at", "(Server) Stop").Error("error during I2PControl shutdown")
	}
	s.wg.Wait()
	log.WithField("at", "(Server) Stop").Info("I2PControl server stopped")
}

// Close implements io.Closer.
func (s *Server) Close() error {
	s.Stop()
	return nil
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", fmt.Sprintf("http://%s", s.address))
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		writeResponse(w, newErrorResponse(nil, NewRPCError(ErrCodeInvalidRequest, "method must be POST")))
		return
	}
	if ct := r.Header.Get("Content-Type"); ct != "application/json" && ct != "application/json; charset=utf-8" {
		writeResponse(w, newErrorResponse(nil, NewRPCError(ErrCodeInvalidRequest, "Content-Type must be application/json")))
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestSize+1))
	if err != nil {
		writeResponse(w, newErrorResponse(nil, NewRPCErrorWithData(ErrCodeParseError, "failed to read request", err.Error())))
		return
	}
	if len(body) > MaxRequestSize {
		writeResponse(w, newErrorResponse(nil, NewRPCError(ErrCodeInvalidRequest, "request too large")))
		return
	}

	req, rpcErr := ParseRequest(body)
	if rpcErr != nil {
		writeResponse(w, newErrorResponse(nil, rpcErr))
		return
	}
	if rpcErr := s.checkToken(req); rpcErr != nil {
		writeResponse(w, newErrorResponse(req.ID, rpcErr))
		return
	}

	resp := s.registry.HandleRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeResponse(w, resp)
}

func (s *Server) checkToken(req *Request) *RPCError {
	if req.Method == "Authenticate" {
		return nil
	}
	var params struct {
		Token string `json:"Token"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewRPCErrorWithData(ErrCodeInvalidParams, "invalid parameters", err.Error())
		}
	}
	if params.Token == "" {
		return NewRPCError(ErrCodeAuthRequired, "authentication token required")
	}
	if !s.authManager.ValidateToken(params.Token) {
		return NewRPCError(ErrCodeAuthFailed, "invalid or expired token")
	}
	return nil
}

func writeResponse(w http.ResponseWriter, resp *Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithError(err).WithField("at", "writeResponse").Error("failed to encode response")
	}
}
