// Package rpcfacade exposes the miner-facing JSON-RPC 2.0 surface:
// get_mining_params, push_to_pool, push_stats.
package rpcfacade

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/p3d-network/p3d-pool-proxy/internal/codec"
	"github.com/p3d-network/p3d-pool-proxy/internal/params"
	"github.com/p3d-network/p3d-pool-proxy/internal/policy"
	"github.com/p3d-network/p3d-pool-proxy/internal/util"
)

// rpcRequest is the miner-facing JSON-RPC 2.0 envelope.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server is the gin-based HTTP front the proxy exposes to miners.
type Server struct {
	store    *params.Store
	policy   *policy.PolicyServer
	router   *gin.Engine
	server   *http.Server
	bind     string
	handlers Handlers
}

// New builds the facade. Handlers are wired separately via
// RegisterHandlers so this package never imports internal/validator
// directly (the validator is built separately and shares the same
// params.Store).
func New(store *params.Store, pol *policy.PolicyServer, bind string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{store: store, policy: pol, router: router, bind: bind}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	s.router.POST("/", s.handleRPC)
}

// Handler is the per-method callback signature this facade dispatches to.
// rawParams is the request's params field as undecoded JSON; each handler
// decodes it itself. The return value becomes the JSON-RPC result.
type Handler func(c *gin.Context, rawParams json.RawMessage) (interface{}, error)

// Handlers is the method table; set by the caller after New so this
// package doesn't import internal/validator directly.
type Handlers struct {
	GetMiningParams Handler
	PushToPool      Handler
	PushStats       Handler
}

// RegisterHandlers wires the three miner-facing operations.
func (s *Server) RegisterHandlers(h Handlers) {
	s.handlers = h
}

func (s *Server) handleRPC(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}})
		return
	}

	if s.policy != nil && !s.policy.Allow(c.ClientIP()) {
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: "rate limited"}})
		return
	}

	var handler Handler
	switch req.Method {
	case "get_mining_params":
		handler = s.handlers.GetMiningParams
	case "push_to_pool":
		handler = s.handlers.PushToPool
	case "push_stats":
		handler = s.handlers.PushStats
	default:
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found"}})
		return
	}
	if handler == nil {
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32603, Message: "handler not configured"}})
		return
	}

	result, err := handler(c, req.Params)
	if err != nil {
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32000, Message: err.Error()}})
		return
	}
	c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.server = &http.Server{Addr: s.bind, Handler: s.router}
	util.Infof("miner-facing RPC facade listening on %s", s.bind)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.Errorf("rpcfacade server error: %v", err)
		}
	}()
	return nil
}

// Stop shuts down the facade.
func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// EncodeMiningParamsHex builds the get_mining_params response: bare
// (no "0x" prefix) hex of SCALE(pre_hash, parent_hash, win_difficulty,
// effective_pow_difficulty, pub_key) — miners decode this as raw hex, not
// a 0x-prefixed value.
func EncodeMiningParamsHex(snap params.Snapshot) string {
	buf := codec.EncodeHashes(snap.PreHash, snap.ParentHash)
	buf = append(buf, codec.EncodeU256(nil, snap.WinDifficulty)...)
	buf = append(buf, codec.EncodeU256(nil, snap.PowDifficulty)...)
	buf = append(buf, snap.PubKey[:]...)
	return hex.EncodeToString(buf)
}
