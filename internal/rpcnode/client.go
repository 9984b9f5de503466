// Package rpcnode is a thin JSON-RPC 2.0 client for the upstream
// proof-of-scan node.
package rpcnode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/p3d-network/p3d-pool-proxy/internal/errs"
	"github.com/p3d-network/p3d-pool-proxy/internal/util"
)

// Method names consumed from the upstream node.
const (
	MethodGetMiningParams       = "poscan_getMiningParams"
	MethodPushMiningObjectToPool = "poscan_pushMiningObjectToPool"
	MethodPushMiningObject       = "poscan_pushMiningObject"
	MethodGetMeta                = "poscan_getMeta"
)

// request is the JSON-RPC 2.0 envelope sent upstream. Params is always an
// array.
type request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      uint64      `json:"id"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      uint64          `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("node RPC error %d: %s", e.Code, e.Message)
}

// Client is a single-node JSON-RPC client with lightweight health tracking.
type Client struct {
	url       string
	http      *http.Client
	requestID uint64

	mu           sync.RWMutex
	healthy      bool
	failCount    int
	successCount int
}

// New builds a Client against the given JSON-RPC endpoint.
func New(url string, timeout time.Duration) *Client {
	return &Client{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		healthy: true,
	}
}

// Call invokes method with positional params and returns the raw JSON
// result. Timeouts are caller-controlled via ctx.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (json.RawMessage, error) {
	id := atomic.AddUint64(&c.requestID, 1)
	if params == nil {
		params = []interface{}{}
	}

	body, err := json.Marshal(request{JSONRPC: "2.0", Method: method, Params: params, ID: id})
	if err != nil {
		return nil, errs.New(errs.Network, "Call", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.New(errs.Network, "Call", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.recordFailure()
		return nil, errs.New(errs.Network, "Call", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure()
		return nil, errs.New(errs.Network, "Call", err)
	}

	var rpcResp response
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		c.recordFailure()
		return nil, errs.New(errs.Protocol, "Call", err)
	}
	if rpcResp.Error != nil {
		c.recordFailure()
		return nil, errs.New(errs.Protocol, "Call", rpcResp.Error)
	}

	c.recordSuccess()
	return rpcResp.Result, nil
}

// GetMiningParams calls poscan_getMiningParams for the given pool id and
// returns the raw JSON array result for ParamsPoller to decode.
func (c *Client) GetMiningParams(ctx context.Context, poolID string) (json.RawMessage, error) {
	return c.Call(ctx, MethodGetMiningParams, []interface{}{poolID})
}

// PushMiningObjectToPool submits an encrypted share in POOL mode.
func (c *Client) PushMiningObjectToPool(ctx context.Context, ciphertext []byte, memberID, sigHex string) (int, error) {
	raw, err := c.Call(ctx, MethodPushMiningObjectToPool, []interface{}{ciphertext, memberID, sigHex})
	if err != nil {
		return -1, err
	}
	return decodeIntResult(raw)
}

// PushMiningObject submits a candidate directly in SOLO mode.
func (c *Client) PushMiningObject(ctx context.Context, hashHex, obj string) (int, error) {
	raw, err := c.Call(ctx, MethodPushMiningObject, []interface{}{hashHex, obj})
	if err != nil {
		return -1, err
	}
	return decodeIntResult(raw)
}

// GetMeta fetches the node's opaque metadata string.
func (c *Client) GetMeta(ctx context.Context) (string, error) {
	raw, err := c.Call(ctx, MethodGetMeta, nil)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", errs.New(errs.Protocol, "GetMeta", err)
	}
	return s, nil
}

func decodeIntResult(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return -1, errs.New(errs.Protocol, "decodeIntResult", err)
	}
	return n, nil
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successCount++
	c.failCount = 0
	c.healthy = true
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failCount++
	if c.failCount >= 3 {
		c.healthy = false
		util.Warnf("node %s marked unhealthy after %d failures", c.url, c.failCount)
	}
}

// IsHealthy reports false once the node has failed 3 or more consecutive
// calls, and true again after its next successful call.
func (c *Client) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}
