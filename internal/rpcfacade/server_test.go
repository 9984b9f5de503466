package rpcfacade

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"

	"github.com/p3d-network/p3d-pool-proxy/internal/codec"
	"github.com/p3d-network/p3d-pool-proxy/internal/params"
)

func TestHandleRPCDispatchesToRegisteredHandler(t *testing.T) {
	s := New(params.New(), nil, ":0")
	s.RegisterHandlers(Handlers{
		PushToPool: func(c *gin.Context, raw json.RawMessage) (interface{}, error) {
			return "accepted", nil
		},
	})

	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "push_to_pool",
		"params":  []string{"0xaa", "obj"},
		"id":      1,
	})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	var resp rpcResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected RPC error: %+v", resp.Error)
	}
	if resp.Result != "accepted" {
		t.Errorf("result = %v, want accepted", resp.Result)
	}
}

func TestHandleRPCUnknownMethod(t *testing.T) {
	s := New(params.New(), nil, ":0")

	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "no_such_method",
		"id":      1,
	})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp rpcResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error == nil || resp.Error.Code != -32601 {
		t.Errorf("expected method-not-found error, got %+v", resp.Error)
	}
}

func TestEncodeMiningParamsHexLength(t *testing.T) {
	snap := params.Snapshot{
		WinDifficulty: uint256.NewInt(1),
		PowDifficulty: uint256.NewInt(1),
	}
	hexStr := EncodeMiningParamsHex(snap)
	raw, err := codec.HexToBytes(hexStr)
	if err != nil {
		t.Fatalf("HexToBytes: %v", err)
	}
	// pre_hash(32) + parent_hash(32) + win_difficulty(32) + pow_difficulty(32) + pub_key(32)
	if len(raw) != 32*5 {
		t.Errorf("len(raw) = %d, want %d", len(raw), 32*5)
	}
}
