package rpcnode

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetMiningParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		json.NewDecoder(r.Body).Decode(&req)
		if req.Method != MethodGetMiningParams {
			t.Errorf("method = %q, want %q", req.Method, MethodGetMiningParams)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":["0xaa","0xbb","0xcc","0xdd","0xee"]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	raw, err := c.GetMiningParams(context.Background(), "pool-1")
	if err != nil {
		t.Fatalf("GetMiningParams returned error: %v", err)
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if len(arr) != 5 {
		t.Errorf("len(arr) = %d, want 5", len(arr))
	}
	if !c.IsHealthy() {
		t.Error("client should remain healthy after a successful call")
	}
}

func TestCallMarksUnhealthyAfterFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	for i := 0; i < 3; i++ {
		c.Call(context.Background(), MethodGetMeta, nil)
	}
	if c.IsHealthy() {
		t.Error("client should be unhealthy after 3 consecutive failures")
	}
}

func TestPushMiningObjectToPoolDecodesAcceptance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":0}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	code, err := c.PushMiningObjectToPool(context.Background(), []byte("ct"), "member-1", "aa")
	if err != nil {
		t.Fatalf("PushMiningObjectToPool returned error: %v", err)
	}
	if code != 0 {
		t.Errorf("code = %d, want 0 (accepted)", code)
	}
}
