package upstream

import (
	"context"
	"testing"
	"time"

	"github.com/p3d-network/p3d-pool-proxy/internal/config"
)

func TestNewSingleURL(t *testing.T) {
	cfg := &config.NodeConfig{URL: "http://localhost:8545", Timeout: 10 * time.Second}

	ctx := context.Background()
	mgr := New(ctx, cfg)

	if len(mgr.nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(mgr.nodes))
	}
	if mgr.nodes[0].name != "primary" {
		t.Errorf("name = %q, want %q", mgr.nodes[0].name, "primary")
	}
	if mgr.Client() == nil {
		t.Error("expected a non-nil client")
	}
}

func TestNewMultipleUpstreamsSortedByWeight(t *testing.T) {
	cfg := &config.NodeConfig{
		Timeout: 10 * time.Second,
		Upstreams: []config.UpstreamConfig{
			{Name: "backup2", URL: "http://node3:8545", Weight: 1},
			{Name: "primary", URL: "http://node1:8545", Weight: 10},
			{Name: "backup1", URL: "http://node2:8545", Weight: 5},
		},
	}

	mgr := New(context.Background(), cfg)

	if len(mgr.nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(mgr.nodes))
	}
	want := []string{"primary", "backup1", "backup2"}
	for i, name := range want {
		if mgr.nodes[i].name != name {
			t.Errorf("nodes[%d].name = %q, want %q", i, mgr.nodes[i].name, name)
		}
	}
}

func TestNewDefaultWeight(t *testing.T) {
	cfg := &config.NodeConfig{
		Timeout: 10 * time.Second,
		Upstreams: []config.UpstreamConfig{
			{Name: "node1", URL: "http://node1:8545"},
			{Name: "node2", URL: "http://node2:8545", Weight: 0},
		},
	}

	mgr := New(context.Background(), cfg)
	for _, n := range mgr.nodes {
		if n.weight != 1 {
			t.Errorf("node %s weight = %d, want 1 (default)", n.name, n.weight)
		}
	}
}

func TestSelectBestPrefersHealthyHighestWeight(t *testing.T) {
	cfg := &config.NodeConfig{Timeout: time.Second}
	mgr := New(context.Background(), cfg)
	mgr.nodes = []*node{
		{name: "a", weight: 5, healthy: true},
		{name: "b", weight: 10, healthy: false},
		{name: "c", weight: 3, healthy: true},
	}

	mgr.selectBest()

	if mgr.Client() != mgr.nodes[0].client {
		t.Error("expected the active client to be the highest-weight healthy node (a)")
	}
}

func TestHasHealthyNode(t *testing.T) {
	mgr := &Manager{nodes: []*node{{healthy: false}, {healthy: true}}}
	if !mgr.HasHealthyNode() {
		t.Error("expected at least one healthy node")
	}

	mgr.nodes = []*node{{healthy: false}}
	if mgr.HasHealthyNode() {
		t.Error("expected no healthy nodes")
	}
}
