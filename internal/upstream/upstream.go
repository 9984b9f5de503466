// Package upstream provides multi-node failover on top of rpcnode.Client,
// for deployments that configure more than one proof-of-scan node.
package upstream

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/p3d-network/p3d-pool-proxy/internal/config"
	"github.com/p3d-network/p3d-pool-proxy/internal/rpcnode"
	"github.com/p3d-network/p3d-pool-proxy/internal/util"
)

// State reports one node's health for monitoring.
type State struct {
	Name         string
	URL          string
	Healthy      bool
	LastCheck    time.Time
	SuccessCount int32
	FailCount    int32
	ResponseTime time.Duration
	Weight       int
}

type node struct {
	client *rpcnode.Client
	name   string
	url    string
	weight int

	mu           sync.RWMutex
	healthy      bool
	failCount    int32
	successCount int32
	lastCheck    time.Time
	responseTime time.Duration
}

// Manager holds a weighted set of nodes and fails over between them.
type Manager struct {
	nodes []*node
	cfg   *config.NodeConfig

	activeIdx int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Manager from cfg.Upstreams, or a single node from cfg.URL
// when Upstreams is empty.
func New(ctx context.Context, cfg *config.NodeConfig) *Manager {
	mgrCtx, cancel := context.WithCancel(ctx)
	mgr := &Manager{cfg: cfg, ctx: mgrCtx, cancel: cancel}

	if len(cfg.Upstreams) > 0 {
		for _, u := range cfg.Upstreams {
			timeout := u.Timeout
			if timeout == 0 {
				timeout = cfg.Timeout
			}
			weight := u.Weight
			if weight == 0 {
				weight = 1
			}
			name := u.Name
			if name == "" {
				name = u.URL
			}
			mgr.nodes = append(mgr.nodes, &node{
				client:  rpcnode.New(u.URL, timeout),
				name:    name,
				url:     u.URL,
				weight:  weight,
				healthy: true,
			})
		}
	} else if cfg.URL != "" {
		mgr.nodes = append(mgr.nodes, &node{
			client:  rpcnode.New(cfg.URL, cfg.Timeout),
			name:    "primary",
			url:     cfg.URL,
			weight:  1,
			healthy: true,
		})
	}

	sort.Slice(mgr.nodes, func(i, j int) bool { return mgr.nodes[i].weight > mgr.nodes[j].weight })
	return mgr
}

// Start begins the background health-check loop.
func (m *Manager) Start() {
	if len(m.nodes) == 0 {
		util.Warn("upstream manager: no nodes configured")
		return
	}
	util.Infof("upstream manager starting with %d nodes", len(m.nodes))
	m.checkAll()

	m.wg.Add(1)
	go m.healthCheckLoop()
}

// Stop ends the health-check loop and waits for it to exit.
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()

	interval := m.cfg.HealthCheckInterval
	if interval == 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

func (m *Manager) checkAll() {
	var wg sync.WaitGroup
	for _, n := range m.nodes {
		wg.Add(1)
		go func(n *node) {
			defer wg.Done()
			m.checkOne(n)
		}(n)
	}
	wg.Wait()
	m.selectBest()
}

func (m *Manager) checkOne(n *node) {
	timeout := m.cfg.HealthCheckTimeout
	if timeout == 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(m.ctx, timeout)
	defer cancel()

	start := time.Now()
	_, err := n.client.GetMeta(ctx)
	elapsed := time.Since(start)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastCheck = time.Now()
	n.responseTime = elapsed

	maxFailures := m.cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 3
	}
	recoveryThreshold := m.cfg.RecoveryThreshold
	if recoveryThreshold == 0 {
		recoveryThreshold = 2
	}

	if err != nil {
		n.failCount++
		n.successCount = 0
		if n.failCount >= int32(maxFailures) && n.healthy {
			n.healthy = false
			util.Warnf("upstream %s marked unhealthy after %d failures: %v", n.name, n.failCount, err)
		}
		return
	}

	n.successCount++
	if !n.healthy && n.successCount >= int32(recoveryThreshold) {
		n.healthy = true
		n.failCount = 0
		util.Infof("upstream %s recovered (response=%v)", n.name, elapsed)
	} else if n.healthy {
		n.failCount = 0
	}
}

func (m *Manager) selectBest() {
	bestIdx, bestWeight := -1, -1
	for i, n := range m.nodes {
		n.mu.RLock()
		healthy, weight := n.healthy, n.weight
		n.mu.RUnlock()
		if !healthy {
			continue
		}
		if weight > bestWeight {
			bestIdx, bestWeight = i, weight
		}
	}
	if bestIdx < 0 {
		util.Warn("upstream manager: no healthy nodes available")
		return
	}
	if int32(bestIdx) != atomic.LoadInt32(&m.activeIdx) {
		atomic.StoreInt32(&m.activeIdx, int32(bestIdx))
		util.Infof("upstream manager switched to %s", m.nodes[bestIdx].name)
	}
}

// Client returns the currently active node's client.
func (m *Manager) Client() *rpcnode.Client {
	if len(m.nodes) == 0 {
		return nil
	}
	idx := atomic.LoadInt32(&m.activeIdx)
	if idx >= 0 && idx < int32(len(m.nodes)) {
		return m.nodes[idx].client
	}
	return m.nodes[0].client
}

// States returns a health snapshot of every configured node.
func (m *Manager) States() []State {
	states := make([]State, len(m.nodes))
	for i, n := range m.nodes {
		n.mu.RLock()
		states[i] = State{
			Name:         n.name,
			URL:          n.url,
			Healthy:      n.healthy,
			LastCheck:    n.lastCheck,
			SuccessCount: n.successCount,
			FailCount:    n.failCount,
			ResponseTime: n.responseTime,
			Weight:       n.weight,
		}
		n.mu.RUnlock()
	}
	return states
}

// HasHealthyNode reports whether at least one node is currently healthy.
func (m *Manager) HasHealthyNode() bool {
	for _, n := range m.nodes {
		n.mu.RLock()
		healthy := n.healthy
		n.mu.RUnlock()
		if healthy {
			return true
		}
	}
	return false
}
