// p3dproxy is a mining proxy between proof-of-scan miners and a chain
// node, running in SOLO (pass-through submission) or POOL (validated,
// encrypted, signed share submission) mode.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/p3d-network/p3d-pool-proxy/internal/codec"
	"github.com/p3d-network/p3d-pool-proxy/internal/config"
	"github.com/p3d-network/p3d-pool-proxy/internal/difficulty"
	"github.com/p3d-network/p3d-pool-proxy/internal/hashengine"
	"github.com/p3d-network/p3d-pool-proxy/internal/ledger"
	"github.com/p3d-network/p3d-pool-proxy/internal/newrelic"
	"github.com/p3d-network/p3d-pool-proxy/internal/notify"
	"github.com/p3d-network/p3d-pool-proxy/internal/params"
	"github.com/p3d-network/p3d-pool-proxy/internal/policy"
	"github.com/p3d-network/p3d-pool-proxy/internal/profiling"
	"github.com/p3d-network/p3d-pool-proxy/internal/rpcfacade"
	"github.com/p3d-network/p3d-pool-proxy/internal/seed"
	"github.com/p3d-network/p3d-pool-proxy/internal/sharecrypto"
	"github.com/p3d-network/p3d-pool-proxy/internal/upstream"
	"github.com/p3d-network/p3d-pool-proxy/internal/util"
	"github.com/p3d-network/p3d-pool-proxy/internal/validator"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "inspect" {
		runInspect(os.Args[2:])
		return
	}
	if len(os.Args) > 1 && os.Args[1] == "run" {
		runProxy(os.Args[2:])
		return
	}
	runProxy(os.Args[1:])
}

func runInspect(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	mnemonic := fs.String("seed", "", `BIP-39 mnemonic, e.g. --seed "word1 word2 ..."`)
	fs.Parse(args)

	if *mnemonic == "" {
		fmt.Fprintln(os.Stderr, "inspect: --seed is required")
		os.Exit(1)
	}

	miniSecret, err := seed.MiniSecretFromMnemonic(*mnemonic, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "inspect: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(codec.BytesToHex(miniSecret[:])[2:])
	os.Exit(0)
}

func runProxy(args []string) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	algo := fs.String("algo", "", "Proof-of-scan algorithm variant")
	proxyAddress := fs.String("proxy-address", "", "Miner-facing bind address host:port")
	nodeURL := fs.String("node-url", "", "Upstream node JSON-RPC URL")
	poolID := fs.String("pool-id", "", "Pool identifier (POOL mode)")
	memberID := fs.String("member-id", "", "Member identifier (POOL mode)")
	memberKey := fs.String("member-key", "", "Hex-encoded mini-secret (POOL mode)")
	mode := fs.String("mode", "", "Run mode: solo or pool")
	showVersion := fs.Bool("version", false, "Show version and exit")
	fs.Parse(args)

	if *showVersion {
		fmt.Printf("p3dproxy v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlagOverrides(cfg, fs, algo, proxyAddress, nodeURL, poolID, memberID, memberKey, mode)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	util.Infof("p3dproxy v%s starting in %s mode", version, cfg.Pool.Mode)

	p3dParams, err := hashengine.NewP3dParams(cfg.Proxy.Algo)
	if err != nil {
		util.Fatalf("invalid algo %q: %v", cfg.Proxy.Algo, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	upstreamMgr := upstream.New(ctx, &cfg.Node)
	upstreamMgr.Start()
	node := &failoverNode{mgr: upstreamMgr}

	var notifier *notify.Notifier
	if cfg.Notify.Enabled {
		notifier = notify.NewNotifier(&notify.WebhookConfig{
			DiscordURL:   cfg.Notify.DiscordURL,
			TelegramBot:  cfg.Notify.TelegramBot,
			TelegramChat: cfg.Notify.TelegramChat,
			Enabled:      cfg.Notify.Enabled,
			ProxyName:    cfg.Notify.ProxyName,
		})
	}

	var shares ledger.Ledger
	var redisLedger *ledger.RedisLedger
	if cfg.Redis.URL != "" {
		redisLedger, err = ledger.NewRedisLedger(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			util.Fatalf("failed to connect to redis: %v", err)
		}
		shares = redisLedger
	}

	var policyServer *policy.PolicyServer
	if redisLedger != nil {
		policyConfig := policy.DefaultConfig()
		policyConfig.BanningEnabled = cfg.Security.BanningEnabled
		policyConfig.BanTimeout = cfg.Security.BanTimeout
		policyConfig.RateLimitEnabled = cfg.Security.RateLimitEnabled
		if cfg.Security.ConnectionLimit > 0 {
			policyConfig.ConnectionLimit = cfg.Security.ConnectionLimit
		}
		policyServer = policy.NewPolicyServer(policyConfig, redisLedger)
		policyServer.Start()
	}

	if notifier != nil {
		go watchNodeHealth(ctx, upstreamMgr, notifier)
	}

	store := params.New()
	poller := params.NewPoller(node, store, cfg.Pool.PoolID)
	go poller.Run(ctx)

	var memberKeyPair *sharecrypto.MemberKey
	var diffCtl *difficulty.Controller
	var shareValidator *validator.Validator
	if cfg.IsPoolMode() {
		keyBytes, err := codec.HexToBytes(cfg.Pool.MemberKey)
		if err != nil || len(keyBytes) != 32 {
			util.Fatalf("member-key must be 32 bytes of hex: %v", err)
		}
		var miniSecret [32]byte
		copy(miniSecret[:], keyBytes)

		memberKeyPair, err = sharecrypto.NewMemberKey(miniSecret)
		if err != nil {
			util.Fatalf("failed to derive member key: %v", err)
		}

		if shares == nil {
			util.Fatalf("pool mode requires redis.url to be configured")
		}

		diffCtl = difficulty.New(shares)
		shareValidator = validator.New(store, p3dParams, memberKeyPair, node, shares, diffCtl, cfg.Pool.PoolID, cfg.Pool.MemberID)
	}

	var nrAgent *newrelic.Agent
	if cfg.NewRelic.Enabled {
		nrAgent = newrelic.NewAgent(&cfg.NewRelic)
		if err := nrAgent.Start(); err != nil {
			util.Errorf("failed to start New Relic agent: %v", err)
		}
	}

	var pprofServer *profiling.Server
	if cfg.Profiling.Enabled {
		pprofServer = profiling.NewServer(&cfg.Profiling)
		if err := pprofServer.Start(); err != nil {
			util.Errorf("failed to start pprof server: %v", err)
		}
	}

	facade := rpcfacade.New(store, policyServer, cfg.Proxy.Address)
	facade.RegisterHandlers(buildHandlers(cfg, store, node, shareValidator, nrAgent))
	if err := facade.Start(); err != nil {
		util.Fatalf("failed to start rpc facade: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	util.Info("p3dproxy started successfully. Press Ctrl+C to stop.")
	<-sigChan
	util.Info("shutting down...")

	cancel()
	if err := facade.Stop(); err != nil {
		util.Errorf("rpc facade stop: %v", err)
	}
	upstreamMgr.Stop()
	if pprofServer != nil {
		pprofServer.Stop()
	}
	if policyServer != nil {
		policyServer.Stop()
	}
	if nrAgent != nil {
		nrAgent.Stop()
	}
	if redisLedger != nil {
		redisLedger.Close()
	}

	util.Info("p3dproxy stopped")
}

func applyFlagOverrides(cfg *config.Config, fs *flag.FlagSet, algo, proxyAddress, nodeURL, poolID, memberID, memberKey, mode *string) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "algo":
			cfg.Proxy.Algo = *algo
		case "proxy-address":
			cfg.Proxy.Address = *proxyAddress
		case "node-url":
			cfg.Node.URL = *nodeURL
		case "pool-id":
			cfg.Pool.PoolID = *poolID
		case "member-id":
			cfg.Pool.MemberID = *memberID
		case "member-key":
			cfg.Pool.MemberKey = *memberKey
		case "mode":
			cfg.Pool.Mode = config.Mode(*mode)
		}
	})
}

// failoverNode adapts upstream.Manager to the narrow nodeClient/submitter
// interfaces internal/params and internal/validator depend on, so both
// keep calling through to whichever node is currently active rather than
// binding to a single client at construction time.
type failoverNode struct {
	mgr *upstream.Manager
}

func (n *failoverNode) GetMiningParams(ctx context.Context, poolID string) (json.RawMessage, error) {
	return n.mgr.Client().GetMiningParams(ctx, poolID)
}

func (n *failoverNode) PushMiningObjectToPool(ctx context.Context, ciphertext []byte, memberID, sigHex string) (int, error) {
	return n.mgr.Client().PushMiningObjectToPool(ctx, ciphertext, memberID, sigHex)
}

func (n *failoverNode) PushMiningObject(ctx context.Context, hashHex, obj string) (int, error) {
	return n.mgr.Client().PushMiningObject(ctx, hashHex, obj)
}

// watchNodeHealth notifies once per transition into "no healthy upstream".
func watchNodeHealth(ctx context.Context, mgr *upstream.Manager, notifier *notify.Notifier) {
	wasHealthy := true
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			healthy := mgr.HasHealthyNode()
			if !healthy && wasHealthy {
				for _, st := range mgr.States() {
					if !st.Healthy {
						notifier.NotifyNodeDown(st.URL)
					}
				}
			}
			wasHealthy = healthy
		}
	}
}

// buildHandlers wires the three miner-facing RPC methods. In SOLO mode
// push_to_pool forwards directly to the node; in POOL mode it runs the
// full validation/encryption/signing pipeline.
func buildHandlers(cfg *config.Config, store *params.Store, node *failoverNode, v *validator.Validator, nrAgent *newrelic.Agent) rpcfacade.Handlers {
	return rpcfacade.Handlers{
		GetMiningParams: func(c *gin.Context, _ json.RawMessage) (interface{}, error) {
			snap, ok := store.ReadSnapshot()
			if !ok {
				return nil, fmt.Errorf("mining params not yet available")
			}
			return rpcfacade.EncodeMiningParamsHex(snap), nil
		},
		PushToPool: func(c *gin.Context, rawParams json.RawMessage) (interface{}, error) {
			var args []string
			if err := json.Unmarshal(rawParams, &args); err != nil || len(args) < 2 {
				return nil, fmt.Errorf("push_to_pool expects [hash, obj]")
			}
			hashHex, obj := args[0], args[1]

			if cfg.IsSoloMode() {
				code, err := node.PushMiningObject(c.Request.Context(), hashHex, obj)
				if err != nil {
					return nil, err
				}
				if code != 0 {
					return "Share rejected", nil
				}
				return "Share accepted", nil
			}

			status, err := v.Validate(c.Request.Context(), hashHex, obj, cfg.Pool.MemberID, cfg.Pool.RigName)
			if err != nil {
				return nil, err
			}
			if nrAgent != nil {
				nrAgent.RecordShareResult(cfg.Pool.MemberID, cfg.Pool.RigName, status, 0)
			}
			return status, nil
		},
		PushStats: func(c *gin.Context, rawParams json.RawMessage) (interface{}, error) {
			util.Debugf("push_stats: %s", string(rawParams))
			return "ok", nil
		},
	}
}
