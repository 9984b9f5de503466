package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/holiman/uint256"

	"github.com/p3d-network/p3d-pool-proxy/internal/errs"
	"github.com/p3d-network/p3d-pool-proxy/internal/util"
)

// Key layout: one sorted set per (wallet, rig) scored by millisecond timestamp, plus
// blacklist/whitelist sets shared with the policy server.
const (
	keyPrefix      = "p3dproxy:"
	keySharesFmt   = keyPrefix + "shares:%s:%s"
	keyBlacklist   = keyPrefix + "blacklist"
	keyWhitelist   = keyPrefix + "whitelist"
	defaultWindow  = 60
)

// RedisLedger is the Redis-backed Ledger implementation.
type RedisLedger struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisLedger connects to Redis and verifies the connection with a ping.
func NewRedisLedger(url, password string, db int) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errs.New(errs.Network, "NewRedisLedger", err)
	}

	util.Infof("ledger connected to redis at %s", url)
	return &RedisLedger{client: client, ctx: ctx}, nil
}

// Close closes the underlying Redis connection.
func (r *RedisLedger) Close() error {
	return r.client.Close()
}

type wireShare struct {
	MinerWallet string `json:"miner_wallet"`
	RigName     string `json:"rig_name"`
	TimestampMs int64  `json:"timestamp"`
	Difficulty  string `json:"difficulty"`
	Accounted   bool   `json:"accounted"`
	Paid        bool   `json:"paid"`
}

func toWire(s Share) wireShare {
	diff := "0"
	if s.Difficulty != nil {
		diff = s.Difficulty.Hex()
	}
	return wireShare{
		MinerWallet: s.MinerWallet,
		RigName:     s.RigName,
		TimestampMs: s.TimestampMs,
		Difficulty:  diff,
		Accounted:   s.Accounted,
		Paid:        s.Paid,
	}
}

func fromWire(w wireShare) (Share, error) {
	d, err := uint256.FromHex(w.Difficulty)
	if err != nil {
		return Share{}, errs.New(errs.Protocol, "fromWire", err)
	}
	return Share{
		MinerWallet: w.MinerWallet,
		RigName:     w.RigName,
		TimestampMs: w.TimestampMs,
		Difficulty:  d,
		Accounted:   w.Accounted,
		Paid:        w.Paid,
	}, nil
}

// WriteShare appends a share to the (wallet, rig) sorted set, scored by its
// timestamp. Ledger failures are non-fatal to share submission — callers
// log the error but the share has already gone upstream.
func (r *RedisLedger) WriteShare(s Share) error {
	body, err := json.Marshal(toWire(s))
	if err != nil {
		return errs.New(errs.Network, "WriteShare", err)
	}

	key := fmt.Sprintf(keySharesFmt, s.MinerWallet, s.RigName)
	// Member carries the full record behind a wall-clock nanosecond prefix so
	// two identical shares landing in the same millisecond do not collide as
	// sorted-set members.
	member := fmt.Sprintf("%d:%s", time.Now().UnixNano(), body)

	if err := r.client.ZAdd(r.ctx, key, &redis.Z{
		Score:  float64(s.TimestampMs),
		Member: member,
	}).Err(); err != nil {
		return errs.New(errs.Network, "WriteShare", err)
	}
	return nil
}

// LoadRecent returns up to limit shares for (wallet, rig) ordered by
// timestamp descending, matching the DifficultyController's window query.
func (r *RedisLedger) LoadRecent(wallet, rig string, limit int) ([]Share, error) {
	if limit <= 0 {
		limit = defaultWindow
	}
	key := fmt.Sprintf(keySharesFmt, wallet, rig)

	members, err := r.client.ZRevRangeWithScores(r.ctx, key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errs.New(errs.Network, "LoadRecent", err)
	}

	out := make([]Share, 0, len(members))
	for _, m := range members {
		member, ok := m.Member.(string)
		if !ok {
			continue
		}
		idx := indexOfColon(member)
		if idx < 0 {
			continue
		}
		var w wireShare
		if err := json.Unmarshal([]byte(member[idx+1:]), &w); err != nil {
			continue
		}
		s, err := fromWire(w)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func indexOfColon(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

// GetBlacklist returns blacklisted wallet addresses, used by the policy
// server.
func (r *RedisLedger) GetBlacklist() ([]string, error) {
	return r.client.SMembers(r.ctx, keyBlacklist).Result()
}

// GetWhitelist returns whitelisted IPs, used by the policy server.
func (r *RedisLedger) GetWhitelist() ([]string, error) {
	return r.client.SMembers(r.ctx, keyWhitelist).Result()
}

// AddToBlacklist adds a wallet address to the blacklist.
func (r *RedisLedger) AddToBlacklist(address string) error {
	return r.client.SAdd(r.ctx, keyBlacklist, address).Err()
}

// AddToWhitelist adds an IP to the whitelist.
func (r *RedisLedger) AddToWhitelist(ip string) error {
	return r.client.SAdd(r.ctx, keyWhitelist, ip).Err()
}
