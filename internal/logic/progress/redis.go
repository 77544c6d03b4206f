package progress

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisProgressStore 管理 Redis 中的签名状态（幂等控制）与回填游标
type RedisProgressStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// Redis key 前缀
const (
	signaturePrefix = "sniffer:progress:sig"
	cursorPrefix    = "sniffer:progress:cursor"
)

const defaultSignatureTTL = 7 * 24 * time.Hour

// NewRedisProgressStore 创建 Redis 判重管理器，ttl<=0 时使用默认 7 天
func NewRedisProgressStore(rdb *redis.Client, ttl time.Duration) *RedisProgressStore {
	if ttl <= 0 {
		ttl = defaultSignatureTTL
	}
	return &RedisProgressStore{rdb: rdb, ttl: ttl}
}

func signatureKey(sig string) string {
	return signaturePrefix + ":" + sig
}

func cursorKey(name string) string {
	return cursorPrefix + ":" + name
}

// Statuses 批量查询签名状态，结果与 sigs 一一对应
func (r *RedisProgressStore) Statuses(ctx context.Context, sigs []string) ([]SigStatus, error) {
	out := make([]SigStatus, len(sigs))
	if len(sigs) == 0 {
		return out, nil
	}

	keys := make([]string, len(sigs))
	for i, s := range sigs {
		keys[i] = signatureKey(s)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget error: %w", err)
	}
	for i, v := range vals {
		out[i] = parseStatus(v)
	}
	return out, nil
}

func parseStatus(v any) SigStatus {
	s, ok := v.(string)
	if !ok {
		return SigUnknown
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return SigUnknown // 容错处理
	}
	switch st := SigStatus(n); st {
	case SigProcessed, SigInvalid, SigPending:
		return st
	default:
		return SigUnknown
	}
}

// MarkSignatures 批量设置签名状态（pipeline）
func (r *RedisProgressStore) MarkSignatures(ctx context.Context, sigs []string, status SigStatus) error {
	if len(sigs) == 0 {
		return nil
	}
	pipe := r.rdb.Pipeline()
	for _, s := range sigs {
		pipe.Set(ctx, signatureKey(s), int(status), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis mark %d signatures error: %w", len(sigs), err)
	}
	return nil
}

// GetCursor 读取回填游标，不存在时返回空串
func (r *RedisProgressStore) GetCursor(ctx context.Context, name string) (string, error) {
	val, err := r.rdb.Get(ctx, cursorKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get cursor error: %w", err)
	}
	return val, nil
}

// SetCursor 游标不过期
func (r *RedisProgressStore) SetCursor(ctx context.Context, name, cursor string) error {
	return r.rdb.Set(ctx, cursorKey(name), cursor, 0).Err()
}
