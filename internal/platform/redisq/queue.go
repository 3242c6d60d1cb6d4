package redisq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/promptgallery-backend/internal/platform/logger"
)

// Queue is a simple Redis list used as a work queue: Push is LPUSH, Pop is BRPOP.
type Queue interface {
	Push(ctx context.Context, payload string) error
	// Pop blocks up to wait for one item. ok is false when the wait elapsed empty.
	Pop(ctx context.Context, wait time.Duration) (payload string, ok bool, err error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

type queue struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	key string
}

func New(log *logger.Logger, cfg Config) (Queue, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(log, rdb, cfg.Key), nil
}

// NewWithClient wraps an existing client; key defaults to "gallery:embed".
func NewWithClient(log *logger.Logger, rdb goredis.UniversalClient, key string) Queue {
	if strings.TrimSpace(key) == "" {
		key = "gallery:embed"
	}
	return &queue{
		log: log.With("service", "RedisQueue", "key", key),
		rdb: rdb,
		key: key,
	}
}

func (q *queue) Push(ctx context.Context, payload string) error {
	return q.rdb.LPush(ctx, q.key, payload).Err()
}

func (q *queue) Pop(ctx context.Context, wait time.Duration) (string, bool, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	// BRPOP returns [key, value]
	if len(res) != 2 {
		return "", false, fmt.Errorf("unexpected BRPOP reply: %v", res)
	}
	return res[1], true, nil
}

func (q *queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

func (q *queue) Close() error {
	return q.rdb.Close()
}
