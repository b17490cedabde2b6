package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/config"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

const redisPingTimeout = 5 * time.Second

// NewRedisClient connects the client backing the membership cache and the
// per-video locks.
func NewRedisClient(cfg config.Config, log logger.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("can not connect Redis at %s: %w", cfg.Redis.Addr, err)
	}

	log.Info("Connect Redis successfully.", zap.String("addr", cfg.Redis.Addr), zap.Int("db", cfg.Redis.DB))
	return rdb, nil
}
