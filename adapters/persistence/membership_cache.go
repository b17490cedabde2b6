package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/khoahotran/lecture-video/internal/application/service"
	"github.com/khoahotran/lecture-video/pkg/apperror"
	"github.com/khoahotran/lecture-video/pkg/logger"
)

const membershipKeyPrefix = "membership:"

type redisMembershipCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisMembershipCache(rdb *redis.Client, ttl time.Duration, log logger.Logger) service.MembershipCache {
	return &redisMembershipCache{rdb: rdb, ttl: ttl, logger: log}
}

func (c *redisMembershipCache) Get(ctx context.Context, userKey string) (*service.UserMembership, bool, error) {
	raw, err := c.rdb.Get(ctx, membershipKeyPrefix+userKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, apperror.NewInternal("failed to read membership cache", err)
	}
	var m service.UserMembership
	if err := json.Unmarshal(raw, &m); err != nil {
		// a corrupt entry is a miss; it gets overwritten on the next Set
		c.logger.Warn("Discarding unreadable membership cache entry", zap.String("user", userKey), zap.Error(err))
		return nil, false, nil
	}
	return &m, true, nil
}

func (c *redisMembershipCache) Set(ctx context.Context, userKey string, m *service.UserMembership) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return apperror.NewInternal("failed to marshal membership", err)
	}
	if err := c.rdb.Set(ctx, membershipKeyPrefix+userKey, raw, c.ttl).Err(); err != nil {
		return apperror.NewInternal("failed to write membership cache", err)
	}
	return nil
}

func (c *redisMembershipCache) Delete(ctx context.Context, userKey string) error {
	if err := c.rdb.Del(ctx, membershipKeyPrefix+userKey).Err(); err != nil {
		return apperror.NewInternal("failed to delete membership cache entry", err)
	}
	return nil
}

type memoryEntry struct {
	m       service.UserMembership
	expires time.Time
}

// memoryMembershipCache is a per-process expiring map used when no redis is configured.
type memoryMembershipCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryMembershipCache(ttl time.Duration) service.MembershipCache {
	return &memoryMembershipCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (c *memoryMembershipCache) Get(_ context.Context, userKey string) (*service.UserMembership, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userKey]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, userKey)
		return nil, false, nil
	}
	m := service.UserMembership{
		MemberOf:    append([]string(nil), e.m.MemberOf...),
		NotMemberOf: append([]string(nil), e.m.NotMemberOf...),
	}
	return &m, true, nil
}

func (c *memoryMembershipCache) Set(_ context.Context, userKey string, m *service.UserMembership) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userKey] = memoryEntry{
		m: service.UserMembership{
			MemberOf:    append([]string(nil), m.MemberOf...),
			NotMemberOf: append([]string(nil), m.NotMemberOf...),
		},
		expires: c.now().Add(c.ttl),
	}
	return nil
}

func (c *memoryMembershipCache) Delete(_ context.Context, userKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userKey)
	return nil
}
