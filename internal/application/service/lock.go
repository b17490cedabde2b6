package service

import (
	"context"
	"time"
)

// Locker hands out per-target advisory locks shared across processes.
type Locker interface {
	// TryLock returns ok=false without blocking when the key is already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
