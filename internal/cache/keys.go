package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	OverviewKeyPrefix = "analytics:overview:%d:%d"
	LockKeyPrefix     = "lock:%s"
)

const OverviewTTL = 60 * time.Second

// OverviewKey scopes the analytics overview by user and window length.
func OverviewKey(userID uint, days int) string {
	return fmt.Sprintf(OverviewKeyPrefix, userID, days)
}

func LockKey(name string) string {
	return fmt.Sprintf(LockKeyPrefix, name)
}

// Invalidate deletes keys, ignoring a disabled cache.
func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidateOverview drops every cached overview window for each user.
func InvalidateOverview(ctx context.Context, userIDs ...uint) {
	if client == nil {
		return
	}
	var keys []string
	seen := make(map[uint]bool, len(userIDs))
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		iter := client.Scan(ctx, 0, fmt.Sprintf("analytics:overview:%d:*", id), 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
	}
	Invalidate(ctx, keys...)
}
