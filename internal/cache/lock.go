package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock.
var ErrLockHeld = errors.New("lock held by another worker")

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the TTL only if the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var (
	localMu    sync.Mutex
	localLocks = map[string]time.Time{}
)

// lease is one acquired lock. extend reports false once the lock is lost.
type lease struct {
	release func()
	extend  func() bool
}

// AcquireLock takes a named lock for at most ttl. It uses Redis SET NX when
// available and an in-process table otherwise. The returned release func is
// safe to call more than once.
func AcquireLock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	l, err := acquire(ctx, name, ttl)
	if err != nil {
		return nil, err
	}
	return l.release, nil
}

// HoldLock is AcquireLock for work of unknown length: the lock is extended
// to a fresh ttl every ttl/3 until release is called. A holder that dies
// stops extending, so the lock still lapses within ttl.
func HoldLock(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	l, err := acquire(ctx, name, ttl)
	if err != nil {
		return nil, err
	}

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		tick := time.NewTicker(ttl / 3)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				if !l.extend() {
					return
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			l.release()
		})
	}, nil
}

func acquire(ctx context.Context, name string, ttl time.Duration) (*lease, error) {
	key := LockKey(name)
	if client == nil {
		return acquireLocal(key, ttl)
	}

	rc := client
	token := uuid.NewString()
	ok, err := rc.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}

	var once sync.Once
	return &lease{
		release: func() {
			once.Do(func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(ctx, rc, []string{key}, token).Err()
			})
		},
		extend: func() bool {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			n, err := extendScript.Run(ctx, rc, []string{key}, token, ttl.Milliseconds()).Int()
			return err == nil && n == 1
		},
	}, nil
}

func acquireLocal(key string, ttl time.Duration) (*lease, error) {
	localMu.Lock()
	defer localMu.Unlock()

	now := time.Now()
	if until, held := localLocks[key]; held && now.Before(until) {
		return nil, ErrLockHeld
	}
	// deadline identifies this holder; guarded by localMu.
	deadline := now.Add(ttl)
	localLocks[key] = deadline

	var once sync.Once
	return &lease{
		release: func() {
			once.Do(func() {
				localMu.Lock()
				defer localMu.Unlock()
				if localLocks[key].Equal(deadline) {
					delete(localLocks, key)
				}
			})
		},
		extend: func() bool {
			localMu.Lock()
			defer localMu.Unlock()
			if !localLocks[key].Equal(deadline) {
				return false
			}
			deadline = time.Now().Add(ttl)
			localLocks[key] = deadline
			return true
		},
	}, nil
}
