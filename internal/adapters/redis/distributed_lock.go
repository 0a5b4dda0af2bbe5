package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amyangfei/redlock-go/v3/redlock"
	"go.uber.org/zap"

	"github.com/selivandex/stock-signal/pkg/logger"
)

// DistributedLock keeps two training runs from writing the same artifact
// directory at once
type DistributedLock struct {
	lockManager *redlock.RedLock
	lockName    string
	ttl         time.Duration

	mu     sync.Mutex
	locked bool
	stop   chan struct{}
}

// NewDistributedLock creates lock for an artifact directory
func NewDistributedLock(lockManager *redlock.RedLock, artifactDir string, ttl time.Duration) *DistributedLock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &DistributedLock{
		lockManager: lockManager,
		lockName:    LockName(artifactDir),
		ttl:         ttl,
	}
}

// LockName is the redis key of the training lock for dir
func LockName(artifactDir string) string {
	return fmt.Sprintf("stock-signal:train:lock:%s", artifactDir)
}

// TryAcquire returns false if another run holds the lock
func (dl *DistributedLock) TryAcquire(ctx context.Context) (bool, error) {
	expiry, err := dl.lockManager.Lock(ctx, dl.lockName, dl.ttl)
	if err != nil {
		logger.Debug("training lock already held", zap.String("lock_name", dl.lockName))
		return false, nil
	}
	if expiry <= 0 {
		return false, fmt.Errorf("failed to acquire lock: invalid expiry %v", expiry)
	}

	dl.mu.Lock()
	dl.locked = true
	dl.stop = make(chan struct{})
	dl.mu.Unlock()

	logger.Info("training lock acquired",
		zap.String("lock_name", dl.lockName),
		zap.Duration("ttl", dl.ttl),
	)

	go dl.renewLock(ctx, dl.stop)

	return true, nil
}

// Release releases the lock; an already expired lock is not an error
func (dl *DistributedLock) Release(ctx context.Context) error {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if !dl.locked {
		return nil
	}
	close(dl.stop)
	dl.locked = false

	if err := dl.lockManager.UnLock(ctx, dl.lockName); err != nil {
		logger.Warn("failed to release training lock (may have already expired)",
			zap.String("lock_name", dl.lockName),
			zap.Error(err),
		)
		return nil
	}

	logger.Info("training lock released", zap.String("lock_name", dl.lockName))
	return nil
}

// renewLock re-acquires the lock at 2/3 of its TTL until released
func (dl *DistributedLock) renewLock(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(dl.ttl * 2 / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			dl.mu.Lock()
			if !dl.locked {
				dl.mu.Unlock()
				return
			}
			// redlock-go has no extend, so renewal is unlock + lock
			_ = dl.lockManager.UnLock(ctx, dl.lockName)
			expiry, err := dl.lockManager.Lock(ctx, dl.lockName, dl.ttl)
			if err != nil || expiry <= 0 {
				logger.Error("training lock lost",
					zap.String("lock_name", dl.lockName),
					zap.Error(err),
				)
				dl.locked = false
				dl.mu.Unlock()
				return
			}
			dl.mu.Unlock()
		}
	}
}
