package redis

import "context"

// Lock is an exclusive lock around a training run
type Lock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NoopLock always succeeds; used when Redis is disabled
type NoopLock struct{}

// TryAcquire always acquires
func (NoopLock) TryAcquire(context.Context) (bool, error) {
	return true, nil
}

// Release does nothing
func (NoopLock) Release(context.Context) error {
	return nil
}
