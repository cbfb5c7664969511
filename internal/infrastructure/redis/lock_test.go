package redis

import (
	"context"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/onramp/internal/domain/errors"
	"github.com/stretchr/testify/assert"
)

func TestDistributedLock_ExtendWithoutAcquire(t *testing.T) {
	lock := NewDistributedLock(nil, "session:test", time.Minute)

	err := lock.Extend(context.Background(), time.Minute)
	assert.ErrorIs(t, err, domainErrors.ErrLockNotHeld)
}

func TestDistributedLock_ReleaseWithoutAcquireIsNoOp(t *testing.T) {
	lock := NewDistributedLock(nil, "session:test", time.Minute)

	// Release is deferred unconditionally by callers; an unheld lock must not error.
	assert.NoError(t, lock.Release(context.Background()))
	assert.False(t, lock.IsAcquired())
}
