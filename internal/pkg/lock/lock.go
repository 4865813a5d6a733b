package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrNotAcquired = errors.New("lock not acquired")

// unlockScript releases only if we still hold the lock.
var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// AccountLock serializes writers of a single user record across processes.
// The reconcile worker takes it before applying a webhook transition so a
// retry delivery and a cron rollover cannot interleave on the same account.
type AccountLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewAccountLock(client *redis.Client, ttl time.Duration) *AccountLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &AccountLock{client: client, ttl: ttl}
}

// Acquire polls for the lock until the context expires.
func (l *AccountLock) Acquire(ctx context.Context, userID int64) (func(), error) {
	key := fmt.Sprintf("lock:account:%d", userID)
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			release := func() {
				bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = unlockScript.Run(bg, l.client, []string{key}, token).Err()
			}
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrNotAcquired
		case <-time.After(50 * time.Millisecond):
		}
	}
}
