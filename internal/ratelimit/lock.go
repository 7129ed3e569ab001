package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

var (
	ErrQuoteLockUnavailable = errors.New("quote checkout lock unavailable")
	ErrQuoteLockLost        = errors.New("quote checkout lock expired before release")
)

const keyCheckoutQuoteLock = "checkout:quote:%s"

// Deletes the key only while it still carries the caller's token.
const quoteUnlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// quoteLock keeps a single checkout creation in flight per quote.
type quoteLock struct {
	client redis.Cmdable
	ttl    time.Duration
	unlock *redis.Script
}

func newQuoteLock(client redis.Cmdable, ttl time.Duration) *quoteLock {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &quoteLock{client: client, ttl: ttl, unlock: redis.NewScript(quoteUnlockScript)}
}

func quoteLockKey(quoteID string) string {
	return fmt.Sprintf(keyCheckoutQuoteLock, strings.TrimSpace(quoteID))
}

func (l *quoteLock) acquire(ctx context.Context, quoteID string) (string, bool, error) {
	if l == nil {
		return "", false, ErrQuoteLockUnavailable
	}
	if strings.TrimSpace(quoteID) == "" {
		return "", false, errors.New("quote id is required")
	}
	token := uuid.NewString()
	held, err := l.client.SetNX(ctx, quoteLockKey(quoteID), token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !held {
		return "", false, nil
	}
	return token, true, nil
}

func (l *quoteLock) release(ctx context.Context, quoteID, token string) error {
	if l == nil || token == "" {
		return nil
	}
	removed, err := l.unlock.Run(ctx, l.client, []string{quoteLockKey(quoteID)}, token).Int64()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrQuoteLockLost
	}
	return nil
}
