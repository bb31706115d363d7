package redis

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fintly/advisor-backend/internal/platform/logger"
)

// UsageStore tracks per-user message counts in a calendar-month window.
// It is the backing store for the quota collaborator.
type UsageStore interface {
	// Consume increments the user's counter and returns the new count.
	Consume(ctx context.Context, userID uuid.UUID) (int64, error)
	// Used returns the current count without incrementing.
	Used(ctx context.Context, userID uuid.UUID) (int64, error)
	// Refund decrements the counter after a send that never reached the
	// backend (quota was consumed optimistically).
	Refund(ctx context.Context, userID uuid.UUID) error
	Close() error
}

type usageStore struct {
	log *logger.Logger
	rdb *goredis.Client
}

func NewUsageStore(log *logger.Logger) (UsageStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &usageStore{
		log: log.With("client", "UsageStore"),
		rdb: rdb,
	}, nil
}

func usageKey(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("usage:%s:%s", userID, now.UTC().Format("2006-01"))
}

func (s *usageStore) Consume(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, fmt.Errorf("missing user_id")
	}
	key := usageKey(userID, time.Now())
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n == 1 {
		// Counter keys outlive the month slightly so a late resync still sees them.
		_ = s.rdb.Expire(ctx, key, 40*24*time.Hour).Err()
	}
	return n, nil
}

func (s *usageStore) Used(ctx context.Context, userID uuid.UUID) (int64, error) {
	if userID == uuid.Nil {
		return 0, fmt.Errorf("missing user_id")
	}
	n, err := s.rdb.Get(ctx, usageKey(userID, time.Now())).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *usageStore) Refund(ctx context.Context, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return fmt.Errorf("missing user_id")
	}
	return s.rdb.Decr(ctx, usageKey(userID, time.Now())).Err()
}

func (s *usageStore) Close() error {
	return s.rdb.Close()
}
