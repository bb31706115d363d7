package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	redisclient "github.com/fintly/advisor-backend/internal/clients/redis"
	apperr "github.com/fintly/advisor-backend/internal/pkg/errors"
	"github.com/fintly/advisor-backend/internal/platform/envutil"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

const defaultMonthlyMessageLimit = 200

// QuotaService gates sends on a per-user monthly message budget. The counter
// is consumed optimistically before the send and refunded when the send
// fails before reaching the backend.
type QuotaService struct {
	log   *logger.Logger
	store redisclient.UsageStore
	limit int64
}

type UsageSnapshot struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

func NewQuotaService(store redisclient.UsageStore, log *logger.Logger) *QuotaService {
	return &QuotaService{
		log:   log.With("service", "QuotaService"),
		store: store,
		limit: int64(envutil.Int("CHAT_MONTHLY_MESSAGE_LIMIT", defaultMonthlyMessageLimit)),
	}
}

// Consume claims one message from the user's budget. It returns
// ErrQuotaExceeded once the claim pushes the count past the limit; the
// excess claim is rolled back so the counter stays honest.
func (s *QuotaService) Consume(ctx context.Context, userID uuid.UUID) error {
	n, err := s.store.Consume(ctx, userID)
	if err != nil {
		return fmt.Errorf("consume quota: %w", err)
	}
	if n > s.limit {
		if rerr := s.store.Refund(ctx, userID); rerr != nil {
			s.log.Warn("failed to roll back quota overclaim", "error", rerr, "user_id", userID)
		}
		return apperr.ErrQuotaExceeded
	}
	return nil
}

func (s *QuotaService) Refund(ctx context.Context, userID uuid.UUID) {
	if err := s.store.Refund(ctx, userID); err != nil {
		s.log.Warn("quota refund failed", "error", err, "user_id", userID)
	}
}

func (s *QuotaService) Snapshot(ctx context.Context, userID uuid.UUID) (UsageSnapshot, error) {
	used, err := s.store.Used(ctx, userID)
	if err != nil {
		return UsageSnapshot{}, fmt.Errorf("read usage: %w", err)
	}
	return UsageSnapshot{Used: used, Limit: s.limit}, nil
}
