package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
)

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, title string) *types.ChatSession {
	tb.Helper()
	s := &types.ChatSession{
		ID:     uuid.New(),
		UserID: userID,
		Title:  title,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

func SeedMessage(tb testing.TB, ctx context.Context, tx *gorm.DB, sessionID, userID uuid.UUID, seq int64, role, content string, mc *types.MessageContext) *types.ChatMessage {
	tb.Helper()
	m := &types.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		Seq:       seq,
		Role:      role,
		Content:   content,
		Metadata:  mc.ToJSON(),
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed message: %v", err)
	}
	return m
}

func SeedProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID) *types.InvestorProfile {
	tb.Helper()
	p := &types.InvestorProfile{
		UserID:            userID,
		RiskTolerance:     types.RiskModerate,
		InvestmentHorizon: types.HorizonMedium,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}
