package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
	apperr "github.com/fintly/advisor-backend/internal/pkg/errors"
	"github.com/fintly/advisor-backend/internal/platform/dbctx"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatMessage, error)
	GetMaxSeq(dbc dbctx.Context, sessionID uuid.UUID) (int64, error)
	// ListBySession returns messages in ascending seq order.
	ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int, beforeSeq *int64) ([]*types.ChatMessage, error)
	UpdateMetadata(dbc dbctx.Context, id uuid.UUID, metadata *types.MessageContext) error
	// CreateExchange writes the user and assistant rows as one atomic pair
	// with consecutive sequence numbers, stamps both with the request id,
	// and bumps the session timestamp.
	CreateExchange(ctx context.Context, userID, sessionID, requestID uuid.UUID, userText, assistantText string, assistantCtx *types.MessageContext) ([]*types.ChatMessage, error)
	// Append writes a single row at the next sequence number.
	Append(ctx context.Context, userID, sessionID uuid.UUID, role, content string, mc *types.MessageContext) (*types.ChatMessage, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, log *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: log.With("repo", "MessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error) {
	if len(rows) == 0 {
		return []*types.ChatMessage{}, nil
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	if err := txx.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *messageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatMessage, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("missing message_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.ChatMessage
	err := txx.WithContext(dbc.Ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *messageRepo) GetMaxSeq(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	if sessionID == uuid.Nil {
		return 0, fmt.Errorf("missing session_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var maxSeq int64
	if err := txx.WithContext(dbc.Ctx).
		Model(&types.ChatMessage{}).
		Select("COALESCE(MAX(seq), 0)").
		Where("session_id = ?", sessionID).
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	return maxSeq, nil
}

func (r *messageRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int, beforeSeq *int64) ([]*types.ChatMessage, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	q := txx.WithContext(dbc.Ctx).
		Model(&types.ChatMessage{}).
		Where("session_id = ?", sessionID)
	if beforeSeq != nil {
		q = q.Where("seq < ?", *beforeSeq)
	}
	var out []*types.ChatMessage
	if err := q.Order("seq DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	// Normalize to ASC for clients.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) CreateExchange(ctx context.Context, userID, sessionID, requestID uuid.UUID, userText, assistantText string, assistantCtx *types.MessageContext) ([]*types.ChatMessage, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	userCtx := &types.MessageContext{}
	if assistantCtx == nil {
		assistantCtx = &types.MessageContext{}
	}
	if requestID != uuid.Nil {
		userCtx.RequestID = requestID.String()
		assistantCtx.RequestID = requestID.String()
	}
	var rows []*types.ChatMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		maxSeq, err := r.GetMaxSeq(dbc, sessionID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		rows = []*types.ChatMessage{
			{
				SessionID: sessionID,
				UserID:    userID,
				Seq:       maxSeq + 1,
				Role:      types.RoleUser,
				Content:   userText,
				Metadata:  userCtx.ToJSON(),
				CreatedAt: now,
			},
			{
				SessionID: sessionID,
				UserID:    userID,
				Seq:       maxSeq + 2,
				Role:      types.RoleAssistant,
				Content:   assistantText,
				Metadata:  assistantCtx.ToJSON(),
				CreatedAt: now,
			},
		}
		if _, err := r.Create(dbc, rows); err != nil {
			return err
		}
		return tx.Model(&types.ChatSession{}).
			Where("id = ?", sessionID).
			Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *messageRepo) Append(ctx context.Context, userID, sessionID uuid.UUID, role, content string, mc *types.MessageContext) (*types.ChatMessage, error) {
	if sessionID == uuid.Nil {
		return nil, fmt.Errorf("missing session_id")
	}
	var row *types.ChatMessage
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		maxSeq, err := r.GetMaxSeq(dbc, sessionID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		row = &types.ChatMessage{
			SessionID: sessionID,
			UserID:    userID,
			Seq:       maxSeq + 1,
			Role:      role,
			Content:   content,
			Metadata:  mc.ToJSON(),
			CreatedAt: now,
		}
		if _, err := r.Create(dbc, []*types.ChatMessage{row}); err != nil {
			return err
		}
		return tx.Model(&types.ChatSession{}).
			Where("id = ?", sessionID).
			Update("updated_at", now).Error
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (r *messageRepo) UpdateMetadata(dbc dbctx.Context, id uuid.UUID, metadata *types.MessageContext) error {
	if id == uuid.Nil {
		return fmt.Errorf("missing message_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	res := txx.WithContext(dbc.Ctx).
		Model(&types.ChatMessage{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"metadata":   metadata.ToJSON(),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
