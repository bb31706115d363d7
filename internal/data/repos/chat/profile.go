package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
	"github.com/fintly/advisor-backend/internal/platform/dbctx"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

type ProfileRepo interface {
	// Get returns the user's profile, creating a default row on first access.
	Get(dbc dbctx.Context, userID uuid.UUID) (*types.InvestorProfile, error)
	UpdateFields(dbc dbctx.Context, userID uuid.UUID, updates map[string]interface{}) error
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, log *logger.Logger) ProfileRepo {
	return &profileRepo{db: db, log: log.With("repo", "ProfileRepo")}
}

func (r *profileRepo) Get(dbc dbctx.Context, userID uuid.UUID) (*types.InvestorProfile, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("missing user_id")
	}
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	var out types.InvestorProfile
	err := txx.WithContext(dbc.Ctx).Where("user_id = ?", userID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		out = types.InvestorProfile{
			UserID:            userID,
			RiskTolerance:     types.RiskModerate,
			InvestmentHorizon: types.HorizonMedium,
		}
		if err := txx.WithContext(dbc.Ctx).Create(&out).Error; err != nil {
			return nil, err
		}
		return &out, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *profileRepo) UpdateFields(dbc dbctx.Context, userID uuid.UUID, updates map[string]interface{}) error {
	if userID == uuid.Nil {
		return fmt.Errorf("missing user_id")
	}
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	txx := dbc.Tx
	if txx == nil {
		txx = r.db
	}
	return txx.WithContext(dbc.Ctx).
		Model(&types.InvestorProfile{}).
		Where("user_id = ?", userID).
		Updates(updates).Error
}
