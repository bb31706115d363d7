package chat

import (
	"time"

	"github.com/google/uuid"
)

// Profile field names accepted by the heuristic matcher and the
// confirmation flow. Anything else is rejected at the service boundary.
const (
	FieldRiskTolerance       = "risk_tolerance"
	FieldInvestmentHorizon   = "investment_horizon"
	FieldMonthlyContribution = "monthly_contribution"
)

const (
	RiskConservative = "conservative"
	RiskModerate     = "moderate"
	RiskAggressive   = "aggressive"

	HorizonShort  = "short"
	HorizonMedium = "medium"
	HorizonLong   = "long"
)

type InvestorProfile struct {
	UserID uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`

	RiskTolerance       string  `gorm:"column:risk_tolerance;not null;default:'moderate'" json:"risk_tolerance"`
	InvestmentHorizon   string  `gorm:"column:investment_horizon;not null;default:'medium'" json:"investment_horizon"`
	MonthlyContribution float64 `gorm:"column:monthly_contribution;not null;default:0" json:"monthly_contribution"`

	HasPortfolio         bool `gorm:"column:has_portfolio;not null;default:false" json:"has_portfolio"`
	HasUploadedDocuments bool `gorm:"column:has_uploaded_documents;not null;default:false" json:"has_uploaded_documents"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (InvestorProfile) TableName() string { return "investor_profile" }
