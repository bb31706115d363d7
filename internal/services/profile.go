package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	chatrepo "github.com/fintly/advisor-backend/internal/data/repos/chat"
	types "github.com/fintly/advisor-backend/internal/domain/chat"
	apperr "github.com/fintly/advisor-backend/internal/pkg/errors"
	"github.com/fintly/advisor-backend/internal/platform/dbctx"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

// ProfileService reads investor profiles and applies confirmed field
// updates. Raw heuristic output never reaches the database without passing
// validation here.
type ProfileService struct {
	log      *logger.Logger
	profiles chatrepo.ProfileRepo
}

func NewProfileService(profiles chatrepo.ProfileRepo, log *logger.Logger) *ProfileService {
	return &ProfileService{
		log:      log.With("service", "ProfileService"),
		profiles: profiles,
	}
}

func (s *ProfileService) Get(dbc dbctx.Context, userID uuid.UUID) (*types.InvestorProfile, error) {
	return s.profiles.Get(dbc, userID)
}

// ApplyConfirmed writes a confirmed update set to the profile. Every field
// name and value is validated; one bad entry rejects the whole set so a
// partial profile never lands.
func (s *ProfileService) ApplyConfirmed(dbc dbctx.Context, userID uuid.UUID, updates map[string]string) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: empty update set", apperr.ErrInvalidArgument)
	}

	columns := make(map[string]interface{}, len(updates))
	for field, value := range updates {
		switch field {
		case types.FieldRiskTolerance:
			v, err := validateEnum(value, types.RiskConservative, types.RiskModerate, types.RiskAggressive)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", apperr.ErrInvalidArgument, field, err)
			}
			columns[field] = v
		case types.FieldInvestmentHorizon:
			v, err := validateEnum(value, types.HorizonShort, types.HorizonMedium, types.HorizonLong)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", apperr.ErrInvalidArgument, field, err)
			}
			columns[field] = v
		case types.FieldMonthlyContribution:
			amount, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil || amount < 0 {
				return fmt.Errorf("%w: %s: not a valid amount", apperr.ErrInvalidArgument, field)
			}
			columns[field] = amount
		default:
			return fmt.Errorf("%w: unknown profile field %q", apperr.ErrInvalidArgument, field)
		}
	}

	if err := s.profiles.UpdateFields(dbc, userID, columns); err != nil {
		return fmt.Errorf("apply profile updates: %w", err)
	}
	s.log.Info("profile updated", "user_id", userID, "fields", len(columns))
	return nil
}

func validateEnum(value string, allowed ...string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("value %q not allowed", value)
}
