package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/fintly/advisor-backend/internal/data/repos/testutil"
	types "github.com/fintly/advisor-backend/internal/domain/chat"
	"github.com/fintly/advisor-backend/internal/platform/dbctx"
)

func TestProfileRepoCreatesDefaultOnFirstGet(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repo := NewProfileRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	userID := uuid.New()
	p, err := repo.Get(dbc, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.RiskTolerance != types.RiskModerate || p.InvestmentHorizon != types.HorizonMedium {
		t.Fatalf("defaults=%s/%s", p.RiskTolerance, p.InvestmentHorizon)
	}

	// Second read returns the same row, not a new one.
	again, err := repo.Get(dbc, userID)
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if !again.CreatedAt.Equal(p.CreatedAt) {
		t.Fatal("second get created a new row")
	}
}

func TestProfileRepoUpdateFields(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	repo := NewProfileRepo(db, log)
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	userID := uuid.New()
	testutil.SeedProfile(t, context.Background(), tx, userID)

	err := repo.UpdateFields(dbc, userID, map[string]interface{}{
		types.FieldRiskTolerance:       types.RiskAggressive,
		types.FieldMonthlyContribution: 5000.0,
	})
	if err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	p, err := repo.Get(dbc, userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.RiskTolerance != types.RiskAggressive {
		t.Fatalf("risk=%q", p.RiskTolerance)
	}
	if p.MonthlyContribution != 5000 {
		t.Fatalf("contribution=%f", p.MonthlyContribution)
	}
}
