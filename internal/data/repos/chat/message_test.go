package chat

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/fintly/advisor-backend/internal/data/repos/testutil"
	types "github.com/fintly/advisor-backend/internal/domain/chat"
	"github.com/fintly/advisor-backend/internal/platform/dbctx"
)

func TestMessageRepoSeqAndListOrder(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	ctx := context.Background()
	repo := NewMessageRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	userID := uuid.New()
	s := testutil.SeedSession(t, ctx, tx, userID, "ordering")
	for i := int64(1); i <= 5; i++ {
		role := types.RoleUser
		if i%2 == 0 {
			role = types.RoleAssistant
		}
		testutil.SeedMessage(t, ctx, tx, s.ID, userID, i, role, "msg", nil)
	}

	maxSeq, err := repo.GetMaxSeq(dbc, s.ID)
	if err != nil {
		t.Fatalf("GetMaxSeq: %v", err)
	}
	if maxSeq != 5 {
		t.Fatalf("maxSeq=%d, want 5", maxSeq)
	}

	// A bounded list returns the newest rows but in ascending order.
	rows, err := repo.ListBySession(dbc, s.ID, 3, nil)
	if err != nil {
		t.Fatalf("ListBySession: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want 3", len(rows))
	}
	if rows[0].Seq != 3 || rows[2].Seq != 5 {
		t.Fatalf("seqs=%d..%d, want 3..5 ascending", rows[0].Seq, rows[2].Seq)
	}

	before := int64(3)
	rows, err = repo.ListBySession(dbc, s.ID, 10, &before)
	if err != nil {
		t.Fatalf("ListBySession before: %v", err)
	}
	if len(rows) != 2 || rows[1].Seq != 2 {
		t.Fatalf("paged rows=%d (last seq %d), want 2 ending at seq 2", len(rows), rows[len(rows)-1].Seq)
	}
}

func TestMessageRepoMetadataRoundTrip(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	log := testutil.Logger(t)
	ctx := context.Background()
	repo := NewMessageRepo(db, log)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	userID := uuid.New()
	s := testutil.SeedSession(t, ctx, tx, userID, "metadata")
	m := testutil.SeedMessage(t, ctx, tx, s.ID, userID, 1, types.RoleAssistant, "proposal", &types.MessageContext{
		AnalysisType:         "profile_update",
		ProfileUpdates:       map[string]string{types.FieldRiskTolerance: types.RiskAggressive},
		RequiresConfirmation: true,
	})

	got, err := repo.GetByID(dbc, m.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	mc := got.Context()
	if mc == nil || !mc.RequiresConfirmation {
		t.Fatalf("context=%+v", mc)
	}

	mc.RequiresConfirmation = false
	if err := repo.UpdateMetadata(dbc, m.ID, mc); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	got, err = repo.GetByID(dbc, m.ID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if updated := got.Context(); updated == nil || updated.RequiresConfirmation {
		t.Fatalf("flag not cleared: %+v", updated)
	}
}

func TestMessageRepoCreateExchange(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	repo := NewMessageRepo(db, log)

	// CreateExchange opens its own transaction, so this test writes real
	// rows and cleans up after itself.
	userID := uuid.New()
	s := &types.ChatSession{ID: uuid.New(), UserID: userID, Title: "exchange"}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	t.Cleanup(func() {
		db.Unscoped().Where("session_id = ?", s.ID).Delete(&types.ChatMessage{})
		db.Unscoped().Where("id = ?", s.ID).Delete(&types.ChatSession{})
	})

	requestID := uuid.New()
	rows, err := repo.CreateExchange(ctx, userID, s.ID, requestID, "question", "answer", &types.MessageContext{AnalysisType: "general_advice"})
	if err != nil {
		t.Fatalf("CreateExchange: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(rows))
	}
	if rows[0].Seq != 1 || rows[1].Seq != 2 {
		t.Fatalf("seqs=%d,%d, want 1,2", rows[0].Seq, rows[1].Seq)
	}
	if rows[0].Role != types.RoleUser || rows[1].Role != types.RoleAssistant {
		t.Fatalf("roles=%s,%s", rows[0].Role, rows[1].Role)
	}

	// Both rows of the pair stay tied to the send that produced them.
	for _, row := range rows {
		got, err := repo.GetByID(dbctx.Context{Ctx: ctx}, row.ID)
		if err != nil {
			t.Fatalf("GetByID %s: %v", row.Role, err)
		}
		mc := got.Context()
		if mc == nil || mc.RequestID != requestID.String() {
			t.Fatalf("%s row lost its request id: %+v", row.Role, mc)
		}
	}
}

func TestMessageRepoAppend(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	ctx := context.Background()
	repo := NewMessageRepo(db, log)

	// Append opens its own transaction, so this test writes real rows and
	// cleans up after itself.
	userID := uuid.New()
	s := &types.ChatSession{ID: uuid.New(), UserID: userID, Title: "append"}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	t.Cleanup(func() {
		db.Unscoped().Where("session_id = ?", s.ID).Delete(&types.ChatMessage{})
		db.Unscoped().Where("id = ?", s.ID).Delete(&types.ChatSession{})
	})

	if _, err := repo.CreateExchange(ctx, userID, s.ID, uuid.New(), "q", "a", nil); err != nil {
		t.Fatalf("CreateExchange: %v", err)
	}
	row, err := repo.Append(ctx, userID, s.ID, types.RoleAssistant, "Profile updated: risk set to moderate", &types.MessageContext{
		AnalysisType: "profile_update_applied",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if row.Seq != 3 {
		t.Fatalf("seq=%d, want 3", row.Seq)
	}
	if row.Role != types.RoleAssistant {
		t.Fatalf("role=%s", row.Role)
	}
}
