package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fintly/advisor-backend/internal/clients/search"
	types "github.com/fintly/advisor-backend/internal/domain/chat"
	apperr "github.com/fintly/advisor-backend/internal/pkg/errors"
	"github.com/fintly/advisor-backend/internal/platform/dbctx"
	"github.com/fintly/advisor-backend/internal/sse"
)

type fakeSessionRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.ChatSession
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: make(map[uuid.UUID]*types.ChatSession)}
}

func (f *fakeSessionRepo) Create(dbc dbctx.Context, row *types.ChatSession) (*types.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = time.Now().UTC()
	row.UpdatedAt = row.CreatedAt
	f.rows[row.ID] = row
	return row, nil
}

func (f *fakeSessionRepo) Get(dbc dbctx.Context, userID, sessionID uuid.UUID) (*types.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[sessionID]
	if !ok || row.UserID != userID {
		return nil, apperr.ErrNotFound
	}
	return row, nil
}

func (f *fakeSessionRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.ChatSession
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeSessionRepo) Rename(dbc dbctx.Context, userID, sessionID uuid.UUID, title string) error {
	row, err := f.Get(dbc, userID, sessionID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row.Title = title
	return nil
}

func (f *fakeSessionRepo) SoftDelete(dbc dbctx.Context, userID, sessionID uuid.UUID) error {
	if _, err := f.Get(dbc, userID, sessionID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, sessionID)
	return nil
}

type fakeMessageRepo struct {
	mu   sync.Mutex
	rows []*types.ChatMessage
}

func (f *fakeMessageRepo) Create(dbc dbctx.Context, rows []*types.ChatMessage) ([]*types.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		f.rows = append(f.rows, row)
	}
	return rows, nil
}

func (f *fakeMessageRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakeMessageRepo) GetMaxSeq(dbc dbctx.Context, sessionID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxSeqLocked(sessionID), nil
}

func (f *fakeMessageRepo) maxSeqLocked(sessionID uuid.UUID) int64 {
	var max int64
	for _, row := range f.rows {
		if row.SessionID == sessionID && row.Seq > max {
			max = row.Seq
		}
	}
	return max
}

func (f *fakeMessageRepo) ListBySession(dbc dbctx.Context, sessionID uuid.UUID, limit int, beforeSeq *int64) ([]*types.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.ChatMessage
	for _, row := range f.rows {
		if row.SessionID == sessionID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) UpdateMetadata(dbc dbctx.Context, id uuid.UUID, metadata *types.MessageContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			row.Metadata = metadata.ToJSON()
			return nil
		}
	}
	return apperr.ErrNotFound
}

func (f *fakeMessageRepo) CreateExchange(ctx context.Context, userID, sessionID, requestID uuid.UUID, userText, assistantText string, assistantCtx *types.MessageContext) ([]*types.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userCtx := &types.MessageContext{}
	if assistantCtx == nil {
		assistantCtx = &types.MessageContext{}
	}
	if requestID != uuid.Nil {
		userCtx.RequestID = requestID.String()
		assistantCtx.RequestID = requestID.String()
	}
	maxSeq := f.maxSeqLocked(sessionID)
	now := time.Now().UTC()
	rows := []*types.ChatMessage{
		{ID: uuid.New(), SessionID: sessionID, UserID: userID, Seq: maxSeq + 1, Role: types.RoleUser, Content: userText, Metadata: userCtx.ToJSON(), CreatedAt: now},
		{ID: uuid.New(), SessionID: sessionID, UserID: userID, Seq: maxSeq + 2, Role: types.RoleAssistant, Content: assistantText, Metadata: assistantCtx.ToJSON(), CreatedAt: now},
	}
	f.rows = append(f.rows, rows...)
	return rows, nil
}

func (f *fakeMessageRepo) Append(ctx context.Context, userID, sessionID uuid.UUID, role, content string, mc *types.MessageContext) (*types.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := &types.ChatMessage{
		ID:        uuid.New(),
		SessionID: sessionID,
		UserID:    userID,
		Seq:       f.maxSeqLocked(sessionID) + 1,
		Role:      role,
		Content:   content,
		Metadata:  mc.ToJSON(),
		CreatedAt: time.Now().UTC(),
	}
	f.rows = append(f.rows, row)
	return row, nil
}

type fakeProfileRepo struct {
	mu          sync.Mutex
	profile     types.InvestorProfile
	updateCalls int
	lastUpdate  map[string]interface{}
}

func (f *fakeProfileRepo) Get(dbc dbctx.Context, userID uuid.UUID) (*types.InvestorProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := f.profile
	cp.UserID = userID
	return &cp, nil
}

func (f *fakeProfileRepo) UpdateFields(dbc dbctx.Context, userID uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	f.lastUpdate = updates
	return nil
}

type fakeUsage struct {
	mu    sync.Mutex
	count int64
	err   error
}

func (f *fakeUsage) Consume(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.count++
	return f.count, nil
}

func (f *fakeUsage) Used(ctx context.Context, userID uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count, nil
}

func (f *fakeUsage) Refund(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count--
	return nil
}

func (f *fakeUsage) Close() error { return nil }

type chatFixture struct {
	svc      *ChatService
	sessions *fakeSessionRepo
	messages *fakeMessageRepo
	profiles *fakeProfileRepo
	usage    *fakeUsage
	llm      *fakeLLM
	search   *fakeSearch

	userID    uuid.UUID
	sessionID uuid.UUID
}

func planResponse(schemaName, user string) (map[string]any, error) {
	return map[string]any{
		"primary_intent":           "general_advice",
		"needs_realtime_data":      false,
		"search_query":             "",
		"requires_profile_context": false,
		"reasoning":                "plain question",
	}, nil
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	log := testLogger(t)

	f := &chatFixture{
		sessions: newFakeSessionRepo(),
		messages: &fakeMessageRepo{},
		profiles: &fakeProfileRepo{profile: types.InvestorProfile{
			RiskTolerance:     types.RiskModerate,
			InvestmentHorizon: types.HorizonMedium,
		}},
		usage: &fakeUsage{},
		llm: &fakeLLM{
			jsonFn: planResponse,
			streamChunks: [][]byte{
				[]byte("{\"content\":\"Here is \"}\n"),
				[]byte("{\"content\":\"my answer.\"}\n"),
				[]byte("[DONE]\n"),
			},
		},
		search: &fakeSearch{},
		userID: uuid.New(),
	}

	heuristic, err := NewHeuristicMatcher(log)
	if err != nil {
		t.Fatalf("init heuristic matcher: %v", err)
	}
	reconciler := NewReconciler(NewHistoryLoader(f.messages), log)
	f.svc = NewChatService(ChatServiceDeps{
		Sessions:   f.sessions,
		Messages:   f.messages,
		Profiles:   NewProfileService(f.profiles, log),
		Quota:      NewQuotaService(f.usage, log),
		Heuristic:  heuristic,
		Classifier: NewIntentClassifier(f.llm, log),
		Planner:    NewPlanner(f.llm, log),
		Augmenter:  NewAugmenter(f.search, log),
		LLM:        f.llm,
		Reconciler: reconciler,
		Notifier:   NewNotifier(sse.NewHub(log), nil, log),
	}, log)

	row, err := f.sessions.Create(dbctx.New(context.Background()), &types.ChatSession{UserID: f.userID, Title: "test"})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	f.sessionID = row.ID
	return f
}

func TestSendMessagePersistsOnePair(t *testing.T) {
	f := newChatFixture(t)

	res, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "should I rebalance?")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(f.messages.rows) != 2 {
		t.Fatalf("persisted rows=%d, want exactly 2", len(f.messages.rows))
	}
	userRow, aiRow := f.messages.rows[0], f.messages.rows[1]
	if userRow.Role != types.RoleUser || aiRow.Role != types.RoleAssistant {
		t.Fatalf("roles=%s/%s", userRow.Role, aiRow.Role)
	}
	if aiRow.Seq != userRow.Seq+1 {
		t.Fatalf("seq not consecutive: %d then %d", userRow.Seq, aiRow.Seq)
	}
	if aiRow.Content != "Here is my answer." {
		t.Fatalf("assistant content=%q", aiRow.Content)
	}

	if res.RequestID == uuid.Nil {
		t.Fatal("missing request id")
	}
	if len(res.Messages) != 2 {
		t.Fatalf("view length=%d, want 2", len(res.Messages))
	}
	for _, m := range res.Messages {
		if m.Draft || m.Ephemeral {
			t.Fatalf("uncommitted message in final view: %+v", m)
		}
	}
	if res.Usage.Used != 1 {
		t.Fatalf("usage=%d, want 1", res.Usage.Used)
	}

	// The committed pair stays tied to the send that produced it.
	for _, m := range res.Messages {
		if m.RequestID != res.RequestID {
			t.Fatalf("committed message lost its request id: %+v", m)
		}
	}
	for _, row := range f.messages.rows {
		mc := row.Context()
		if mc == nil || mc.RequestID != res.RequestID.String() {
			t.Fatalf("persisted row %s missing request id", row.Role)
		}
	}
}

func TestSendMessageQuotaExceeded(t *testing.T) {
	f := newChatFixture(t)
	f.usage.count = int64(defaultMonthlyMessageLimit)

	_, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "one more question")
	if !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Fatalf("error=%v, want ErrQuotaExceeded", err)
	}
	if len(f.messages.rows) != 0 {
		t.Fatalf("persisted rows=%d, want 0", len(f.messages.rows))
	}
	if f.llm.streamCalls != 0 {
		t.Fatal("backend must not be called past the quota")
	}
	if f.usage.count != int64(defaultMonthlyMessageLimit) {
		t.Fatalf("counter=%d after rollback, want %d", f.usage.count, defaultMonthlyMessageLimit)
	}
}

func TestSendMessageStreamErrorRollsBack(t *testing.T) {
	f := newChatFixture(t)
	f.llm.streamChunks = [][]byte{
		[]byte("{\"content\":\"partial\"}\n"),
		[]byte("{\"error\":\"model overloaded\"}\n"),
	}

	_, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "doomed")
	if !errors.Is(err, apperr.ErrStreamTransport) {
		t.Fatalf("error=%v, want ErrStreamTransport", err)
	}
	if len(f.messages.rows) != 0 {
		t.Fatalf("persisted rows=%d, want 0", len(f.messages.rows))
	}
	view, lerr := f.svc.ListMessages(context.Background(), f.userID, f.sessionID)
	if lerr != nil {
		t.Fatalf("ListMessages: %v", lerr)
	}
	for _, m := range view {
		if m.Draft {
			t.Fatalf("draft survived failed send: %+v", m)
		}
	}
}

func TestSendMessageHeuristicProposal(t *testing.T) {
	f := newChatFixture(t)

	res, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "please lower my risk tolerance")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	var proposal *types.Message
	for i := range res.Messages {
		if res.Messages[i].Ephemeral {
			proposal = &res.Messages[i]
		}
	}
	if proposal == nil {
		t.Fatalf("no ephemeral proposal in view: %+v", res.Messages)
	}
	if proposal.Context == nil || !proposal.Context.RequiresConfirmation {
		t.Fatalf("proposal context=%+v", proposal.Context)
	}
	if got := proposal.Context.ProfileUpdates[types.FieldRiskTolerance]; got != types.RiskConservative {
		t.Fatalf("proposed risk=%q, want %q", got, types.RiskConservative)
	}
	if f.profiles.updateCalls != 0 {
		t.Fatal("profile mutated without confirmation")
	}

	// Accepting applies exactly one mutation and clears the flag.
	if err := f.svc.ResolveConfirmation(context.Background(), f.userID, f.sessionID, proposal.ID, true); err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if f.profiles.updateCalls != 1 {
		t.Fatalf("profile update calls=%d, want exactly 1", f.profiles.updateCalls)
	}
	if f.profiles.lastUpdate[types.FieldRiskTolerance] != types.RiskConservative {
		t.Fatalf("applied update=%+v", f.profiles.lastUpdate)
	}

	// The accepted change is recorded in the transcript.
	last := f.messages.rows[len(f.messages.rows)-1]
	if last.Role != types.RoleAssistant || !strings.Contains(last.Content, "Profile updated") {
		t.Fatalf("confirmation message not appended, last row=%q %q", last.Role, last.Content)
	}

	// A second accept must not fire a second mutation.
	if err := f.svc.ResolveConfirmation(context.Background(), f.userID, f.sessionID, proposal.ID, true); err == nil {
		t.Fatal("re-accepting a resolved proposal should fail")
	}
	if f.profiles.updateCalls != 1 {
		t.Fatalf("profile update calls=%d after re-accept, want 1", f.profiles.updateCalls)
	}
}

func TestSendMessageSuppressesDetectionWhilePending(t *testing.T) {
	f := newChatFixture(t)

	res, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "please lower my risk tolerance")
	if err != nil {
		t.Fatalf("first send: %v", err)
	}
	var first string
	for _, m := range res.Messages {
		if m.Ephemeral {
			first = m.ID
		}
	}
	if first == "" {
		t.Fatal("expected a proposal from the first send")
	}

	res, err = f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "actually raise my risk tolerance")
	if err != nil {
		t.Fatalf("second send: %v", err)
	}
	var proposals int
	for _, m := range res.Messages {
		if m.Ephemeral {
			proposals++
		}
	}
	if proposals != 1 {
		t.Fatalf("proposals=%d, want 1 (new detection suppressed while pending)", proposals)
	}
}

func TestSendMessagePersistsSideChannelProposal(t *testing.T) {
	f := newChatFixture(t)
	f.llm.streamChunks = [][]byte{
		[]byte("{\"content\":\"I can set that for you.\"}\n"),
		[]byte("{\"profile_update\":{\"updates\":{\"investment_horizon\":\"long\"},\"summary\":\"Set investment horizon to long\"},\"requires_confirmation\":true}\n"),
		[]byte("[DONE]\n"),
	}

	_, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "plan for my retirement in 30 years")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	aiRow := f.messages.rows[len(f.messages.rows)-1]
	mc := aiRow.Context()
	if mc == nil || !mc.RequiresConfirmation {
		t.Fatalf("assistant metadata=%+v", mc)
	}
	if mc.ProfileUpdates[types.FieldInvestmentHorizon] != types.HorizonLong {
		t.Fatalf("persisted updates=%+v", mc.ProfileUpdates)
	}

	// The persisted row id resolves through the committed path.
	if err := f.svc.ResolveConfirmation(context.Background(), f.userID, f.sessionID, aiRow.ID.String(), true); err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if f.profiles.updateCalls != 1 {
		t.Fatalf("profile update calls=%d, want 1", f.profiles.updateCalls)
	}
	cleared, err := f.messages.GetByID(dbctx.New(context.Background()), aiRow.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got := cleared.Context(); got != nil && got.RequiresConfirmation {
		t.Fatal("confirmation flag not cleared on the persisted row")
	}
	last := f.messages.rows[len(f.messages.rows)-1]
	if last.Role != types.RoleAssistant || !strings.Contains(last.Content, "Set investment horizon to long") {
		t.Fatalf("confirmation message not appended, last row=%q", last.Content)
	}
}

func TestResolveConfirmationDismissOnlyClearsFlag(t *testing.T) {
	f := newChatFixture(t)

	res, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "please lower my risk tolerance")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	var proposalID string
	for _, m := range res.Messages {
		if m.Ephemeral {
			proposalID = m.ID
		}
	}
	if proposalID == "" {
		t.Fatal("no proposal to dismiss")
	}
	persisted := len(f.messages.rows)

	if err := f.svc.ResolveConfirmation(context.Background(), f.userID, f.sessionID, proposalID, false); err != nil {
		t.Fatalf("ResolveConfirmation: %v", err)
	}
	if f.profiles.updateCalls != 0 {
		t.Fatalf("profile mutated on dismiss: %d calls", f.profiles.updateCalls)
	}
	if len(f.messages.rows) != persisted {
		t.Fatalf("dismiss appended a message: rows=%d, want %d", len(f.messages.rows), persisted)
	}
}

func TestSendMessageRealtimeAugmentation(t *testing.T) {
	f := newChatFixture(t)
	f.llm.jsonFn = func(schemaName, user string) (map[string]any, error) {
		if schemaName != "conversation_plan" {
			return planResponse(schemaName, user)
		}
		return map[string]any{
			"primary_intent":           "news_update",
			"needs_realtime_data":      true,
			"search_query":             "semiconductor sector today",
			"search_topic":             "news",
			"search_depth":             "advanced",
			"requires_profile_context": false,
			"reasoning":                "current news requested",
		}, nil
	}
	f.search.resp = &search.Response{Results: []search.Result{{
		Title:         "Chip stocks rally on export news",
		Content:       "Semiconductor names moved sharply higher after the announcement.",
		URL:           "https://news.example.com/chips",
		PublishedDate: time.Now().Add(-time.Hour).Format(time.RFC3339),
	}}}

	_, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "what happened to chip stocks today?")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if len(f.search.calls) != 1 {
		t.Fatalf("search calls=%d, want 1", len(f.search.calls))
	}
	aiRow := f.messages.rows[len(f.messages.rows)-1]
	mc := aiRow.Context()
	if mc == nil || len(mc.References) == 0 {
		t.Fatalf("references missing from persisted metadata: %+v", mc)
	}
}

func TestSendMessageClassifierRescuesFallbackPlan(t *testing.T) {
	f := newChatFixture(t)
	f.llm.jsonFn = func(schemaName, user string) (map[string]any, error) {
		if schemaName == "conversation_plan" {
			return nil, errors.New("planner unavailable")
		}
		return map[string]any{
			"intents":  []any{"market_analysis", "stock_analysis"},
			"entities": []any{"NVDA"},
			"language": "en",
		}, nil
	}

	_, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "how is the market treating NVDA?")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	aiRow := f.messages.rows[len(f.messages.rows)-1]
	mc := aiRow.Context()
	if mc == nil || mc.AnalysisType != string(types.IntentMarketAnalysis) {
		t.Fatalf("analysis type=%+v, want classifier's top intent to replace the fallback", mc)
	}
}

func TestSendMessageDetectedLanguageReachesPrompt(t *testing.T) {
	f := newChatFixture(t)
	f.llm.jsonFn = func(schemaName, user string) (map[string]any, error) {
		if schemaName == "intent_detection" {
			return map[string]any{
				"intents":  []any{"general_advice"},
				"entities": []any{},
				"language": "es",
			}, nil
		}
		return planResponse(schemaName, user)
	}

	_, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "¿debería diversificar mi cartera?")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if len(f.llm.streamReqs) != 1 {
		t.Fatalf("stream calls=%d, want 1", len(f.llm.streamReqs))
	}
	if sys := f.llm.streamReqs[0].System; !strings.Contains(sys, `"es"`) {
		t.Fatalf("detected language missing from system prompt: %q", sys)
	}
}

func TestDeleteSessionEvictsState(t *testing.T) {
	f := newChatFixture(t)

	if _, err := f.svc.SendMessage(context.Background(), f.userID, f.sessionID, "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if err := f.svc.DeleteSession(context.Background(), f.userID, f.sessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := f.svc.ListMessages(context.Background(), f.userID, f.sessionID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("error=%v, want ErrNotFound after delete", err)
	}
}
