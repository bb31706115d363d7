package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fintly/advisor-backend/internal/clients/openai"
	chatrepo "github.com/fintly/advisor-backend/internal/data/repos/chat"
	types "github.com/fintly/advisor-backend/internal/domain/chat"
	apperr "github.com/fintly/advisor-backend/internal/pkg/errors"
	"github.com/fintly/advisor-backend/internal/platform/dbctx"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

const (
	// History turns handed to the planner and the streaming backend.
	historyTurnLimit = 12
	viewHistoryLimit = 100
)

const chatSystemPrompt = `You are a careful financial assistant. Ground every
claim in the provided context when present, cite nothing you were not given,
and never present speculation as fact. Keep answers concise and in the
user's language.`

// SendResult is the terminal outcome of one send.
type SendResult struct {
	RequestID uuid.UUID       `json:"request_id"`
	Messages  []types.Message `json:"messages"`
	Usage     UsageSnapshot   `json:"usage"`
}

// ChatService orchestrates one send end to end: quota claim, draft
// registration, parallel heuristic and planner passes, realtime
// augmentation, the streamed completion, and final persistence.
type ChatService struct {
	log        *logger.Logger
	sessions   chatrepo.SessionRepo
	messages   chatrepo.MessageRepo
	profiles   *ProfileService
	quota      *QuotaService
	heuristic  *HeuristicMatcher
	classifier *IntentClassifier
	planner    *Planner
	augmenter  *Augmenter
	llm        openai.Client
	reconciler *Reconciler
	notifier   *Notifier
}

type ChatServiceDeps struct {
	Sessions   chatrepo.SessionRepo
	Messages   chatrepo.MessageRepo
	Profiles   *ProfileService
	Quota      *QuotaService
	Heuristic  *HeuristicMatcher
	Classifier *IntentClassifier
	Planner    *Planner
	Augmenter  *Augmenter
	LLM        openai.Client
	Reconciler *Reconciler
	Notifier   *Notifier
}

func NewChatService(deps ChatServiceDeps, log *logger.Logger) *ChatService {
	return &ChatService{
		log:        log.With("service", "ChatService"),
		sessions:   deps.Sessions,
		messages:   deps.Messages,
		profiles:   deps.Profiles,
		quota:      deps.Quota,
		heuristic:  deps.Heuristic,
		classifier: deps.Classifier,
		planner:    deps.Planner,
		augmenter:  deps.Augmenter,
		llm:        deps.LLM,
		reconciler: deps.Reconciler,
		notifier:   deps.Notifier,
	}
}

// HistoryLoader adapts the message repo to the reconciler's loader contract.
type HistoryLoader struct {
	messages chatrepo.MessageRepo
}

func NewHistoryLoader(messages chatrepo.MessageRepo) *HistoryLoader {
	return &HistoryLoader{messages: messages}
}

func (l *HistoryLoader) LoadMessages(ctx context.Context, sessionID uuid.UUID) ([]types.Message, error) {
	rows, err := l.messages.ListBySession(dbctx.New(ctx), sessionID, viewHistoryLimit, nil)
	if err != nil {
		return nil, err
	}
	out := make([]types.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.ViewFromRow(row))
	}
	return out, nil
}

// SendMessage runs the full pipeline for one user utterance. A quota denial
// returns before anything is registered or persisted; any failure after the
// backend call rolls the draft pair back and reports over the notifier.
func (s *ChatService) SendMessage(ctx context.Context, userID, sessionID uuid.UUID, text string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty message", apperr.ErrInvalidArgument)
	}

	dbc := dbctx.New(ctx)
	if _, err := s.sessions.Get(dbc, userID, sessionID); err != nil {
		return nil, err
	}

	if err := s.quota.Consume(ctx, userID); err != nil {
		return nil, err
	}

	profile, err := s.profiles.Get(dbc, userID)
	if err != nil {
		s.quota.Refund(ctx, userID)
		return nil, fmt.Errorf("load profile: %w", err)
	}
	history, err := s.recentTurns(dbc, sessionID)
	if err != nil {
		s.quota.Refund(ctx, userID)
		return nil, fmt.Errorf("load history: %w", err)
	}

	confirmationPending := s.reconciler.HasPendingConfirmation(sessionID)
	state := s.reconciler.BeginSend(userID, sessionID, text)
	requestID := state.RequestID

	// The heuristic pass and the planner round trip are independent; run
	// them concurrently. Neither is allowed to fail the send.
	var detection *types.ProfileUpdateIntent
	var plan types.ConversationPlan
	var classified *types.IntentDetectionResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if confirmationPending {
			// A proposal is already awaiting an answer; never stack another.
			return nil
		}
		detection = s.heuristic.Detect(text)
		return nil
	})
	g.Go(func() error {
		plan = s.planner.Plan(gctx, PlanInput{
			Utterance:            text,
			History:              history,
			HasPortfolio:         profile.HasPortfolio,
			HasUploadedDocuments: profile.HasUploadedDocuments,
		})
		if s.classifier != nil {
			classified = s.classifier.Classify(gctx, text)
		}
		return nil
	})
	_ = g.Wait()
	plan = mergeClassification(plan, classified)

	if detection != nil {
		if s.reconciler.AttachDetection(sessionID, requestID, detection) {
			if p := s.reconciler.Pending(sessionID); p != nil && p.DetectionMessage != nil {
				s.notifier.ConfirmationProposed(ctx, sessionID, *p.DetectionMessage)
			}
		}
	}

	augmented := s.augmenter.Augment(ctx, plan)

	consumer := NewStreamConsumer(func(accumulated string) {
		if s.reconciler.ApplyStreamUpdate(userID, sessionID, requestID, accumulated) {
			s.notifier.MessageDelta(ctx, sessionID, requestID, accumulated)
		}
	})
	req := openai.ChatRequest{
		System:  s.systemPrompt(plan, profile, classified),
		History: history,
		User:    text,
		Context: augmented.ContextBlock,
	}
	streamErr := s.llm.StreamChat(ctx, req, consumer.Feed)
	result, finishErr := consumer.Finish()

	if streamErr != nil || finishErr != nil || result.Content == "" {
		err := streamErr
		if err == nil {
			err = finishErr
		}
		if err == nil {
			err = fmt.Errorf("%w: empty completion", apperr.ErrStreamTransport)
		}
		s.failSend(ctx, sessionID, requestID, err)
		return nil, err
	}
	if !result.Completed {
		s.log.Warn("stream ended without sentinel; keeping partial content",
			"session_id", sessionID, "request_id", requestID)
	}

	if err := s.persistExchange(ctx, userID, sessionID, requestID, text, result, plan, augmented); err != nil {
		s.failSend(ctx, sessionID, requestID, err)
		return nil, fmt.Errorf("persist exchange: %w", err)
	}

	view, err := s.reconciler.CompleteSend(ctx, sessionID, requestID)
	if err != nil {
		return nil, err
	}
	s.notifier.MessageDone(ctx, sessionID, requestID, view)

	usage, _ := s.quota.Snapshot(ctx, userID)
	return &SendResult{RequestID: requestID, Messages: view, Usage: usage}, nil
}

func (s *ChatService) failSend(ctx context.Context, sessionID, requestID uuid.UUID, err error) {
	s.log.Error("send failed", "error", err, "session_id", sessionID, "request_id", requestID)
	s.reconciler.FailSend(sessionID, requestID)
	s.notifier.MessageError(ctx, sessionID, requestID, "assistant reply failed")
}

// mergeClassification folds classifier output into the plan: detected
// entities fill an empty list, and a fallback plan adopts the classifier's
// ranked intents instead of defaulting to general advice.
func mergeClassification(plan types.ConversationPlan, det *types.IntentDetectionResult) types.ConversationPlan {
	if det == nil {
		return plan
	}
	if len(plan.DetectedEntities) == 0 {
		plan.DetectedEntities = det.Entities
	}
	if plan.IsFallback() && len(det.Intents) > 0 {
		plan.PrimaryIntent = det.Intents[0]
		plan.SecondaryIntents = append([]types.Intent(nil), det.Intents[1:]...)
	}
	return plan
}

func (s *ChatService) systemPrompt(plan types.ConversationPlan, profile *types.InvestorProfile, det *types.IntentDetectionResult) string {
	var b strings.Builder
	b.WriteString(chatSystemPrompt)
	if det != nil && det.Language != "" && det.Language != "en" {
		fmt.Fprintf(&b, "\n\nRespond in the user's language (ISO 639-1 code %q).", det.Language)
	}
	if plan.RequiresProfileContext && profile != nil {
		b.WriteString("\n\nInvestor profile: risk tolerance ")
		b.WriteString(profile.RiskTolerance)
		b.WriteString(", investment horizon ")
		b.WriteString(profile.InvestmentHorizon)
		if profile.MonthlyContribution > 0 {
			fmt.Fprintf(&b, ", monthly contribution %.0f", profile.MonthlyContribution)
		}
		b.WriteString(".")
	}
	return b.String()
}

func (s *ChatService) recentTurns(dbc dbctx.Context, sessionID uuid.UUID) ([]openai.ChatTurn, error) {
	rows, err := s.messages.ListBySession(dbc, sessionID, historyTurnLimit, nil)
	if err != nil {
		return nil, err
	}
	turns := make([]openai.ChatTurn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, openai.ChatTurn{Role: row.Role, Content: row.Content})
	}
	return turns, nil
}

func (s *ChatService) persistExchange(ctx context.Context, userID, sessionID, requestID uuid.UUID, userText string, result StreamResult, plan types.ConversationPlan, augmented AugmentedContext) error {
	assistantCtx := &types.MessageContext{
		AnalysisType: string(plan.PrimaryIntent),
		References:   augmented.References,
	}
	if result.ProfileUpdate != nil {
		assistantCtx.ProfileUpdates = result.ProfileUpdate.Updates
		assistantCtx.UpdateSummary = result.ProfileUpdate.Summary
		assistantCtx.RequiresConfirmation = result.RequiresConfirmation
	}
	_, err := s.messages.CreateExchange(ctx, userID, sessionID, requestID, userText, result.Content, assistantCtx)
	return err
}

// ListMessages returns the reconciled view for a session the user owns.
func (s *ChatService) ListMessages(ctx context.Context, userID, sessionID uuid.UUID) ([]types.Message, error) {
	if _, err := s.sessions.Get(dbctx.New(ctx), userID, sessionID); err != nil {
		return nil, err
	}
	return s.reconciler.LoadMessages(ctx, sessionID)
}

// ListMessagesPage returns a raw persisted page, newest-bounded by seq, for
// clients scrolling back past the reconciled window.
func (s *ChatService) ListMessagesPage(ctx context.Context, userID, sessionID uuid.UUID, limit int, beforeSeq *int64) ([]types.Message, error) {
	dbc := dbctx.New(ctx)
	if _, err := s.sessions.Get(dbc, userID, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.messages.ListBySession(dbc, sessionID, limit, beforeSeq)
	if err != nil {
		return nil, err
	}
	out := make([]types.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.ViewFromRow(row))
	}
	return out, nil
}

// OpenSession makes the session active and returns its reconciled view.
func (s *ChatService) OpenSession(ctx context.Context, userID, sessionID uuid.UUID) ([]types.Message, error) {
	if _, err := s.sessions.Get(dbctx.New(ctx), userID, sessionID); err != nil {
		return nil, err
	}
	return s.reconciler.SwitchSession(ctx, userID, sessionID)
}

func (s *ChatService) CreateSession(ctx context.Context, userID uuid.UUID, title string) (*types.ChatSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New conversation"
	}
	return s.sessions.Create(dbctx.New(ctx), &types.ChatSession{
		UserID: userID,
		Title:  title,
	})
}

func (s *ChatService) ListSessions(ctx context.Context, userID uuid.UUID, limit int) ([]*types.ChatSession, error) {
	return s.sessions.ListByUser(dbctx.New(ctx), userID, limit)
}

func (s *ChatService) RenameSession(ctx context.Context, userID, sessionID uuid.UUID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: empty title", apperr.ErrInvalidArgument)
	}
	return s.sessions.Rename(dbctx.New(ctx), userID, sessionID, title)
}

// DeleteSession removes the session with its messages and drops all
// reconciler state, so frames from any in-flight send land nowhere.
func (s *ChatService) DeleteSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	if err := s.sessions.SoftDelete(dbctx.New(ctx), userID, sessionID); err != nil {
		return err
	}
	s.reconciler.EvictSession(sessionID)
	s.notifier.SessionDeleted(ctx, sessionID)
	return nil
}

// ResolveConfirmation accepts or dismisses a pending profile-change
// proposal. Accepting applies exactly one profile mutation and appends a
// confirmation message to the transcript; dismissing only clears the flag.
// Either way the proposal cannot fire twice.
func (s *ChatService) ResolveConfirmation(ctx context.Context, userID, sessionID uuid.UUID, messageID string, accept bool) error {
	dbc := dbctx.New(ctx)
	if _, err := s.sessions.Get(dbc, userID, sessionID); err != nil {
		return err
	}

	if rowID, err := uuid.Parse(messageID); err == nil {
		if err := s.resolvePersisted(dbc, userID, rowID, accept, sessionID); err != nil {
			return err
		}
	} else if err := s.resolveEphemeral(dbc, userID, sessionID, messageID, accept); err != nil {
		return err
	}

	// Other connected clients see the resolved state without polling.
	if view, err := s.reconciler.LoadMessages(ctx, sessionID); err == nil {
		s.notifier.MessageDone(ctx, sessionID, uuid.Nil, view)
	}
	return nil
}

func (s *ChatService) resolvePersisted(dbc dbctx.Context, userID, rowID uuid.UUID, accept bool, sessionID uuid.UUID) error {
	row, err := s.messages.GetByID(dbc, rowID)
	if err != nil {
		return err
	}
	mc := row.Context()
	if mc == nil || !mc.RequiresConfirmation {
		return fmt.Errorf("%w: message has no pending confirmation", apperr.ErrInvalidArgument)
	}
	if accept {
		if err := s.profiles.ApplyConfirmed(dbc, userID, mc.ProfileUpdates); err != nil {
			return err
		}
	}
	mc.RequiresConfirmation = false
	if err := s.messages.UpdateMetadata(dbc, rowID, mc); err != nil {
		return err
	}
	s.reconciler.ResolveConfirmation(sessionID, rowID.String())
	if accept {
		s.appendConfirmation(dbc.Ctx, userID, sessionID, mc.UpdateSummary)
	}
	return nil
}

func (s *ChatService) resolveEphemeral(dbc dbctx.Context, userID, sessionID uuid.UUID, messageID string, accept bool) error {
	proposal, ok := s.reconciler.EphemeralMessage(sessionID, messageID)
	if !ok || proposal.Context == nil || !proposal.Context.RequiresConfirmation {
		return fmt.Errorf("%w: unknown proposal", apperr.ErrNotFound)
	}
	if accept {
		if err := s.profiles.ApplyConfirmed(dbc, userID, proposal.Context.ProfileUpdates); err != nil {
			return err
		}
	}
	s.reconciler.ResolveConfirmation(sessionID, messageID)
	if accept {
		s.appendConfirmation(dbc.Ctx, userID, sessionID, proposal.Context.UpdateSummary)
	}
	return nil
}

// appendConfirmation records the applied change in the transcript. The
// mutation already landed, so a failed append is logged rather than surfaced:
// failing here would invite a second accept that can no longer succeed.
func (s *ChatService) appendConfirmation(ctx context.Context, userID, sessionID uuid.UUID, summary string) {
	content := "Your investor profile has been updated."
	if summary != "" {
		content = "Profile updated: " + summary
	}
	mc := &types.MessageContext{AnalysisType: "profile_update_applied", UpdateSummary: summary}
	if _, err := s.messages.Append(ctx, userID, sessionID, types.RoleAssistant, content, mc); err != nil {
		s.log.Error("append confirmation message failed", "error", err, "session_id", sessionID)
	}
}
