package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/fintly/advisor-backend/internal/domain/chat"
	"github.com/fintly/advisor-backend/internal/platform/logger"
)

// defaultPendingCap bounds the pending-state cache; the oldest entry is
// evicted when a new session would exceed it.
const defaultPendingCap = 64

// PendingState tracks one in-flight send for a session. At most one live
// PendingState exists per session id; a fresh send replaces it wholesale.
type PendingState struct {
	RequestID        uuid.UUID
	UserMessage      types.Message
	DetectionMessage *types.Message
	AIMessage        *types.Message
	StartedAt        time.Time
}

func (p *PendingState) messages() []types.Message {
	out := []types.Message{p.UserMessage}
	if p.DetectionMessage != nil {
		out = append(out, *p.DetectionMessage)
	}
	if p.AIMessage != nil {
		out = append(out, *p.AIMessage)
	}
	return out
}

// MessageLoader abstracts persisted history access so the reconciler stays
// independent of the storage layer.
type MessageLoader interface {
	LoadMessages(ctx context.Context, sessionID uuid.UUID) ([]types.Message, error)
}

// Reconciler owns, per session, the displayed message list, the pending
// send state, and the set of unconfirmed ephemeral proposals. Every view
// mutation passes through it; stream updates carrying a stale request id or
// targeting a session the user has navigated away from are silently dropped.
// The active session is tracked per user, so concurrent sends by different
// users never invalidate each other.
type Reconciler struct {
	mu     sync.Mutex
	log    *logger.Logger
	loader MessageLoader

	active     map[uuid.UUID]uuid.UUID
	view       map[uuid.UUID][]types.Message
	pending    map[uuid.UUID]*PendingState
	ephemeral  map[uuid.UUID][]types.Message
	pendingCap int
}

func NewReconciler(loader MessageLoader, log *logger.Logger) *Reconciler {
	return &Reconciler{
		log:        log.With("service", "Reconciler"),
		loader:     loader,
		active:     make(map[uuid.UUID]uuid.UUID),
		view:       make(map[uuid.UUID][]types.Message),
		pending:    make(map[uuid.UUID]*PendingState),
		ephemeral:  make(map[uuid.UUID][]types.Message),
		pendingCap: defaultPendingCap,
	}
}

// Messages returns a copy of the session's displayed list.
func (r *Reconciler) Messages(sessionID uuid.UUID) []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.view[sessionID]
	out := make([]types.Message, len(src))
	copy(out, src)
	return out
}

// ActiveSession returns the session the user is currently viewing.
func (r *Reconciler) ActiveSession(userID uuid.UUID) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[userID]
}

// Pending returns the live pending state for a session, if any.
func (r *Reconciler) Pending(sessionID uuid.UUID) *PendingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[sessionID]; ok {
		cp := *p
		return &cp
	}
	return nil
}

// HasPendingConfirmation reports whether any displayed or ephemeral message
// for the session still awaits confirmation. The heuristic matcher is
// skipped while this holds, so conflicting proposals never stack.
func (r *Reconciler) HasPendingConfirmation(sessionID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasPendingConfirmationLocked(sessionID)
}

func (r *Reconciler) hasPendingConfirmationLocked(sessionID uuid.UUID) bool {
	for _, m := range r.view[sessionID] {
		if m.Context != nil && m.Context.RequiresConfirmation {
			return true
		}
	}
	for _, m := range r.ephemeral[sessionID] {
		if m.Context != nil && m.Context.RequiresConfirmation {
			return true
		}
	}
	return false
}

// LoadMessages rebuilds the session view from persisted truth, folds in
// unresolved ephemeral proposals, then replays pending-state messages so a
// mid-flight reload still shows the in-progress exchange. Re-running it is
// idempotent.
func (r *Reconciler) LoadMessages(ctx context.Context, sessionID uuid.UUID) ([]types.Message, error) {
	persisted, err := r.loader.LoadMessages(ctx, sessionID)
	if err != nil {
		// Load failures never leave stale drafts in the displayed list.
		r.mu.Lock()
		r.view[sessionID] = dropDrafts(r.view[sessionID])
		r.mu.Unlock()
		return nil, fmt.Errorf("load messages: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]types.Message, len(persisted))
	copy(list, persisted)

	if anyRequiresConfirmation(persisted) {
		// Persisted truth wins: an unresolved confirmation already exists,
		// so every ephemeral proposal for this session is dropped.
		delete(r.ephemeral, sessionID)
	} else {
		kept := r.ephemeral[sessionID][:0:0]
		for _, em := range r.ephemeral[sessionID] {
			if em.Context == nil || !em.Context.RequiresConfirmation {
				continue
			}
			kept = append(kept, em)
			if !containsID(list, em.ID) {
				list = append(list, em)
			}
		}
		if len(kept) > 0 {
			r.ephemeral[sessionID] = kept
		} else {
			delete(r.ephemeral, sessionID)
		}
	}

	if p, ok := r.pending[sessionID]; ok {
		for _, pm := range p.messages() {
			if !containsID(list, pm.ID) {
				list = append(list, pm)
			}
		}
	}

	r.view[sessionID] = list
	out := make([]types.Message, len(list))
	copy(out, list)
	return out, nil
}

// BeginSend registers a fresh pending state for the session and appends the
// draft user message to the view. Any prior pending state for the session
// is replaced; the returned request id guards all later updates. The session
// becomes the user's active one.
func (r *Reconciler) BeginSend(userID, sessionID uuid.UUID, text string) *PendingState {
	r.mu.Lock()
	defer r.mu.Unlock()

	requestID := uuid.New()
	draft := types.Message{
		ID:        "draft:" + uuid.NewString(),
		RequestID: requestID,
		Role:      types.RoleUser,
		Content:   text,
		CreatedAt: time.Now().UTC(),
		Draft:     true,
	}
	state := &PendingState{
		RequestID:   requestID,
		UserMessage: draft,
		StartedAt:   time.Now().UTC(),
	}

	if _, exists := r.pending[sessionID]; !exists && len(r.pending) >= r.pendingCap {
		r.evictOldestLocked()
	}
	r.pending[sessionID] = state
	r.active[userID] = sessionID
	r.view[sessionID] = append(r.view[sessionID], draft)
	return state
}

func (r *Reconciler) evictOldestLocked() {
	var oldest uuid.UUID
	var oldestAt time.Time
	for id, p := range r.pending {
		if oldestAt.IsZero() || p.StartedAt.Before(oldestAt) {
			oldest = id
			oldestAt = p.StartedAt
		}
	}
	if oldest != uuid.Nil {
		delete(r.pending, oldest)
	}
}

// AttachDetection records a heuristic profile-update proposal as an
// ephemeral assistant message tied to the in-flight request.
func (r *Reconciler) AttachDetection(sessionID uuid.UUID, requestID uuid.UUID, intent *types.ProfileUpdateIntent) bool {
	if intent == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[sessionID]
	if !ok || p.RequestID != requestID {
		return false
	}

	msg := types.Message{
		ID:        "ephemeral:" + uuid.NewString(),
		RequestID: requestID,
		Role:      types.RoleAssistant,
		Content:   intent.Summary,
		CreatedAt: time.Now().UTC(),
		Ephemeral: true,
		Context: &types.MessageContext{
			AnalysisType:         "profile_update",
			ProfileUpdates:       intent.Updates,
			UpdateSummary:        intent.Summary,
			RequiresConfirmation: true,
		},
	}
	p.DetectionMessage = &msg
	r.ephemeral[sessionID] = append(r.ephemeral[sessionID], msg)
	r.view[sessionID] = append(r.view[sessionID], msg)
	return true
}

// ApplyStreamUpdate folds accumulated assistant content into the draft
// assistant message. Updates for a session the user has navigated away
// from, or whose request id no longer matches the stored pending state,
// are dropped.
func (r *Reconciler) ApplyStreamUpdate(userID, sessionID uuid.UUID, requestID uuid.UUID, accumulated string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active[userID] != sessionID {
		return false
	}
	p, ok := r.pending[sessionID]
	if !ok || p.RequestID != requestID {
		return false
	}

	if p.AIMessage == nil {
		msg := types.Message{
			ID:        "draft:" + uuid.NewString(),
			RequestID: requestID,
			Role:      types.RoleAssistant,
			CreatedAt: time.Now().UTC(),
			Draft:     true,
		}
		p.AIMessage = &msg
		r.view[sessionID] = append(r.view[sessionID], msg)
	}
	p.AIMessage.Content = accumulated

	list := r.view[sessionID]
	for i := range list {
		if list[i].ID == p.AIMessage.ID {
			list[i].Content = accumulated
			break
		}
	}
	return true
}

// CompleteSend clears the pending state (when the request id still matches)
// and reloads persisted truth so Draft messages are replaced by their
// Committed copies.
func (r *Reconciler) CompleteSend(ctx context.Context, sessionID uuid.UUID, requestID uuid.UUID) ([]types.Message, error) {
	r.mu.Lock()
	p, ok := r.pending[sessionID]
	if !ok || p.RequestID != requestID {
		r.mu.Unlock()
		return nil, nil
	}
	delete(r.pending, sessionID)
	r.view[sessionID] = dropDraftsForRequest(r.view[sessionID], requestID)
	r.mu.Unlock()

	return r.LoadMessages(ctx, sessionID)
}

// FailSend rolls back all draft messages created for the request. The
// ephemeral detection message survives unless the whole send never reached
// persistence.
func (r *Reconciler) FailSend(sessionID uuid.UUID, requestID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pending[sessionID]
	if !ok || p.RequestID != requestID {
		return
	}
	delete(r.pending, sessionID)
	r.view[sessionID] = dropDraftsForRequest(r.view[sessionID], requestID)
}

// SwitchSession clears the target session's displayed list and ephemeral
// set, makes it the user's active session, loads persisted history, and
// replays any pending state registered for it. A send started before
// navigating away resumes.
func (r *Reconciler) SwitchSession(ctx context.Context, userID, sessionID uuid.UUID) ([]types.Message, error) {
	r.mu.Lock()
	r.active[userID] = sessionID
	delete(r.view, sessionID)
	delete(r.ephemeral, sessionID)
	r.mu.Unlock()

	return r.LoadMessages(ctx, sessionID)
}

// EvictSession drops all reconciler state for a deleted session.
func (r *Reconciler) EvictSession(sessionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.view, sessionID)
	delete(r.pending, sessionID)
	delete(r.ephemeral, sessionID)
	for userID, active := range r.active {
		if active == sessionID {
			delete(r.active, userID)
		}
	}
}

// EphemeralMessage looks up an unconfirmed proposal by its synthesized id.
func (r *Reconciler) EphemeralMessage(sessionID uuid.UUID, messageID string) (types.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, em := range r.ephemeral[sessionID] {
		if em.ID == messageID {
			return em, true
		}
	}
	return types.Message{}, false
}

// ResolveConfirmation flips the confirmation flag on the addressed message
// in the view and removes it from the ephemeral set.
func (r *Reconciler) ResolveConfirmation(sessionID uuid.UUID, messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.view[sessionID]
	for i := range list {
		if list[i].ID == messageID && list[i].Context != nil {
			ctx := *list[i].Context
			ctx.RequiresConfirmation = false
			list[i].Context = &ctx
		}
	}

	kept := r.ephemeral[sessionID][:0:0]
	for _, em := range r.ephemeral[sessionID] {
		if em.ID != messageID {
			kept = append(kept, em)
		}
	}
	if len(kept) > 0 {
		r.ephemeral[sessionID] = kept
	} else {
		delete(r.ephemeral, sessionID)
	}
}

func anyRequiresConfirmation(list []types.Message) bool {
	for _, m := range list {
		if m.Context != nil && m.Context.RequiresConfirmation {
			return true
		}
	}
	return false
}

func containsID(list []types.Message, id string) bool {
	for _, m := range list {
		if m.ID == id {
			return true
		}
	}
	return false
}

func dropDrafts(list []types.Message) []types.Message {
	out := list[:0:0]
	for _, m := range list {
		if !m.Draft {
			out = append(out, m)
		}
	}
	return out
}

func dropDraftsForRequest(list []types.Message, requestID uuid.UUID) []types.Message {
	out := list[:0:0]
	for _, m := range list {
		if m.Draft && m.RequestID == requestID {
			continue
		}
		out = append(out, m)
	}
	return out
}
