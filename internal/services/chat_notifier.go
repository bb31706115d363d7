package services

import (
	"context"

	"github.com/google/uuid"

	redisclient "github.com/fintly/advisor-backend/internal/clients/redis"
	types "github.com/fintly/advisor-backend/internal/domain/chat"
	"github.com/fintly/advisor-backend/internal/platform/logger"
	"github.com/fintly/advisor-backend/internal/sse"
)

// Notifier pushes chat events to the local SSE hub and mirrors them onto
// the cross-instance bus. Bus publish failures are logged, not surfaced;
// the local hub already delivered to every client on this replica.
type Notifier struct {
	log *logger.Logger
	hub *sse.Hub
	bus redisclient.EventBus
}

func NewNotifier(hub *sse.Hub, bus redisclient.EventBus, log *logger.Logger) *Notifier {
	return &Notifier{
		log: log.With("service", "Notifier"),
		hub: hub,
		bus: bus,
	}
}

// StartForwarding replays bus events from other replicas into the local hub.
func (n *Notifier) StartForwarding(ctx context.Context) error {
	if n.bus == nil {
		return nil
	}
	return n.bus.StartForwarder(ctx, func(m sse.Message) {
		n.hub.Broadcast(m)
	})
}

func SessionChannel(sessionID uuid.UUID) string {
	return "session:" + sessionID.String()
}

func (n *Notifier) publish(ctx context.Context, msg sse.Message) {
	n.hub.Broadcast(msg)
	if n.bus == nil {
		return
	}
	if err := n.bus.Publish(ctx, msg); err != nil {
		n.log.Warn("event bus publish failed", "error", err, "event", msg.Event)
	}
}

func (n *Notifier) MessageDelta(ctx context.Context, sessionID uuid.UUID, requestID uuid.UUID, accumulated string) {
	n.publish(ctx, sse.Message{
		Channel: SessionChannel(sessionID),
		Event:   sse.EventMessageDelta,
		Data: map[string]any{
			"request_id": requestID,
			"content":    accumulated,
		},
	})
}

func (n *Notifier) MessageDone(ctx context.Context, sessionID uuid.UUID, requestID uuid.UUID, messages []types.Message) {
	n.publish(ctx, sse.Message{
		Channel: SessionChannel(sessionID),
		Event:   sse.EventMessageDone,
		Data: map[string]any{
			"request_id": requestID,
			"messages":   messages,
		},
	})
}

func (n *Notifier) MessageError(ctx context.Context, sessionID uuid.UUID, requestID uuid.UUID, reason string) {
	n.publish(ctx, sse.Message{
		Channel: SessionChannel(sessionID),
		Event:   sse.EventMessageError,
		Data: map[string]any{
			"request_id": requestID,
			"reason":     reason,
		},
	})
}

func (n *Notifier) ConfirmationProposed(ctx context.Context, sessionID uuid.UUID, proposal types.Message) {
	n.publish(ctx, sse.Message{
		Channel: SessionChannel(sessionID),
		Event:   sse.EventConfirmationProposed,
		Data:    proposal,
	})
}

func (n *Notifier) SessionDeleted(ctx context.Context, sessionID uuid.UUID) {
	n.publish(ctx, sse.Message{
		Channel: SessionChannel(sessionID),
		Event:   sse.EventSessionDeleted,
		Data:    map[string]any{"session_id": sessionID},
	})
}
