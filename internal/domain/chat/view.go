package chat

import (
	"time"

	"github.com/google/uuid"
)

// Message is the client-facing view of one chat message. Draft messages
// carry a locally synthesized id and are superseded by the Committed copy
// (server-assigned row id) once persistence confirms; Ephemeral messages are
// unconfirmed proposals that were never persisted at all.
type Message struct {
	ID        string          `json:"id"`
	RequestID uuid.UUID       `json:"request_id,omitempty"`
	Seq       int64           `json:"seq,omitempty"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	Context   *MessageContext `json:"context,omitempty"`
	Draft     bool            `json:"draft,omitempty"`
	Ephemeral bool            `json:"ephemeral,omitempty"`
}

// ViewFromRow converts a persisted row into its committed view form. The
// request id recorded in the context record, when present, carries over so
// the committed pair stays linked the way its drafts were.
func ViewFromRow(row *ChatMessage) Message {
	if row == nil {
		return Message{}
	}
	msg := Message{
		ID:        row.ID.String(),
		Seq:       row.Seq,
		Role:      row.Role,
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
		Context:   row.Context(),
	}
	if msg.Context != nil && msg.Context.RequestID != "" {
		if rid, err := uuid.Parse(msg.Context.RequestID); err == nil {
			msg.RequestID = rid
		}
	}
	return msg
}
