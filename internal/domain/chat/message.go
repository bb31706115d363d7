package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index;index:idx_chat_message_session_seq,unique,priority:1" json:"session_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Seq int64 `gorm:"column:seq;not null;index:idx_chat_message_session_seq,unique,priority:2" json:"seq"`

	Role    string `gorm:"column:role;not null;index" json:"role"`
	Content string `gorm:"column:content;type:text;not null;default:''" json:"content"`

	// Metadata carries the optional MessageContext record as jsonb.
	Metadata datatypes.JSON `gorm:"type:jsonb;column:metadata;not null;default:'{}'" json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ChatMessage) TableName() string { return "chat_message" }

// MessageContext is the structured context record attached to assistant
// messages: what kind of analysis produced the reply and, when the reply
// proposes profile changes, the proposed updates plus the confirmation flag.
type MessageContext struct {
	AnalysisType         string            `json:"analysis_type,omitempty"`
	Confidence           float64           `json:"confidence,omitempty"`
	ProfileUpdates       map[string]string `json:"profile_updates,omitempty"`
	UpdateSummary        string            `json:"update_summary,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation,omitempty"`
	References           []Reference       `json:"references,omitempty"`

	// RequestID links the committed row back to the send that produced it,
	// so a persisted user/assistant pair stays tied together.
	RequestID string `json:"request_id,omitempty"`
}

// Reference is one cited source from realtime augmentation.
type Reference struct {
	Headline    string `json:"headline"`
	Source      string `json:"source,omitempty"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Context decodes the metadata column. Returns nil when no context record is set.
func (m *ChatMessage) Context() *MessageContext {
	if m == nil || len(m.Metadata) == 0 {
		return nil
	}
	var mc MessageContext
	if err := json.Unmarshal(m.Metadata, &mc); err != nil {
		return nil
	}
	if mc.AnalysisType == "" && len(mc.ProfileUpdates) == 0 && !mc.RequiresConfirmation && len(mc.References) == 0 && mc.RequestID == "" {
		return nil
	}
	return &mc
}

func (mc *MessageContext) ToJSON() datatypes.JSON {
	if mc == nil {
		return datatypes.JSON([]byte("{}"))
	}
	b, err := json.Marshal(mc)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(b)
}
