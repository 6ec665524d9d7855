package history

import (
	"time"

	"github.com/google/uuid"
)

// ConversationModel maps to the "conversations" table.
type ConversationModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

func (ConversationModel) TableName() string { return "conversations" }

// MessageModel maps to the "messages" table. SeqNum orders messages within
// a conversation; AgentType attributes assistant turns to the workflow
// agent that produced them.
type MessageModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index:idx_messages_conv_seq,priority:1"`
	SeqNum         int       `gorm:"not null;index:idx_messages_conv_seq,priority:2"`
	Role           string    `gorm:"not null"`
	Content        string    `gorm:"not null"`
	AgentType      string
	Model          string
	CreatedAt      time.Time
}

func (MessageModel) TableName() string { return "messages" }
