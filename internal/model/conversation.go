package model

import "time"

// Conversation groups the chat messages of one user session.
type Conversation struct {
	ID        string    `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn. Metadata carries the assistant response
// (SQL, confidence, suggestions) for assistant turns.
type Message struct {
	ID             int64                  `json:"id" db:"id"`
	ConversationID string                 `json:"conversationId" db:"conversation_id"`
	Role           string                 `json:"role" db:"role"`
	Content        string                 `json:"content" db:"content"`
	DatabaseIDs    []int64                `json:"databaseIds,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"createdAt" db:"created_at"`
}

// Pipeline is a saved ETL pipeline. ParentID links a derived pipeline to the
// one it was generated from.
type Pipeline struct {
	ID          int64          `json:"id" db:"id"`
	Name        string         `json:"name" db:"name"`
	Description string         `json:"description" db:"description"`
	Source      string         `json:"source" db:"source"`
	Target      string         `json:"target" db:"target"`
	Status      string         `json:"status" db:"status"` // draft, active, paused
	ParentID    *int64         `json:"parentId,omitempty" db:"parent_id"`
	Steps       []PipelineStep `json:"steps"`
	CreatedAt   time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time      `json:"updatedAt" db:"updated_at"`
}
