package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptelt/promptelt/internal/model"
)

// CreateConversation starts a conversation. An empty ID is replaced by a
// time-ordered UUID.
func (s *Store) CreateConversation(ctx context.Context, c *model.Conversation) error {
	if c.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate conversation id: %w", err)
		}
		c.ID = id.String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	const q = `INSERT INTO conversations (id, title, created_at, updated_at)
		VALUES (:id, :title, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, q, c); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// GetConversation returns a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var c model.Conversation
	if err := s.db.GetContext(ctx, &c, "SELECT * FROM conversations WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &c, nil
}

// ListConversations returns conversations, most recently updated first.
func (s *Store) ListConversations(ctx context.Context) ([]model.Conversation, error) {
	out := []model.Conversation{}
	if err := s.db.SelectContext(ctx, &out, "SELECT * FROM conversations ORDER BY updated_at DESC, id DESC"); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// DeleteConversation removes a conversation and its messages.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return expectOne(result, "delete conversation")
}

type messageRow struct {
	ID              int64     `db:"id"`
	ConversationID  string    `db:"conversation_id"`
	Role            string    `db:"role"`
	Content         string    `db:"content"`
	DatabaseIDsJSON string    `db:"database_ids_json"`
	MetadataJSON    string    `db:"metadata_json"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r messageRow) toModel() (model.Message, error) {
	m := model.Message{
		ID:             r.ID,
		ConversationID: r.ConversationID,
		Role:           r.Role,
		Content:        r.Content,
		CreatedAt:      r.CreatedAt,
	}
	if err := unmarshalJSON(r.DatabaseIDsJSON, &m.DatabaseIDs); err != nil {
		return model.Message{}, fmt.Errorf("decode database ids of message %d: %w", r.ID, err)
	}
	if err := unmarshalJSON(r.MetadataJSON, &m.Metadata); err != nil {
		return model.Message{}, fmt.Errorf("decode metadata of message %d: %w", r.ID, err)
	}
	return m, nil
}

// AddMessage appends a message to its conversation and bumps the
// conversation's UpdatedAt. The first user message titles an untitled
// conversation.
func (s *Store) AddMessage(ctx context.Context, m *model.Message) error {
	if m.Role != model.RoleUser && m.Role != model.RoleAssistant {
		return fmt.Errorf("invalid message role %q", m.Role)
	}
	ids, err := marshalJSON(m.DatabaseIDs, "[]")
	if err != nil {
		return fmt.Errorf("marshal database ids: %w", err)
	}
	meta, err := marshalJSON(m.Metadata, "{}")
	if err != nil {
		return fmt.Errorf("marshal message metadata: %w", err)
	}
	m.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		"UPDATE conversations SET updated_at = ? WHERE id = ?", m.CreatedAt, m.ConversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if err := expectOne(result, "touch conversation"); err != nil {
		return err
	}
	if m.Role == model.RoleUser {
		if _, err := tx.ExecContext(ctx,
			"UPDATE conversations SET title = ? WHERE id = ? AND title = ''", titleFrom(m.Content), m.ConversationID); err != nil {
			return fmt.Errorf("title conversation: %w", err)
		}
	}

	result, err = tx.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, database_ids_json, metadata_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.Role, m.Content, ids, meta, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get message id: %w", err)
	}
	m.ID = id
	return tx.Commit()
}

// ListMessages returns the messages of a conversation in insertion order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM messages WHERE conversation_id = ? ORDER BY id", conversationID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

const maxTitleLen = 60

func titleFrom(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if r := []rune(title); len(r) > maxTitleLen {
		title = string(r[:maxTitleLen-3]) + "..."
	}
	return title
}
