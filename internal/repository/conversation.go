// Package repository provides persistence implementations backed by PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shaonote/starbot/internal/models"
)

// DefaultHistoryLimit is used when RecentMessages is called with a non-positive limit.
const DefaultHistoryLimit = 12

// PostgresConversationRepository stores chat conversations and their messages.
type PostgresConversationRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresConversationRepository creates a repository over db.
func NewPostgresConversationRepository(db *sql.DB) *PostgresConversationRepository {
	return &PostgresConversationRepository{DB: db}
}

// EnsureConversation inserts the conversation if absent, otherwise bumps updated_at.
// Repeat calls never fail on the conflict.
func (r *PostgresConversationRepository) EnsureConversation(ctx context.Context, id string, kind models.ChatKind) error {
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO linebot.conversations (id, chat_kind)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
	`, id, string(kind))
	if err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	return nil
}

// AppendUserMessage stores an inbound user message. When ExternalMessageID is set
// and already recorded for the conversation, the stored row is returned with
// inserted=false and nothing is written.
func (r *PostgresConversationRepository) AppendUserMessage(ctx context.Context, m models.NewUserMessage) (*models.Message, bool, error) {
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("marshal payload: %w", err)
	}
	if m.Payload == nil {
		payload = []byte("{}")
	}

	msg := &models.Message{
		ConvID:  m.ConvID,
		Role:    models.RoleUser,
		Type:    models.MessageText,
		Content: m.Content,
		Payload: payload,
	}
	if m.ExternalMessageID != "" {
		msg.ExternalMessageID = &m.ExternalMessageID
	}
	if m.SenderID != "" {
		msg.SenderID = &m.SenderID
	}

	err = r.DB.QueryRowContext(ctx, `
		INSERT INTO linebot.messages
			(conv_id, external_message_id, sender_id, sender_role, type, content, payload)
		VALUES ($1, $2, $3, 'user', 'text', $4, $5)
		ON CONFLICT (conv_id, external_message_id) DO NOTHING
		RETURNING id, created_at
	`, m.ConvID, nullString(m.ExternalMessageID), nullString(m.SenderID), m.Content, payload).
		Scan(&msg.ID, &msg.CreatedAt)
	if err == nil {
		return msg, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("insert user message: %w", err)
	}

	prior, err := r.messageByExternalID(ctx, m.ConvID, m.ExternalMessageID)
	if err != nil {
		return nil, false, err
	}
	return prior, false, nil
}

func (r *PostgresConversationRepository) messageByExternalID(ctx context.Context, convID, externalID string) (*models.Message, error) {
	var (
		msg              models.Message
		ext, sender, cnt sql.NullString
		role, typ        string
		payload          []byte
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, conv_id, external_message_id, sender_id, sender_role, type, content, payload, created_at
		FROM linebot.messages
		WHERE conv_id = $1 AND external_message_id = $2
	`, convID, externalID).Scan(&msg.ID, &msg.ConvID, &ext, &sender, &role, &typ, &cnt, &payload, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load duplicate message: %w", err)
	}
	msg.ExternalMessageID = stringPtr(ext)
	msg.SenderID = stringPtr(sender)
	msg.Role = models.Role(role)
	msg.Type = models.MessageType(typ)
	msg.Content = cnt.String
	msg.Payload = payload
	return &msg, nil
}

// AppendAssistantMessage always inserts an assistant reply.
func (r *PostgresConversationRepository) AppendAssistantMessage(ctx context.Context, convID, content string) (*models.Message, error) {
	msg := &models.Message{
		ConvID:  convID,
		Role:    models.RoleAssistant,
		Type:    models.MessageText,
		Content: content,
	}
	err := r.DB.QueryRowContext(ctx, `
		INSERT INTO linebot.messages (conv_id, sender_role, type, content)
		VALUES ($1, 'assistant', 'text', $2)
		RETURNING id, created_at
	`, convID, content).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert assistant message: %w", err)
	}
	return msg, nil
}

// RecentMessages returns up to limit of the latest messages, oldest first.
func (r *PostgresConversationRepository) RecentMessages(ctx context.Context, convID string, limit int) ([]models.ChatTurn, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT sender_role, COALESCE(content, '')
		FROM linebot.messages
		WHERE conv_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, convID, limit)
	if err != nil {
		return nil, fmt.Errorf("RecentMessages: %w", err)
	}
	defer rows.Close()

	var turns []models.ChatTurn
	for rows.Next() {
		var t models.ChatTurn
		var role string
		if err := rows.Scan(&role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		t.Role = models.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
