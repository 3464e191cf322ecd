// Package db opens the PostgreSQL pool, creates the schema and runs
// background maintenance over it.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE SCHEMA IF NOT EXISTS linebot;
CREATE SCHEMA IF NOT EXISTS note_tool;

CREATE TABLE IF NOT EXISTS linebot.conversations (
    id TEXT PRIMARY KEY,
    chat_kind TEXT NOT NULL CHECK (chat_kind IN ('user','group','room','discord','telegram')),
    title TEXT,
    summary TEXT,
    lang TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated
    ON linebot.conversations (updated_at DESC);

CREATE TABLE IF NOT EXISTS linebot.messages (
    id BIGSERIAL PRIMARY KEY,
    conv_id TEXT NOT NULL REFERENCES linebot.conversations(id) ON DELETE CASCADE,
    external_message_id TEXT,
    sender_id TEXT,
    sender_role TEXT NOT NULL DEFAULT 'user' CHECK (sender_role IN ('user','assistant','system','tool')),
    type TEXT NOT NULL DEFAULT 'text'
        CHECK (type IN ('text','image','video','audio','file','sticker','location','unknown')),
    content TEXT,
    payload JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT uq_messages_external_id UNIQUE (conv_id, external_message_id)
);

CREATE INDEX IF NOT EXISTS idx_messages_conv_time
    ON linebot.messages (conv_id, created_at DESC);

CREATE TABLE IF NOT EXISTS note_tool.users (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    display_name TEXT,
    password_hash TEXT NOT NULL,
    two_factor_enabled BOOLEAN NOT NULL DEFAULT FALSE,
    two_factor_secret TEXT,
    settings JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS note_tool.cards (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES note_tool.users(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    content TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS note_tool.card_links (
    from_card_id BIGINT REFERENCES note_tool.cards(id) ON DELETE CASCADE,
    to_card_id BIGINT REFERENCES note_tool.cards(id) ON DELETE CASCADE,
    PRIMARY KEY (from_card_id, to_card_id)
);

CREATE TABLE IF NOT EXISTS note_tool.board_folders (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES note_tool.users(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    is_system BOOLEAN NOT NULL DEFAULT FALSE,
    system_key TEXT,
    sort_order INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, system_key)
);

CREATE TABLE IF NOT EXISTS note_tool.boards (
    id BIGSERIAL PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES note_tool.users(id) ON DELETE CASCADE,
    folder_id BIGINT REFERENCES note_tool.board_folders(id) ON DELETE SET NULL,
    name TEXT NOT NULL,
    description TEXT,
    tags TEXT[] NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS note_tool.board_cards (
    board_id BIGINT REFERENCES note_tool.boards(id) ON DELETE CASCADE,
    card_id BIGINT REFERENCES note_tool.cards(id) ON DELETE CASCADE,
    x_pos DOUBLE PRECISION DEFAULT 0,
    y_pos DOUBLE PRECISION DEFAULT 0,
    width DOUBLE PRECISION,
    height DOUBLE PRECISION,
    PRIMARY KEY (board_id, card_id)
);

CREATE TABLE IF NOT EXISTS note_tool.board_regions (
    id BIGSERIAL PRIMARY KEY,
    board_id BIGINT NOT NULL REFERENCES note_tool.boards(id) ON DELETE CASCADE,
    name TEXT NOT NULL,
    color TEXT NOT NULL DEFAULT '#38bdf8',
    x_pos DOUBLE PRECISION NOT NULL DEFAULT 0,
    y_pos DOUBLE PRECISION NOT NULL DEFAULT 0,
    width DOUBLE PRECISION NOT NULL CHECK (width > 0),
    height DOUBLE PRECISION NOT NULL CHECK (height > 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS note_tool.card_share_links (
    id BIGSERIAL PRIMARY KEY,
    card_id BIGINT NOT NULL REFERENCES note_tool.cards(id) ON DELETE CASCADE,
    token TEXT NOT NULL UNIQUE,
    permission TEXT NOT NULL CHECK (permission IN ('read','edit')),
    expires_at TIMESTAMPTZ,
    revoked_at TIMESTAMPTZ,
    password_hash TEXT,
    created_by TEXT NOT NULL REFERENCES note_tool.users(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS note_tool.board_share_links (
    id BIGSERIAL PRIMARY KEY,
    board_id BIGINT NOT NULL REFERENCES note_tool.boards(id) ON DELETE CASCADE,
    token TEXT NOT NULL UNIQUE,
    permission TEXT NOT NULL CHECK (permission IN ('read','edit')),
    expires_at TIMESTAMPTZ,
    revoked_at TIMESTAMPTZ,
    password_hash TEXT,
    created_by TEXT NOT NULL REFERENCES note_tool.users(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_cards_user_id ON note_tool.cards(user_id);
CREATE INDEX IF NOT EXISTS idx_boards_user_id ON note_tool.boards(user_id);
CREATE INDEX IF NOT EXISTS idx_card_links_to ON note_tool.card_links(to_card_id);
`

// InitPostgres opens a pooled connection, verifies it and applies the schema.
func InitPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return db, nil
}
