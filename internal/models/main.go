// Package models defines the core data structures shared by the chat bot,
// the scheduler and the note tool.
package models

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ChatKind identifies the kind of chat a conversation belongs to.
type ChatKind string

const (
	// ChatUser is a one-to-one LINE chat.
	ChatUser ChatKind = "user"
	// ChatGroup is a LINE group.
	ChatGroup ChatKind = "group"
	// ChatRoom is a LINE multi-person room.
	ChatRoom ChatKind = "room"
	// ChatDiscord is a Discord guild channel.
	ChatDiscord ChatKind = "discord"
	// ChatTelegram is a Telegram chat.
	ChatTelegram ChatKind = "telegram"
)

// Valid reports whether k is one of the known chat kinds.
func (k ChatKind) Valid() bool {
	switch k {
	case ChatUser, ChatGroup, ChatRoom, ChatDiscord, ChatTelegram:
		return true
	}
	return false
}

// ChatSource describes where a message came from (or where it is going).
type ChatSource struct {
	// Kind is the chat kind.
	Kind ChatKind `json:"type"`
	// ID is the platform specific id: user id, group id, room id or channel id.
	ID string `json:"id"`
}

// ConversationID returns the stable conversation identifier for the source.
// Ids are prefixed by kind so equal raw ids of different kinds never collide.
func (s ChatSource) ConversationID() string {
	if !s.Kind.Valid() || s.ID == "" {
		return "unknown:unknown"
	}
	return string(s.Kind) + ":" + s.ID
}

// Role is the author role of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MessageType is the content type of a stored message. Only text is produced today.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageUnknown MessageType = "unknown"
)

// Conversation is the stored thread associated with one chat source.
type Conversation struct {
	ID        string    `json:"id"`
	Kind      ChatKind  `json:"chatKind"`
	Title     *string   `json:"title,omitempty"`
	Summary   *string   `json:"summary,omitempty"`
	Lang      *string   `json:"lang,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is a single stored chat message.
type Message struct {
	ID                int64           `json:"id"`
	ConvID            string          `json:"convId"`
	ExternalMessageID *string         `json:"externalMessageId,omitempty"`
	SenderID          *string         `json:"senderId,omitempty"`
	Role              Role            `json:"role"`
	Type              MessageType     `json:"type"`
	Content           string          `json:"content"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// NewUserMessage describes an inbound message to be appended.
type NewUserMessage struct {
	ConvID            string
	ExternalMessageID string
	SenderID          string
	Content           string
	Payload           any
}

// ChatTurn is a role/content pair ready for LLM consumption.
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Inbound is a text message received from a chat platform.
type Inbound struct {
	Source     ChatSource
	ExternalID string
	SenderID   string
	Text       string
	Payload    any
}

// User is a note tool account.
type User struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	DisplayName      string          `json:"displayName"`
	PasswordHash     []byte          `json:"-"`
	TwoFactorEnabled bool            `json:"twoFactorEnabled"`
	TwoFactorSecret  string          `json:"-"`
	Settings         json.RawMessage `json:"-"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Card is a note owned by one user.
type Card struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CardLinks lists the outgoing mentions and incoming backlinks of a card.
type CardLinks struct {
	Outgoing []int64 `json:"outgoing"`
	Incoming []int64 `json:"incoming"`
}

// Board is a canvas of cards owned by one user.
type Board struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"userId"`
	FolderID    *int64    `json:"folderId"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	Tags        []string  `json:"tags"`
	CardCount   int       `json:"cardCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BoardUpdate carries the mutable fields of a board. Nil Tags or Description
// keep the stored value; FolderSet distinguishes "move to no folder" from "leave alone".
type BoardUpdate struct {
	Name        string
	Tags        []string
	Description *string
	FolderSet   bool
	FolderID    *int64
}

// BoardFolder groups boards. The system archive folder cannot be renamed or deleted.
type BoardFolder struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	IsSystem  bool      `json:"isSystem"`
	SystemKey *string   `json:"systemKey"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
}

// ArchiveFolderKey is the system key of the per-user archive folder.
const ArchiveFolderKey = "archive"

// Layout is the position and size of a card on a board.
type Layout struct {
	X      *float64 `json:"x_pos"`
	Y      *float64 `json:"y_pos"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// BoardCard is the join row between a board and a card.
type BoardCard struct {
	BoardID int64 `json:"boardId"`
	CardID  int64 `json:"cardId"`
	Layout
}

// BoardCardView is a card as rendered on a board.
type BoardCardView struct {
	Card
	Layout
}

// Region is a named colored rectangle annotating a board.
type Region struct {
	ID        int64     `json:"id"`
	BoardID   int64     `json:"boardId"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	X         float64   `json:"x_pos"`
	Y         float64   `json:"y_pos"`
	Width     float64   `json:"width"`
	Height    float64   `json:"height"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RegionPatch carries optional region fields for partial updates.
type RegionPatch struct {
	Name   *string  `json:"name"`
	Color  *string  `json:"color"`
	X      *float64 `json:"x_pos"`
	Y      *float64 `json:"y_pos"`
	Width  *float64 `json:"width"`
	Height *float64 `json:"height"`
}

// DefaultRegionColor is used when a region is created without a color.
const DefaultRegionColor = "#38bdf8"

// ShareResource is the kind of resource a share link points to.
type ShareResource string

const (
	ShareCard  ShareResource = "card"
	ShareBoard ShareResource = "board"
)

// Permission is the access level granted by a share link.
type Permission string

const (
	PermissionRead Permission = "read"
	PermissionEdit Permission = "edit"
)

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	return p == PermissionRead || p == PermissionEdit
}

// ShareLink grants access to one card or board independent of the session.
type ShareLink struct {
	ID                int64         `json:"id"`
	Resource          ShareResource `json:"resource"`
	ResourceID        int64         `json:"resourceId"`
	Token             string        `json:"token"`
	Permission        Permission    `json:"permission"`
	ExpiresAt         *time.Time    `json:"expiresAt"`
	RevokedAt         *time.Time    `json:"revokedAt"`
	CreatedBy         string        `json:"createdBy"`
	CreatedAt         time.Time     `json:"createdAt"`
	PasswordHash      []byte        `json:"-"`
	PasswordProtected bool          `json:"passwordProtected"`
}

// Usable reports whether the link is neither revoked nor expired at now.
func (l *ShareLink) Usable(now time.Time) bool {
	if l.RevokedAt != nil {
		return false
	}
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return false
	}
	return true
}

// Number is a float that also decodes from a numeric JSON string such as "120".
type Number float64

// UnmarshalJSON accepts 120, 120.5 or "120". Anything else is reported as a
// type error on the enclosing field.
func (n *Number) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unq)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return &json.UnmarshalTypeError{Value: "string " + string(data), Type: reflect.TypeOf(float64(0))}
	}
	*n = Number(f)
	return nil
}
