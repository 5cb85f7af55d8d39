package store

import (
	"context"
	"time"
)

const (
	KindRoom   = "room"
	KindDirect = "dm"
	KindGroup  = "group"
)

// Message is the canonical persisted representation. The server assigns ID
// and CreatedAt before the first broadcast so every recipient, including
// the sender's own other tabs, sees one copy.
// Group messages are stored one row per recipient so the pending-delivery
// scan stays a single indexed query on (to, delivered).
type Message struct {
	ID           string    `bson:"_id" json:"id"`
	Kind         string    `bson:"kind" json:"kind"`
	Room         string    `bson:"room,omitempty" json:"room,omitempty"`
	From         string    `bson:"from" json:"from"`
	FromUsername string    `bson:"from_username" json:"fromUsername"`
	To           string    `bson:"to,omitempty" json:"to,omitempty"`
	GroupName    string    `bson:"group_name,omitempty" json:"groupName,omitempty"`
	Content      string    `bson:"content" json:"content"`
	MediaURL     string    `bson:"media_url,omitempty" json:"mediaUrl,omitempty"`
	MediaType    string    `bson:"media_type,omitempty" json:"mediaType,omitempty"`
	Encrypted    bool      `bson:"encrypted,omitempty" json:"encrypted,omitempty"`
	EncContent   string    `bson:"enc_content,omitempty" json:"encryptedContent,omitempty"`
	CreatedAt    time.Time `bson:"created_at" json:"timestamp"`
	Delivered    bool      `bson:"delivered" json:"delivered"`
	SeenBy       []string  `bson:"seen_by,omitempty" json:"seenBy,omitempty"`
	StarredBy    []string  `bson:"starred_by,omitempty" json:"starredBy,omitempty"`
	Pinned       bool      `bson:"pinned,omitempty" json:"pinned,omitempty"`
}

// MessageStore is the durable-store collaborator the router talks to.
// Pending direct messages come back in creation order.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *Message) error
	RoomHistory(ctx context.Context, room string, limit int64) ([]Message, error)
	PendingDirect(ctx context.Context, userID string) ([]Message, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkSeen(ctx context.Context, id, userID string) error
	Star(ctx context.Context, id, userID string) error
	Pin(ctx context.Context, id string) error
}

// BlockChecker answers whether either side of a pair has blocked the other.
type BlockChecker interface {
	IsBlocked(ctx context.Context, a, b string) (bool, error)
}
