package router

import (
	"encoding/json"

	"PulseChat/service/hub"
	"PulseChat/service/store"
)

// Inbound frames are JSON objects with a `type` discriminator. The frame
// is parsed to a map first so each handler decodes only its own shape.

type joinEvent struct {
	Username string `json:"username"`
	UserID   string `json:"userId"`
	Room     string `json:"room"`
}

type leaveEvent struct {
	Room string `json:"room"`
}

type messageEvent struct {
	Room      string `json:"room"`
	Content   string `json:"content"`
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
}

type dmEvent struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
	Encrypted   bool   `json:"encrypted"`
	EncContent  string `json:"encryptedContent"`
}

type groupMessageEvent struct {
	RecipientIDs []string `json:"recipientIds"`
	Content      string   `json:"content"`
	GroupName    string   `json:"groupName"`
}

type typingEvent struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

type signalEvent struct {
	To      string `json:"to"`
	Payload any    `json:"payload"`
}

type messageRefEvent struct {
	MessageID string `json:"messageId"`
	RoomName  string `json:"roomName"`
}

type getUsersEvent struct {
	Room string `json:"room"`
}

// ---- outbound frames ----

type joinedReply struct {
	Type       string          `json:"type"` // "joined"
	Room       string          `json:"room"`
	History    []store.Message `json:"history"`
	Users      []string        `json:"users"`
	UserID     string          `json:"userId"`
	PendingDMs int             `json:"pendingDMs"`
}

type leftReply struct {
	Type string `json:"type"` // "left"
	Room string `json:"room"`
}

type memberChange struct {
	Type      string `json:"type"` // "user_joined" | "user_left"
	Username  string `json:"username"`
	RoomName  string `json:"roomName"`
	UserCount int    `json:"userCount"`
}

// messageFrame broadcasts the persisted representation, server id and
// timestamp included, so every recipient sees one canonical copy.
type messageFrame struct {
	Type string `json:"type"` // "message" | "dm"
	store.Message
	Offline bool `json:"offline,omitempty"`
}

type dmSentReply struct {
	Type      string `json:"type"` // "dm_sent"
	To        string `json:"to"`
	Status    string `json:"status"` // "delivered" | "offline"
	MessageID string `json:"messageId,omitempty"`
}

type groupSentReply struct {
	Type         string   `json:"type"` // "group_message_sent"
	RecipientIDs []string `json:"recipientIds"`
	GroupName    string   `json:"groupName"`
	Delivered    int      `json:"delivered"`
	Offline      int      `json:"offline"`
	OfflineIDs   []string `json:"offlineRecipients"`
}

type typingBroadcast struct {
	Type     string   `json:"type"` // "typing"
	RoomName string   `json:"roomName"`
	Users    []string `json:"users"`
}

type roomListReply struct {
	Type  string         `json:"type"` // "room_list"
	Rooms []hub.RoomInfo `json:"rooms"`
}

type userListReply struct {
	Type  string   `json:"type"` // "user_list"
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

type pinnedBroadcast struct {
	Type      string `json:"type"` // "message_pinned"
	MessageID string `json:"messageId"`
	RoomName  string `json:"roomName"`
	PinnedBy  string `json:"pinnedBy"`
}

type starredReply struct {
	Type      string `json:"type"` // "message_starred"
	MessageID string `json:"messageId"`
}

type signalFrame struct {
	Type    string          `json:"type"` // "signal"
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

type signalSentReply struct {
	Type string `json:"type"` // "signal_sent"
	To   string `json:"to"`
	OK   bool   `json:"ok"`
	Via  string `json:"via,omitempty"`
}

type errorReply struct {
	Type      string `json:"type"` // "error"
	Message   string `json:"message"`
	Code      int    `json:"code,omitempty"`
	Remaining int    `json:"remaining,omitempty"`
	ResetAt   int64  `json:"resetAt,omitempty"` // unix millis
}
