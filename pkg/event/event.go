// Package event defines the wire contract between the server and its
// clients. Treat these shapes as a contract: version them when breaking
// changes are required.
package event

import "strconv"

// Server-pushed event names.
const (
	SyncMessages  = "sync_messages"         // batch, to one connection on connect
	Receive       = "receive_message"       // room-scoped
	ChatList      = "chat_list_update"      // personal room
	StatusUpdate  = "message_status_update" // personal room
	Reaction      = "message_reaction"      // room-scoped
	Deleted       = "message_deleted"       // room-scoped
	DisplayTyping = "display_typing"        // room-scoped
)

// Client-sent event names.
const (
	JoinRoom          = "join_room"
	LeaveRoom         = "leave_room"
	Typing            = "typing"
	MessagesDelivered = "messages_delivered"
)

// Message statuses as seen by the sending client. Delivered/read are also
// mirrored into the client's local replica for its own outgoing messages.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Envelope frames every packet on the websocket, both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Message is the display payload for one message, fanned out on
// receive_message and inside sync_messages batches.
type Message struct {
	MsgID        int64             `json:"messageId"`
	GroupID      int64             `json:"groupId"`
	SenderID     int64             `json:"senderId,omitempty"` // 0 = system sender
	SenderName   string            `json:"senderName,omitempty"`
	SenderAvatar string            `json:"senderAvatar,omitempty"`
	Kind         string            `json:"kind"`
	Content      string            `json:"content"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	ReplyTo      int64             `json:"replyTo,omitempty"`
	ReplyContent string            `json:"replyContent,omitempty"`
	ReplySender  string            `json:"replySender,omitempty"`
	Forwarded    bool              `json:"forwarded,omitempty"`
	Deleted      bool              `json:"deleted,omitempty"`
	CreatedAt    int64             `json:"createdAt"` // unix millis
}

// SyncBatch carries the catch-up window to one freshly connected client.
type SyncBatch struct {
	Messages []Message `json:"messages"`
}

// ChatListUpdate tells a member's personal room that a chat's summary
// changed. Name/Icon are already resolved per viewer: for private chats
// they are the other member's, never the group's generic ones.
type ChatListUpdate struct {
	ChatID      int64  `json:"chatId"`
	MsgID       int64  `json:"messageId,omitempty"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Kind        string `json:"kind"`
	SenderID    int64  `json:"senderId,omitempty"`
	Snippet     string `json:"snippet"`
	SnippetKind string `json:"snippetKind"`
	At          int64  `json:"at"` // unix millis
}

// StatusDetail pinpoints one message's transition inside a status update.
type StatusDetail struct {
	MsgID       int64 `json:"messageId"`
	DeliveredTo int64 `json:"deliveredTo,omitempty"`
}

// Status batches transitions per sender to keep fan-out small when many
// messages are acknowledged at once (typical after reconnect).
type Status struct {
	Status  string         `json:"status"` // sent | delivered
	Details []StatusDetail `json:"details"`
}

// ReactionUpdate carries the full aggregated map; clients overwrite.
type ReactionUpdate struct {
	MsgID     int64              `json:"messageId"`
	Reactions map[string][]int64 `json:"reactions"`
}

type DeleteNotice struct {
	MsgID   int64 `json:"messageId"`
	GroupID int64 `json:"groupId"`
}

type TypingNotice struct {
	UserID   int64  `json:"userId"`
	Name     string `json:"name"`
	IsTyping bool   `json:"isTyping"`
}

// TypingRequest is the client-sent half of the typing relay.
type TypingRequest struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

// DeliveredRequest acknowledges a batch of message ids in one call.
type DeliveredRequest struct {
	MessageIDs []int64 `json:"messageIds"`
}

// PersonalRoom and GroupRoom name the two room families.
func PersonalRoom(userID int64) string { return "user:" + strconv.FormatInt(userID, 10) }
func GroupRoom(groupID int64) string   { return "group:" + strconv.FormatInt(groupID, 10) }
