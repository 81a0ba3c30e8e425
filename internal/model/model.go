package model

import (
	"database/sql"
	"time"
)

// Message kinds. A soft-deleted message is rewritten to KindSystem with
// placeholder content; the row itself stays until the retention sweep.
const (
	KindText   = "text"
	KindImage  = "image"
	KindVideo  = "video"
	KindSystem = "system"
)

// Group kinds.
const (
	GroupKindGroup     = "group"
	GroupKindPrivate   = "private"
	GroupKindBroadcast = "broadcast"
)

// Member roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// DeletedPlaceholder replaces the content of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted"

// Message is the DB row for im_message. SenderID is NULL for system/bot
// messages. Immutable except content/kind on soft delete.
type Message struct {
	MsgID     int64
	GroupID   int64
	SenderID  sql.NullInt64
	Kind      string
	Content   string
	Metadata  sql.NullString // free-form JSON
	ReplyTo   sql.NullInt64
	Forwarded bool
	Deleted   bool
	CreatedAt time.Time
}

// MessageView is a Message joined with sender display data and, when the
// message is a reply, a preview of the parent.
type MessageView struct {
	Message
	SenderName   string
	SenderAvatar string

	ReplyContent sql.NullString
	ReplySender  sql.NullString
}

type Group struct {
	GroupID     int64
	Name        string
	Kind        string
	Icon        string
	Description string
}

type GroupMember struct {
	GroupID  int64
	UserID   int64
	Role     string
	JoinedAt time.Time
}

// Profile is the read-only member-directory projection used for display
// payloads and reaction details.
type Profile struct {
	UserID   int64
	Nickname string
	Avatar   string
}

// ReactionRow is one im_reaction row. UNIQUE(msg_id, user_id) enforces the
// single-reaction-per-user invariant at the storage layer.
type ReactionRow struct {
	MsgID     int64
	UserID    int64
	Symbol    string
	CreatedAt time.Time
}

// ReactionMap is the wire shape broadcast to rooms: symbol -> ordered
// reactor ids. Symbols with no reactors are never present.
type ReactionMap map[string][]int64

// BuildReactionMap folds reaction rows (ordered by creation) into the wire
// map. Row order is preserved within each symbol's set.
func BuildReactionMap(rows []ReactionRow) ReactionMap {
	m := make(ReactionMap, len(rows))
	for _, r := range rows {
		m[r.Symbol] = append(m[r.Symbol], r.UserID)
	}
	return m
}
