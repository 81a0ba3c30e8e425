// Package reconcile applies server-pushed events to the local mirror.
// Every handler is an idempotent upsert: redundant delivery (the same
// message via catch-up and live broadcast) never duplicates rows or
// double-counts unread badges.
package reconcile

import (
	"sync/atomic"

	"github.com/negi-jagdish/village-im/internal/model"
	"github.com/negi-jagdish/village-im/pkg/event"
	"github.com/negi-jagdish/village-im/pkg/mirror"
)

// Acker sends delivery acknowledgements back to the server (the live
// channel's messages_delivered frame).
type Acker interface {
	AckDelivered(msgIDs []int64)
}

// Notifier is fed by both reconciler paths and the push transport; it
// owns dedup and mute logic.
type Notifier interface {
	Notify(chatID, msgID int64, title, body string)
}

type Reconciler struct {
	store    *mirror.Store
	acker    Acker
	notifier Notifier
	selfID   int64

	openChat atomic.Int64 // 0 = no chat screen open
}

func New(store *mirror.Store, acker Acker, notifier Notifier, selfID int64) *Reconciler {
	return &Reconciler{store: store, acker: acker, notifier: notifier, selfID: selfID}
}

// SetOpenChat records which chat screen is visible; 0 means none.
func (r *Reconciler) SetOpenChat(chatID int64) { r.openChat.Store(chatID) }

func (r *Reconciler) isSelf(senderID int64) bool { return senderID == r.selfID }

func toMirror(m *event.Message) mirror.Message {
	return mirror.Message{
		MsgID:        m.MsgID,
		ChatID:       m.GroupID,
		SenderID:     m.SenderID,
		SenderName:   m.SenderName,
		Kind:         m.Kind,
		Content:      m.Content,
		ReplyTo:      m.ReplyTo,
		ReplyContent: m.ReplyContent,
		Forwarded:    m.Forwarded,
		Deleted:      m.Deleted,
		CreatedAt:    m.CreatedAt,
	}
}

// ApplySyncBatch merges a catch-up batch, then acknowledges every
// non-self, non-system message in one call.
func (r *Reconciler) ApplySyncBatch(batch event.SyncBatch) error {
	var ack []int64
	for i := range batch.Messages {
		m := &batch.Messages[i]
		if _, err := r.store.InsertMessage(toMirror(m)); err != nil {
			return err
		}
		if err := r.touchChat(m, false); err != nil {
			return err
		}
		if !r.isSelf(m.SenderID) && m.Kind != model.KindSystem {
			ack = append(ack, m.MsgID)
		}
	}
	if len(ack) > 0 {
		r.acker.AckDelivered(ack)
	}
	return nil
}

// ApplyMessage merges one live room broadcast. The unread counter is
// untouched here; chat_list_update owns it.
func (r *Reconciler) ApplyMessage(m event.Message) error {
	inserted, err := r.store.InsertMessage(toMirror(&m))
	if err != nil {
		return err
	}
	if err := r.touchChat(&m, true); err != nil {
		return err
	}
	if inserted && !r.isSelf(m.SenderID) && m.Kind != model.KindSystem {
		r.acker.AckDelivered([]int64{m.MsgID})
		r.notifier.Notify(m.GroupID, m.MsgID, m.SenderName, m.Content)
	}
	return nil
}

// touchChat upserts the chat summary around a message, preserving the
// unread counter and notification preferences.
func (r *Reconciler) touchChat(m *event.Message, bumpSnippet bool) error {
	c, ok, err := r.store.GetChat(m.GroupID)
	if err != nil {
		return err
	}
	if !ok {
		c = &mirror.ChatSummary{ChatID: m.GroupID}
	}
	if bumpSnippet || m.CreatedAt >= c.LastAt {
		c.Snippet = m.Content
		c.SnippetKind = m.Kind
		c.LastAt = m.CreatedAt
	}
	return r.store.PutChat(*c)
}

// ApplyChatListUpdate refreshes the summary and owns the unread badge:
// it increments only once per message id, only when the chat is not the
// open one and the sender is not the user themselves, and notifies when
// it incremented. Redelivery of an update already reflected in the
// summary leaves the badge alone.
func (r *Reconciler) ApplyChatListUpdate(u event.ChatListUpdate) error {
	c, ok, err := r.store.GetChat(u.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		c = &mirror.ChatSummary{ChatID: u.ChatID}
	}
	c.Name = u.Name
	c.Icon = u.Icon
	c.Kind = u.Kind

	fresh := u.MsgID == 0 || u.MsgID > c.LastMsgID
	if fresh {
		c.Snippet = u.Snippet
		c.SnippetKind = u.SnippetKind
		c.LastAt = u.At
		c.LastMsgID = u.MsgID
	}

	incremented := false
	if fresh && r.openChat.Load() != u.ChatID && !r.isSelf(u.SenderID) && u.SenderID != 0 {
		c.Unread++
		incremented = true
	}
	if err := r.store.PutChat(*c); err != nil {
		return err
	}
	if incremented {
		r.notifier.Notify(u.ChatID, u.MsgID, u.Name, u.Snippet)
	}
	return nil
}

var statusRank = map[string]int{
	event.StatusPending:   0,
	event.StatusSent:      1,
	event.StatusDelivered: 2,
	event.StatusRead:      3,
}

// ApplyStatus advances local status for the user's own outgoing
// messages. Transitions are monotonic; read is terminal.
func (r *Reconciler) ApplyStatus(s event.Status) error {
	for _, d := range s.Details {
		_, err := r.store.UpdateMessage(d.MsgID, func(m *mirror.Message) {
			if statusRank[s.Status] > statusRank[m.Status] {
				m.Status = s.Status
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyReaction overwrites the stored aggregate; the server's map is
// authoritative.
func (r *Reconciler) ApplyReaction(u event.ReactionUpdate) error {
	_, err := r.store.UpdateMessage(u.MsgID, func(m *mirror.Message) {
		m.Reactions = u.Reactions
	})
	return err
}

// ApplyDeleted rewrites the local row the same way the server did.
func (r *Reconciler) ApplyDeleted(n event.DeleteNotice) error {
	_, err := r.store.UpdateMessage(n.MsgID, func(m *mirror.Message) {
		m.Deleted = true
		m.Kind = model.KindSystem
		m.Content = model.DeletedPlaceholder
		m.Reactions = nil
	})
	return err
}
