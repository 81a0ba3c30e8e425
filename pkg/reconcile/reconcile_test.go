package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/negi-jagdish/village-im/internal/model"
	"github.com/negi-jagdish/village-im/pkg/event"
	"github.com/negi-jagdish/village-im/pkg/mirror"
)

type recordAcker struct{ acks [][]int64 }

func (a *recordAcker) AckDelivered(ids []int64) { a.acks = append(a.acks, ids) }

type recordNotifier struct {
	calls []struct {
		chatID, msgID int64
		title, body   string
	}
}

func (n *recordNotifier) Notify(chatID, msgID int64, title, body string) {
	n.calls = append(n.calls, struct {
		chatID, msgID int64
		title, body   string
	}{chatID, msgID, title, body})
}

const selfID = int64(2)

func newRec(t *testing.T) (*Reconciler, *mirror.Store, *recordAcker, *recordNotifier) {
	t.Helper()
	st, err := mirror.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	acker := &recordAcker{}
	notifier := &recordNotifier{}
	return New(st, acker, notifier, selfID), st, acker, notifier
}

func liveMsg(id, chatID, senderID int64, content string, at int64) event.Message {
	return event.Message{
		MsgID: id, GroupID: chatID, SenderID: senderID,
		SenderName: "Alice", Kind: model.KindText, Content: content, CreatedAt: at,
	}
}

func TestApplyMessageIdempotent(t *testing.T) {
	r, st, acker, _ := newRec(t)
	m := liveMsg(1, 10, 1, "hi", 1000)

	require.NoError(t, r.ApplyMessage(m))
	require.NoError(t, r.ApplyMessage(m)) // redundant delivery

	msgs, err := st.ListMessages(10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1, "one stored row however often the event arrives")
	assert.Len(t, acker.acks, 1, "acked exactly once")
}

func TestApplyMessageSelfNoAckNoNotify(t *testing.T) {
	r, _, acker, notifier := newRec(t)
	require.NoError(t, r.ApplyMessage(liveMsg(1, 10, selfID, "mine", 1000)))
	assert.Empty(t, acker.acks)
	assert.Empty(t, notifier.calls)
}

func TestSyncBatchAcksNonSelfNonSystem(t *testing.T) {
	r, st, acker, _ := newRec(t)

	batch := event.SyncBatch{Messages: []event.Message{
		liveMsg(1, 10, 1, "a", 1000),
		liveMsg(2, 10, selfID, "b", 2000),
		{MsgID: 3, GroupID: 10, Kind: model.KindSystem, Content: "joined", CreatedAt: 3000},
		liveMsg(4, 11, 3, "c", 4000),
	}}
	require.NoError(t, r.ApplySyncBatch(batch))

	require.Len(t, acker.acks, 1, "one batched ack")
	assert.ElementsMatch(t, []int64{1, 4}, acker.acks[0])

	msgs, err := st.ListMessages(10)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestCatchUpAfterLiveConverges(t *testing.T) {
	r, st, _, _ := newRec(t)

	live := liveMsg(1, 10, 1, "hello", 1000)
	require.NoError(t, r.ApplyMessage(live))
	// The same message arrives again inside the catch-up batch.
	require.NoError(t, r.ApplySyncBatch(event.SyncBatch{Messages: []event.Message{live}}))

	msgs, err := st.ListMessages(10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestChatListUpdateUnreadRules(t *testing.T) {
	r, st, _, notifier := newRec(t)

	upd := event.ChatListUpdate{
		ChatID: 10, MsgID: 5, Name: "Alice", Kind: model.GroupKindPrivate,
		SenderID: 1, Snippet: "hi", SnippetKind: model.KindText, At: 1000,
	}

	// Chat not open, sender not self: unread increments and notifies.
	require.NoError(t, r.ApplyChatListUpdate(upd))
	c, _, _ := st.GetChat(10)
	assert.Equal(t, 1, c.Unread)
	require.Len(t, notifier.calls, 1)
	assert.Equal(t, int64(5), notifier.calls[0].msgID)
	assert.Equal(t, "Alice", notifier.calls[0].title)

	// Chat open: no increment, no notify, even for a new message.
	r.SetOpenChat(10)
	next := upd
	next.MsgID = 6
	require.NoError(t, r.ApplyChatListUpdate(next))
	c, _, _ = st.GetChat(10)
	assert.Equal(t, 1, c.Unread)
	assert.Len(t, notifier.calls, 1)

	// Own message: no increment either.
	r.SetOpenChat(0)
	own := upd
	own.MsgID = 7
	own.SenderID = selfID
	require.NoError(t, r.ApplyChatListUpdate(own))
	c, _, _ = st.GetChat(10)
	assert.Equal(t, 1, c.Unread)
}

func TestChatListUpdateRedeliveryCountsOnce(t *testing.T) {
	r, st, _, notifier := newRec(t)

	upd := event.ChatListUpdate{
		ChatID: 10, MsgID: 5, Name: "Alice", Kind: model.GroupKindPrivate,
		SenderID: 1, Snippet: "hi", SnippetKind: model.KindText, At: 1000,
	}
	require.NoError(t, r.ApplyChatListUpdate(upd))
	require.NoError(t, r.ApplyChatListUpdate(upd)) // redundant delivery

	c, _, _ := st.GetChat(10)
	assert.Equal(t, 1, c.Unread, "one badge however often the update arrives")
	assert.Len(t, notifier.calls, 1)

	// A stale update overtaken by a newer one neither counts nor
	// regresses the snippet.
	newer := upd
	newer.MsgID = 6
	newer.Snippet = "latest"
	require.NoError(t, r.ApplyChatListUpdate(newer))
	require.NoError(t, r.ApplyChatListUpdate(upd))

	c, _, _ = st.GetChat(10)
	assert.Equal(t, 2, c.Unread)
	assert.Equal(t, "latest", c.Snippet)
}

func TestStatusMonotonic(t *testing.T) {
	r, st, _, _ := newRec(t)
	require.NoError(t, r.ApplyMessage(liveMsg(1, 10, selfID, "mine", 1000)))

	apply := func(status string, ids ...int64) {
		details := make([]event.StatusDetail, 0, len(ids))
		for _, id := range ids {
			details = append(details, event.StatusDetail{MsgID: id})
		}
		require.NoError(t, r.ApplyStatus(event.Status{Status: status, Details: details}))
	}

	apply(event.StatusSent, 1)
	apply(event.StatusRead, 1)
	// A late delivered ack must not regress read.
	apply(event.StatusDelivered, 1)

	m, ok, err := st.GetMessage(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, event.StatusRead, m.Status)

	// Status for an unknown message is a no-op, not an error.
	apply(event.StatusDelivered, 404)
}

func TestReactionOverwrite(t *testing.T) {
	r, st, _, _ := newRec(t)
	require.NoError(t, r.ApplyMessage(liveMsg(1, 10, 1, "hi", 1000)))

	require.NoError(t, r.ApplyReaction(event.ReactionUpdate{
		MsgID: 1, Reactions: map[string][]int64{"👍": {2, 3}},
	}))
	require.NoError(t, r.ApplyReaction(event.ReactionUpdate{
		MsgID: 1, Reactions: map[string][]int64{"❤️": {3}},
	}))

	m, _, err := st.GetMessage(1)
	require.NoError(t, err)
	assert.Equal(t, map[string][]int64{"❤️": {3}}, m.Reactions, "server map replaces, never merges")
}

func TestDeleteNotice(t *testing.T) {
	r, st, _, _ := newRec(t)
	require.NoError(t, r.ApplyMessage(liveMsg(1, 10, 1, "secret", 1000)))

	require.NoError(t, r.ApplyDeleted(event.DeleteNotice{MsgID: 1, GroupID: 10}))

	m, _, err := st.GetMessage(1)
	require.NoError(t, err)
	assert.True(t, m.Deleted)
	assert.Equal(t, model.DeletedPlaceholder, m.Content)
	assert.Equal(t, model.KindSystem, m.Kind)
}
