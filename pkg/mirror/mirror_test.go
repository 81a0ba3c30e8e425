package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertMessageIgnoresDuplicates(t *testing.T) {
	s := openStore(t)

	m := Message{MsgID: 1, ChatID: 10, Content: "hi", CreatedAt: 1000}
	ins, err := s.InsertMessage(m)
	require.NoError(t, err)
	assert.True(t, ins)

	// Same id again, even with different content: ignored.
	dup := m
	dup.Content = "changed"
	ins, err = s.InsertMessage(dup)
	require.NoError(t, err)
	assert.False(t, ins)

	msgs, err := s.ListMessages(10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestMessagesOrderedByCreation(t *testing.T) {
	s := openStore(t)

	// Inserted out of order; key padding restores creation order.
	_, err := s.InsertMessage(Message{MsgID: 3, ChatID: 10, CreatedAt: 3000})
	require.NoError(t, err)
	_, err = s.InsertMessage(Message{MsgID: 1, ChatID: 10, CreatedAt: 1000})
	require.NoError(t, err)
	_, err = s.InsertMessage(Message{MsgID: 2, ChatID: 10, CreatedAt: 2000})
	require.NoError(t, err)
	_, err = s.InsertMessage(Message{MsgID: 9, ChatID: 99, CreatedAt: 500})
	require.NoError(t, err)

	msgs, err := s.ListMessages(10)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{msgs[0].MsgID, msgs[1].MsgID, msgs[2].MsgID})
}

func TestMessageBeforeChatSummary(t *testing.T) {
	s := openStore(t)

	// No FK: a message may arrive before its chat summary exists.
	_, err := s.InsertMessage(Message{MsgID: 1, ChatID: 77, CreatedAt: 1})
	require.NoError(t, err)

	_, ok, err := s.GetChat(77)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutChat(ChatSummary{ChatID: 77, Name: "late"}))
	c, ok, err := s.GetChat(77)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "late", c.Name)
}

func TestUpdateMessage(t *testing.T) {
	s := openStore(t)

	_, err := s.InsertMessage(Message{MsgID: 5, ChatID: 10, Content: "x", CreatedAt: 100})
	require.NoError(t, err)

	ok, err := s.UpdateMessage(5, func(m *Message) {
		m.Status = "read"
		m.Reactions = map[string][]int64{"👍": {2}}
	})
	require.NoError(t, err)
	assert.True(t, ok)

	m, found, err := s.GetMessage(5)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "read", m.Status)
	assert.Equal(t, []int64{2}, m.Reactions["👍"])

	ok, err = s.UpdateMessage(404, func(*Message) {})
	require.NoError(t, err)
	assert.False(t, ok, "updating a missing message is a reported no-op")
}

func TestGenerationBumpsOnEveryMutation(t *testing.T) {
	s := openStore(t)
	g0 := s.Generation()

	_, _ = s.InsertMessage(Message{MsgID: 1, ChatID: 1, CreatedAt: 1})
	g1 := s.Generation()
	assert.Greater(t, g1, g0)

	// Ignored duplicate must not signal a refresh.
	_, _ = s.InsertMessage(Message{MsgID: 1, ChatID: 1, CreatedAt: 1})
	assert.Equal(t, g1, s.Generation())

	_ = s.PutChat(ChatSummary{ChatID: 1})
	assert.Greater(t, s.Generation(), g1)
}
