// Package mirror is the client-side persistent replica of server chat
// state, backed by pebble. Two record families — chat summaries and
// messages — share one keyspace with no referential check between them:
// a message may land before its chat summary exists, and vice versa
// (arrival-order independence is the point).
//
// Keys:
//
//	chat:{chatID}                     -> ChatSummary JSON
//	msg:{chatID}:{paddedMillis}:{id}  -> Message JSON (scan-ordered)
//	msgid:{id}                        -> the msg: key (existence index)
package mirror

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
)

// MuteAlways is the sentinel for a permanently muted chat; zero means
// not muted; any other value is an expiry in unix millis.
const MuteAlways int64 = -1

type ChatSummary struct {
	ChatID      int64  `json:"chatId"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Kind        string `json:"kind"`
	Snippet     string `json:"snippet"`
	SnippetKind string `json:"snippetKind"`
	LastAt      int64  `json:"lastAt"`
	// LastMsgID is the newest message id reflected in this summary; ids
	// are time-ordered, so an update carrying an id at or below it is a
	// redelivery, not news.
	LastMsgID int64 `json:"lastMsgId,omitempty"`
	Unread    int   `json:"unread"`
	Pinned      bool   `json:"pinned,omitempty"`
	MuteUntil   int64  `json:"muteUntil,omitempty"`
	Tone        string `json:"tone,omitempty"`
	Vibrate     bool   `json:"vibrate,omitempty"`
}

// Message is the locally stored replica row. Status applies only to the
// viewing user's own outgoing messages.
type Message struct {
	MsgID        int64              `json:"messageId"`
	ChatID       int64              `json:"chatId"`
	SenderID     int64              `json:"senderId,omitempty"`
	SenderName   string             `json:"senderName,omitempty"`
	Kind         string             `json:"kind"`
	Content      string             `json:"content"`
	ReplyTo      int64              `json:"replyTo,omitempty"`
	ReplyContent string             `json:"replyContent,omitempty"`
	Forwarded    bool               `json:"forwarded,omitempty"`
	Deleted      bool               `json:"deleted,omitempty"`
	Reactions    map[string][]int64 `json:"reactions,omitempty"`
	Status       string             `json:"status,omitempty"`
	CreatedAt    int64              `json:"createdAt"`
}

// Store serializes all writes through one mutex so back-to-back events
// never interleave partial updates. Readers observe the refresh
// generation to learn when to re-read.
type Store struct {
	db  *pebble.DB
	mu  sync.Mutex
	gen atomic.Int64
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Generation increases after every mutation; UI layers poll it instead
// of being called back on each write.
func (s *Store) Generation() int64 { return s.gen.Load() }

func chatKey(chatID int64) []byte {
	return []byte("chat:" + strconv.FormatInt(chatID, 10))
}

func msgKey(chatID, createdAt, msgID int64) []byte {
	return []byte(fmt.Sprintf("msg:%d:%020d:%d", chatID, createdAt, msgID))
}

func msgIDKey(msgID int64) []byte {
	return []byte("msgid:" + strconv.FormatInt(msgID, 10))
}

// InsertMessage is insert-or-ignore: a message id that already exists
// leaves the store untouched and reports inserted=false, so redundant
// delivery never duplicates rows.
func (s *Store) InsertMessage(m Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idxKey := msgIDKey(m.MsgID)
	_, closer, err := s.db.Get(idxKey)
	if err == nil {
		_ = closer.Close()
		return false, nil
	}
	if err != pebble.ErrNotFound {
		return false, err
	}

	key := msgKey(m.ChatID, m.CreatedAt, m.MsgID)
	val, err := json.Marshal(m)
	if err != nil {
		return false, err
	}
	b := s.db.NewBatch()
	_ = b.Set(key, val, nil)
	_ = b.Set(idxKey, key, nil)
	if err := b.Commit(pebble.Sync); err != nil {
		return false, err
	}
	s.gen.Add(1)
	return true, nil
}

// GetMessage looks a message up by id through the existence index.
func (s *Store) GetMessage(msgID int64) (*Message, bool, error) {
	keyVal, closer, err := s.db.Get(msgIDKey(msgID))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	key := append([]byte(nil), keyVal...)
	_ = closer.Close()

	val, closer, err := s.db.Get(key)
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	var m Message
	if err := json.Unmarshal(val, &m); err != nil {
		return nil, false, err
	}
	return &m, true, nil
}

// UpdateMessage applies fn to the stored row, if present. The row keeps
// its key; CreatedAt and ids must not change.
func (s *Store) UpdateMessage(msgID int64, fn func(*Message)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok, err := s.GetMessage(msgID)
	if err != nil || !ok {
		return false, err
	}
	fn(m)
	val, err := json.Marshal(m)
	if err != nil {
		return false, err
	}
	if err := s.db.Set(msgKey(m.ChatID, m.CreatedAt, m.MsgID), val, pebble.Sync); err != nil {
		return false, err
	}
	s.gen.Add(1)
	return true, nil
}

func (s *Store) GetChat(chatID int64) (*ChatSummary, bool, error) {
	val, closer, err := s.db.Get(chatKey(chatID))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	var c ChatSummary
	if err := json.Unmarshal(val, &c); err != nil {
		return nil, false, err
	}
	return &c, true, nil
}

func (s *Store) PutChat(c ChatSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.db.Set(chatKey(c.ChatID), val, pebble.Sync); err != nil {
		return err
	}
	s.gen.Add(1)
	return nil
}

// ListMessages returns a chat's messages in creation order (key order).
func (s *Store) ListMessages(chatID int64) ([]Message, error) {
	prefix := []byte(fmt.Sprintf("msg:%d:", chatID))
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte(nil), prefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Message
	for iter.First(); iter.Valid(); iter.Next() {
		var m Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// ListChats returns every chat summary, unordered; callers sort by
// pin/recency for display.
func (s *Store) ListChats() ([]ChatSummary, error) {
	prefix := []byte("chat:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte(nil), prefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []ChatSummary
	for iter.First(); iter.Valid(); iter.Next() {
		var c ChatSummary
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, iter.Error()
}
