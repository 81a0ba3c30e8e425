package chat

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/negi-jagdish/village-im/internal/model"
	"github.com/negi-jagdish/village-im/pkg/event"
	"github.com/negi-jagdish/village-im/pkg/push"
)

// memStore is a single in-memory fake backing every store interface.
type memStore struct {
	mu sync.Mutex

	messages  map[int64]*model.Message
	groups    map[int64]*model.Group
	members   map[int64]map[int64]string // group -> user -> role
	profiles  map[int64]model.Profile
	reactions map[int64][]model.ReactionRow
	delivered map[[2]int64]bool
	read      map[[2]int64]bool
	tokens    map[int64]string

	clock time.Time
}

func newMemStore() *memStore {
	return &memStore{
		messages:  make(map[int64]*model.Message),
		groups:    make(map[int64]*model.Group),
		members:   make(map[int64]map[int64]string),
		profiles:  make(map[int64]model.Profile),
		reactions: make(map[int64][]model.ReactionRow),
		delivered: make(map[[2]int64]bool),
		read:      make(map[[2]int64]bool),
		tokens:    make(map[int64]string),
		clock:     time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so ordering is stable.
func (st *memStore) tick() time.Time {
	st.clock = st.clock.Add(time.Second)
	return st.clock
}

func (st *memStore) addGroup(id int64, kind string, memberRoles map[int64]string) {
	st.groups[id] = &model.Group{GroupID: id, Name: "g-name", Kind: kind, Icon: "g-icon"}
	st.members[id] = memberRoles
}

// --- MessageStore ---

func (st *memStore) Insert(_ context.Context, m *model.Message) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	cp := *m
	cp.CreatedAt = st.tick()
	st.messages[m.MsgID] = &cp
	return nil
}

func (st *memStore) Get(_ context.Context, msgID int64) (*model.Message, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.messages[msgID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *m
	return &cp, nil
}

func (st *memStore) view(m *model.Message) *model.MessageView {
	v := &model.MessageView{Message: *m}
	if m.SenderID.Valid {
		p := st.profiles[m.SenderID.Int64]
		v.SenderName, v.SenderAvatar = p.Nickname, p.Avatar
	}
	if m.ReplyTo.Valid {
		if parent, ok := st.messages[m.ReplyTo.Int64]; ok {
			v.ReplyContent = sql.NullString{String: parent.Content, Valid: true}
			if parent.SenderID.Valid {
				v.ReplySender = sql.NullString{String: st.profiles[parent.SenderID.Int64].Nickname, Valid: true}
			}
		}
	}
	return v
}

func (st *memStore) GetView(_ context.Context, msgID int64) (*model.MessageView, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.messages[msgID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return st.view(m), nil
}

func (st *memStore) ListWindow(_ context.Context, groupIDs []int64, since time.Time) ([]model.MessageView, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	in := make(map[int64]bool, len(groupIDs))
	for _, id := range groupIDs {
		in[id] = true
	}
	var out []model.MessageView
	for _, m := range st.messages {
		if in[m.GroupID] && m.CreatedAt.After(since) {
			out = append(out, *st.view(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (st *memStore) ListByGroup(_ context.Context, groupID int64, before time.Time, limit int) ([]model.MessageView, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []model.MessageView
	for _, m := range st.messages {
		if m.GroupID == groupID && m.CreatedAt.Before(before) {
			out = append(out, *st.view(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (st *memStore) SoftDelete(_ context.Context, msgID int64) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	m, ok := st.messages[msgID]
	if !ok || m.Deleted {
		return sql.ErrNoRows
	}
	m.Deleted = true
	m.Kind = model.KindSystem
	m.Content = model.DeletedPlaceholder
	return nil
}

// --- ReceiptStore ---

func (st *memStore) MarkDelivered(_ context.Context, msgIDs []int64, userID int64) ([]int64, error) {
	return st.markPairs(st.delivered, msgIDs, userID), nil
}

func (st *memStore) MarkRead(_ context.Context, msgIDs []int64, userID int64) ([]int64, error) {
	return st.markPairs(st.read, msgIDs, userID), nil
}

func (st *memStore) markPairs(set map[[2]int64]bool, msgIDs []int64, userID int64) []int64 {
	st.mu.Lock()
	defer st.mu.Unlock()
	var inserted []int64
	for _, id := range msgIDs {
		k := [2]int64{id, userID}
		if !set[k] {
			set[k] = true
			inserted = append(inserted, id)
		}
	}
	return inserted
}

// --- ReactionStore (mirrors the unique-key toggle contract) ---

func (st *memStore) Toggle(_ context.Context, msgID, userID int64, symbol string) (model.ReactionMap, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	rows := st.reactions[msgID]
	kept := rows[:0]
	withdrew := false
	for _, r := range rows {
		if r.UserID == userID {
			withdrew = r.Symbol == symbol
			continue // single reaction per user: old row always goes
		}
		kept = append(kept, r)
	}
	if !withdrew {
		kept = append(kept, model.ReactionRow{MsgID: msgID, UserID: userID, Symbol: symbol, CreatedAt: st.tick()})
	}
	st.reactions[msgID] = kept
	return model.BuildReactionMap(kept), nil
}

func (st *memStore) ListRows(_ context.Context, msgID int64) ([]model.ReactionRow, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]model.ReactionRow(nil), st.reactions[msgID]...), nil
}

// --- DeviceStore ---

func (st *memStore) Upsert(_ context.Context, userID int64, token string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.tokens[userID] = token
	return nil
}

func (st *memStore) TokensFor(_ context.Context, userIDs []int64) (map[int64]string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make(map[int64]string)
	for _, uid := range userIDs {
		if t, ok := st.tokens[uid]; ok {
			out[uid] = t
		}
	}
	return out, nil
}

// --- group methods implementing GroupStore ---

type memGroups struct{ st *memStore }

func (g memGroups) Insert(_ context.Context, gr *model.Group) error {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	g.st.groups[gr.GroupID] = gr
	g.st.members[gr.GroupID] = map[int64]string{}
	return nil
}

func (g memGroups) Get(_ context.Context, groupID int64) (*model.Group, error) {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	gr, ok := g.st.groups[groupID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *gr
	return &cp, nil
}

func (g memGroups) FindPrivatePair(_ context.Context, a, b int64) (int64, bool, error) {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	for gid, gr := range g.st.groups {
		if gr.Kind != model.GroupKindPrivate {
			continue
		}
		ms := g.st.members[gid]
		if _, okA := ms[a]; okA {
			if _, okB := ms[b]; okB {
				return gid, true, nil
			}
		}
	}
	return 0, false, nil
}

func (g memGroups) ListBroadcastIDs(_ context.Context) ([]int64, error) {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	var out []int64
	for gid, gr := range g.st.groups {
		if gr.Kind == model.GroupKindBroadcast {
			out = append(out, gid)
		}
	}
	return out, nil
}

func (g memGroups) AddMember(_ context.Context, groupID, userID int64, role string) error {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	if _, ok := g.st.members[groupID][userID]; !ok {
		g.st.members[groupID][userID] = role
	}
	return nil
}

func (g memGroups) RemoveMember(_ context.Context, groupID, userID int64) error {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	if _, ok := g.st.members[groupID][userID]; !ok {
		return sql.ErrNoRows
	}
	delete(g.st.members[groupID], userID)
	return nil
}

func (g memGroups) UpdateRole(_ context.Context, groupID, userID int64, role string) error {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	if _, ok := g.st.members[groupID][userID]; !ok {
		return sql.ErrNoRows
	}
	g.st.members[groupID][userID] = role
	return nil
}

func (g memGroups) IsMember(_ context.Context, groupID, userID int64) (bool, error) {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	_, ok := g.st.members[groupID][userID]
	return ok, nil
}

func (g memGroups) MemberRole(_ context.Context, groupID, userID int64) (string, error) {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	role, ok := g.st.members[groupID][userID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return role, nil
}

func (g memGroups) ListMemberIDs(_ context.Context, groupID int64, _ int) ([]int64, error) {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	var out []int64
	for uid := range g.st.members[groupID] {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (g memGroups) ListGroupIDsOf(_ context.Context, userID int64) ([]int64, error) {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	var out []int64
	for gid, ms := range g.st.members {
		if _, ok := ms[userID]; ok {
			out = append(out, gid)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (g memGroups) OtherPrivateMember(_ context.Context, groupID, viewerID int64) (int64, error) {
	g.st.mu.Lock()
	defer g.st.mu.Unlock()
	for uid := range g.st.members[groupID] {
		if uid != viewerID {
			return uid, nil
		}
	}
	return 0, sql.ErrNoRows
}

// --- MemberStore ---

type memMembers struct{ st *memStore }

func (m memMembers) Get(_ context.Context, userID int64) (*model.Profile, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	p, ok := m.st.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m memMembers) List(_ context.Context, userIDs []int64) ([]model.Profile, error) {
	m.st.mu.Lock()
	defer m.st.mu.Unlock()
	var out []model.Profile
	for _, uid := range userIDs {
		if p, ok := m.st.profiles[uid]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- hub / push fakes ---

type sentEvent struct {
	room   string // "" for SendUser
	userID int64
	env    event.Envelope
}

type fakeHub struct {
	mu     sync.Mutex
	events []sentEvent
	inRoom map[int64]string // user -> room they are viewing
}

func (h *fakeHub) Broadcast(room string, env event.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{room: room, env: env})
}

func (h *fakeHub) BroadcastExcept(room string, _ int64, env event.Envelope) {
	h.Broadcast(room, env)
}

func (h *fakeHub) SendUser(userID int64, env event.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{userID: userID, env: env})
}

func (h *fakeHub) InRoom(userID int64, room string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inRoom[userID] == room
}

func (h *fakeHub) byEvent(name string) []sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []sentEvent
	for _, e := range h.events {
		if e.env.Event == name {
			out = append(out, e)
		}
	}
	return out
}

type fakePusher struct {
	mu   sync.Mutex
	sent []push.Notification
}

func (p *fakePusher) Enqueue(n push.Notification) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return true
}

type seqIDs struct{ n uint64 }

func (s *seqIDs) NextID() (uint64, error) { s.n++; return s.n, nil }

// newTestService wires a service over the in-memory fakes.
func newTestService(st *memStore, h *fakeHub, p Pusher) *Service {
	svc := New(Options{
		Messages:  st,
		Groups:    memGroups{st},
		Members:   memMembers{st},
		Receipts:  st,
		Reactions: st,
		Devices:   st,
		Hub:       h,
		Push:      p,
		IDs:       &seqIDs{},
		Horizon:   3 * 24 * time.Hour,
	})
	svc.now = func() time.Time { return st.clock }
	return svc
}
