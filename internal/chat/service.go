// Package chat is the service layer between transports (ws, REST) and
// storage. Every mutation persists first and broadcasts after, so a
// broadcast always reflects committed state; broadcast and push failures
// are logged and swallowed.
package chat

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/sony/sonyflake"
	"go.uber.org/zap"

	"github.com/negi-jagdish/village-im/internal/errs"
	"github.com/negi-jagdish/village-im/internal/metrics"
	"github.com/negi-jagdish/village-im/internal/model"
	"github.com/negi-jagdish/village-im/pkg/event"
	"github.com/negi-jagdish/village-im/pkg/push"
)

// Storage and transport slices consumed by the service. The concrete
// implementations live in internal/repo and internal/hub; tests plug in
// fakes.
type MessageStore interface {
	Insert(ctx context.Context, m *model.Message) error
	Get(ctx context.Context, msgID int64) (*model.Message, error)
	GetView(ctx context.Context, msgID int64) (*model.MessageView, error)
	ListWindow(ctx context.Context, groupIDs []int64, since time.Time) ([]model.MessageView, error)
	ListByGroup(ctx context.Context, groupID int64, before time.Time, limit int) ([]model.MessageView, error)
	SoftDelete(ctx context.Context, msgID int64) error
}

type GroupStore interface {
	Insert(ctx context.Context, g *model.Group) error
	Get(ctx context.Context, groupID int64) (*model.Group, error)
	FindPrivatePair(ctx context.Context, a, b int64) (int64, bool, error)
	ListBroadcastIDs(ctx context.Context) ([]int64, error)
	AddMember(ctx context.Context, groupID, userID int64, role string) error
	RemoveMember(ctx context.Context, groupID, userID int64) error
	UpdateRole(ctx context.Context, groupID, userID int64, role string) error
	IsMember(ctx context.Context, groupID, userID int64) (bool, error)
	MemberRole(ctx context.Context, groupID, userID int64) (string, error)
	ListMemberIDs(ctx context.Context, groupID int64, limit int) ([]int64, error)
	ListGroupIDsOf(ctx context.Context, userID int64) ([]int64, error)
	OtherPrivateMember(ctx context.Context, groupID, viewerID int64) (int64, error)
}

type MemberStore interface {
	Get(ctx context.Context, userID int64) (*model.Profile, error)
	List(ctx context.Context, userIDs []int64) ([]model.Profile, error)
}

type ReceiptStore interface {
	MarkDelivered(ctx context.Context, msgIDs []int64, userID int64) ([]int64, error)
	MarkRead(ctx context.Context, msgIDs []int64, userID int64) ([]int64, error)
}

type ReactionStore interface {
	Toggle(ctx context.Context, msgID, userID int64, symbol string) (model.ReactionMap, error)
	ListRows(ctx context.Context, msgID int64) ([]model.ReactionRow, error)
}

type DeviceStore interface {
	Upsert(ctx context.Context, userID int64, token string) error
	TokensFor(ctx context.Context, userIDs []int64) (map[int64]string, error)
}

type Broadcaster interface {
	Broadcast(room string, env event.Envelope)
	BroadcastExcept(room string, exceptUserID int64, env event.Envelope)
	SendUser(userID int64, env event.Envelope)
	InRoom(userID int64, room string) bool
}

// Pusher is pkg/push.Queue; nil disables push entirely.
type Pusher interface {
	Enqueue(n push.Notification) bool
}

type IDGen interface {
	NextID() (uint64, error)
}

type Options struct {
	Messages  MessageStore
	Groups    GroupStore
	Members   MemberStore
	Receipts  ReceiptStore
	Reactions ReactionStore
	Devices   DeviceStore
	Hub       Broadcaster
	Push      Pusher
	IDs       IDGen
	Horizon   time.Duration // catch-up window, mirrors the retention horizon
	Logger    *zap.Logger
}

type Service struct {
	opts Options
	now  func() time.Time
}

func New(opts Options) *Service {
	if opts.IDs == nil {
		opts.IDs = sonyflake.NewSonyflake(sonyflake.Settings{})
	}
	if opts.Horizon <= 0 {
		opts.Horizon = 3 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{opts: opts, now: time.Now}
}

// SendRequest carries one outbound message from a transport layer.
type SendRequest struct {
	GroupID   int64
	SenderID  int64
	Kind      string
	Content   string
	Metadata  map[string]string
	ReplyTo   int64
	Forwarded bool
}

// SendMessage persists and fans out one user message per the ingestion
// contract: membership precondition, persist, room broadcast, sender
// "sent" status, per-recipient chat-list update, best-effort push.
func (s *Service) SendMessage(ctx context.Context, req SendRequest) (*event.Message, error) {
	ok, err := s.opts.Groups.IsMember(ctx, req.GroupID, req.SenderID)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	if !ok {
		return nil, errs.ErrNotMember
	}

	if req.Kind == "" {
		req.Kind = model.KindText
	}
	m := &model.Message{
		GroupID:   req.GroupID,
		SenderID:  sql.NullInt64{Int64: req.SenderID, Valid: true},
		Kind:      req.Kind,
		Content:   req.Content,
		Forwarded: req.Forwarded,
	}
	if req.ReplyTo > 0 {
		m.ReplyTo = sql.NullInt64{Int64: req.ReplyTo, Valid: true}
	}
	if len(req.Metadata) > 0 {
		b, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, errs.ErrTransient.Wrap(err)
		}
		m.Metadata = sql.NullString{String: string(b), Valid: true}
	}

	wire, err := s.persistAndRead(ctx, m)
	if err != nil {
		return nil, err
	}

	// Single-tick ack scoped to the sender, not the room.
	s.opts.Hub.SendUser(req.SenderID, event.Envelope{
		Event: event.StatusUpdate,
		Data: event.Status{
			Status:  event.StatusSent,
			Details: []event.StatusDetail{{MsgID: wire.MsgID}},
		},
	})

	s.fanout(ctx, wire)
	return wire, nil
}

// persistAndRead assigns an id, inserts the row and re-reads it joined
// with display data. Shared by user sends and system messages.
func (s *Service) persistAndRead(ctx context.Context, m *model.Message) (*event.Message, error) {
	id, err := s.opts.IDs.NextID()
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	m.MsgID = int64(id)

	if err := s.opts.Messages.Insert(ctx, m); err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	metrics.MessagesIngested.Inc()

	v, err := s.opts.Messages.GetView(ctx, m.MsgID)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	return toWire(v), nil
}

// fanout broadcasts to the group room, updates every other member's chat
// list and triggers push. Failures past this point are logged only; the
// message is durable and catch-up will deliver it.
func (s *Service) fanout(ctx context.Context, wire *event.Message) {
	room := event.GroupRoom(wire.GroupID)
	s.opts.Hub.Broadcast(room, event.Envelope{Event: event.Receive, Data: wire})

	g, err := s.opts.Groups.Get(ctx, wire.GroupID)
	if err != nil {
		s.opts.Logger.Warn("fanout: load group", zap.Int64("group_id", wire.GroupID), zap.Error(err))
		return
	}
	memberIDs, err := s.opts.Groups.ListMemberIDs(ctx, wire.GroupID, 0)
	if err != nil {
		s.opts.Logger.Warn("fanout: list members", zap.Int64("group_id", wire.GroupID), zap.Error(err))
		return
	}

	recipients := make([]int64, 0, len(memberIDs))
	for _, uid := range memberIDs {
		if uid == wire.SenderID {
			continue
		}
		recipients = append(recipients, uid)

		name, icon := s.displayFor(ctx, g, uid)
		s.opts.Hub.SendUser(uid, event.Envelope{
			Event: event.ChatList,
			Data: event.ChatListUpdate{
				ChatID:      g.GroupID,
				MsgID:       wire.MsgID,
				Name:        name,
				Icon:        icon,
				Kind:        g.Kind,
				SenderID:    wire.SenderID,
				Snippet:     wire.Content,
				SnippetKind: wire.Kind,
				At:          wire.CreatedAt,
			},
		})
	}

	if wire.Kind != model.KindSystem {
		s.pushFanout(ctx, g, wire, recipients)
	}
}

// pushFanout enqueues one notification per offline-or-elsewhere
// recipient. Members with the chat open get nothing; the live broadcast
// already reached them.
func (s *Service) pushFanout(ctx context.Context, g *model.Group, wire *event.Message, recipients []int64) {
	if s.opts.Push == nil || len(recipients) == 0 {
		return
	}
	room := event.GroupRoom(g.GroupID)
	targets := make([]int64, 0, len(recipients))
	for _, uid := range recipients {
		if s.opts.Hub.InRoom(uid, room) {
			continue
		}
		targets = append(targets, uid)
	}
	if len(targets) == 0 {
		return
	}

	tokens, err := s.opts.Devices.TokensFor(ctx, targets)
	if err != nil {
		s.opts.Logger.Warn("push: load tokens", zap.Error(err))
		return
	}
	for _, uid := range targets {
		tok, ok := tokens[uid]
		if !ok {
			continue
		}
		title, _ := s.displayFor(ctx, g, uid)
		body := wire.Content
		if g.Kind != model.GroupKindPrivate && wire.SenderName != "" {
			body = wire.SenderName + ": " + wire.Content
		}
		s.opts.Push.Enqueue(push.Notification{
			UserID: uid,
			Token:  tok,
			Title:  title,
			Body:   body,
			ChatID: g.GroupID,
			MsgID:  wire.MsgID,
			Kind:   g.Kind,
		})
	}
}

// displayFor resolves the chat name/icon a given viewer should see: for
// private chats always the other member's profile, never the group's
// generic fields.
func (s *Service) displayFor(ctx context.Context, g *model.Group, viewerID int64) (string, string) {
	if g.Kind != model.GroupKindPrivate {
		return g.Name, g.Icon
	}
	other, err := s.opts.Groups.OtherPrivateMember(ctx, g.GroupID, viewerID)
	if err != nil {
		return g.Name, g.Icon
	}
	p, err := s.opts.Members.Get(ctx, other)
	if err != nil {
		return g.Name, g.Icon
	}
	return p.Nickname, p.Avatar
}

// DeleteMessage soft-deletes: content becomes a system placeholder, the
// row stays until the sweep. Only the sender or a group admin may delete.
func (s *Service) DeleteMessage(ctx context.Context, actorID, msgID int64) error {
	m, err := s.opts.Messages.Get(ctx, msgID)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}
	if err != nil {
		return errs.ErrTransient.Wrap(err)
	}

	if !m.SenderID.Valid || m.SenderID.Int64 != actorID {
		role, err := s.opts.Groups.MemberRole(ctx, m.GroupID, actorID)
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotMember
		}
		if err != nil {
			return errs.ErrTransient.Wrap(err)
		}
		if role != model.RoleAdmin {
			return errs.ErrNotMember.WrapMsg("only the sender or an admin may delete")
		}
	}

	if err := s.opts.Messages.SoftDelete(ctx, msgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotFound.WrapMsg("already deleted")
		}
		return errs.ErrTransient.Wrap(err)
	}

	s.opts.Hub.Broadcast(event.GroupRoom(m.GroupID), event.Envelope{
		Event: event.Deleted,
		Data:  event.DeleteNotice{MsgID: msgID, GroupID: m.GroupID},
	})
	return nil
}

// History pages one group's transcript newest-first for the REST layer.
func (s *Service) History(ctx context.Context, userID, groupID int64, before time.Time, limit int) ([]event.Message, error) {
	ok, err := s.opts.Groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	if !ok {
		g, gerr := s.opts.Groups.Get(ctx, groupID)
		if gerr != nil || g.Kind != model.GroupKindBroadcast {
			return nil, errs.ErrNotMember
		}
	}
	if before.IsZero() {
		before = s.now()
	}
	views, err := s.opts.Messages.ListByGroup(ctx, groupID, before, limit)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	out := make([]event.Message, 0, len(views))
	for i := range views {
		out = append(out, *toWire(&views[i]))
	}
	return out, nil
}

// Typing relays a typing state to everyone else in the room.
func (s *Service) Typing(ctx context.Context, userID int64, room string, isTyping bool) {
	name := ""
	if p, err := s.opts.Members.Get(ctx, userID); err == nil {
		name = p.Nickname
	}
	s.opts.Hub.BroadcastExcept(room, userID, event.Envelope{
		Event: event.DisplayTyping,
		Data:  event.TypingNotice{UserID: userID, Name: name, IsTyping: isTyping},
	})
}

// RegisterDevice stores the push target for a user's current device.
func (s *Service) RegisterDevice(ctx context.Context, userID int64, token string) error {
	if err := s.opts.Devices.Upsert(ctx, userID, token); err != nil {
		return errs.ErrTransient.Wrap(err)
	}
	return nil
}

func toWire(v *model.MessageView) *event.Message {
	w := &event.Message{
		MsgID:        v.MsgID,
		GroupID:      v.GroupID,
		SenderName:   v.SenderName,
		SenderAvatar: v.SenderAvatar,
		Kind:         v.Kind,
		Content:      v.Content,
		Forwarded:    v.Forwarded,
		Deleted:      v.Deleted,
		CreatedAt:    v.CreatedAt.UnixMilli(),
	}
	if v.SenderID.Valid {
		w.SenderID = v.SenderID.Int64
	}
	if v.ReplyTo.Valid {
		w.ReplyTo = v.ReplyTo.Int64
		if v.ReplyContent.Valid {
			w.ReplyContent = v.ReplyContent.String
		}
		if v.ReplySender.Valid {
			w.ReplySender = v.ReplySender.String
		}
	}
	if v.Metadata.Valid && v.Metadata.String != "" {
		var md map[string]string
		if err := json.Unmarshal([]byte(v.Metadata.String), &md); err == nil {
			w.Metadata = md
		}
	}
	return w
}
