// Package ws owns the websocket surface: handshake auth, the catch-up
// push on connect and the per-connection read loop dispatching
// client-sent events.
package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/negi-jagdish/village-im/internal/hub"
	"github.com/negi-jagdish/village-im/pkg/event"
)

type chatService interface {
	CatchUp(ctx context.Context, userID int64) ([]event.Message, error)
	MarkDelivered(ctx context.Context, msgIDs []int64, recipientID int64) error
	Typing(ctx context.Context, userID int64, room string, isTyping bool)
}

type verifier interface {
	FromRequest(r *http.Request) string
	Verify(ctx context.Context, token string) (int64, error)
}

type presenceStore interface {
	Touch(ctx context.Context, userID int64) error
}

type Gateway struct {
	hub      *hub.Hub
	chat     chatService
	auth     verifier
	presence presenceStore
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func New(h *hub.Hub, chat chatService, auth verifier, presence presenceStore, log *zap.Logger) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		hub:      h,
		chat:     chat,
		auth:     auth,
		presence: presence,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The app talks to its own server; the token is the gate.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handle authenticates, upgrades and runs the connection to completion.
func (g *Gateway) Handle(w http.ResponseWriter, r *http.Request) {
	userID, err := g.auth.Verify(r.Context(), g.auth.FromRequest(r))
	if err != nil {
		// Rejected before any room join.
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("upgrade failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}

	conn := g.hub.Register(userID, sock)
	_ = g.presence.Touch(r.Context(), userID)
	g.log.Info("connected", zap.Int64("user_id", userID))

	g.sendCatchUp(r.Context(), conn, userID)
	g.readLoop(sock, conn, userID)

	g.hub.Unregister(conn)
	_ = g.presence.Touch(context.Background(), userID)
	g.log.Info("disconnected", zap.Int64("user_id", userID))
}

func (g *Gateway) sendCatchUp(ctx context.Context, conn *hub.Conn, userID int64) {
	msgs, err := g.chat.CatchUp(ctx, userID)
	if err != nil {
		// Catch-up is recoverable: the client can reconnect and retry.
		g.log.Warn("catch-up failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}
	conn.Send(event.Envelope{Event: event.SyncMessages, Data: event.SyncBatch{Messages: msgs}})
}

// inbound defers Data decoding until the event name is known.
type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func (g *Gateway) readLoop(sock *websocket.Conn, conn *hub.Conn, userID int64) {
	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			return
		}
		var in inbound
		if err := json.Unmarshal(raw, &in); err != nil {
			g.log.Warn("bad frame", zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		g.dispatch(conn, userID, in)
	}
}

func (g *Gateway) dispatch(conn *hub.Conn, userID int64, in inbound) {
	ctx := context.Background()
	switch in.Event {
	case event.JoinRoom:
		var room string
		if json.Unmarshal(in.Data, &room) == nil && room != "" {
			g.hub.JoinRoom(conn, room)
		}
	case event.LeaveRoom:
		var room string
		if json.Unmarshal(in.Data, &room) == nil && room != "" {
			g.hub.LeaveRoom(conn, room)
		}
	case event.Typing:
		var req event.TypingRequest
		if json.Unmarshal(in.Data, &req) == nil && req.Room != "" {
			g.chat.Typing(ctx, userID, req.Room, req.IsTyping)
		}
	case event.MessagesDelivered:
		var ids []int64
		if json.Unmarshal(in.Data, &ids) != nil {
			// Tolerate the object form {"messageIds": [...]}.
			var req event.DeliveredRequest
			if json.Unmarshal(in.Data, &req) != nil {
				return
			}
			ids = req.MessageIDs
		}
		if len(ids) == 0 {
			return
		}
		if err := g.chat.MarkDelivered(ctx, ids, userID); err != nil {
			g.log.Warn("mark delivered", zap.Int64("user_id", userID), zap.Error(err))
		}
	default:
		g.log.Debug("unknown event", zap.String("event", in.Event), zap.Int64("user_id", userID))
	}
}
