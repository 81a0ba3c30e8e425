// Package hub tracks live websocket connections and their room
// memberships, and fans serialized events out to them. It knows nothing
// about chats or storage; callers hand it room names and envelopes.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/negi-jagdish/village-im/internal/metrics"
	"github.com/negi-jagdish/village-im/pkg/event"
)

// socket is the slice of *websocket.Conn the hub needs. Tests substitute
// an in-memory fake.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type Options struct {
	// SendQueue bounds each connection's outbound buffer. A slow reader
	// whose queue fills loses events rather than stalling the fan-out;
	// it recovers them on reconnect through the catch-up sync.
	SendQueue    int
	WriteTimeout time.Duration
	Logger       *zap.Logger
}

type Hub struct {
	opts Options

	mu     sync.RWMutex
	rooms  map[string]map[*Conn]struct{}
	byUser map[int64]map[*Conn]struct{}
}

func New(opts Options) *Hub {
	if opts.SendQueue <= 0 {
		opts.SendQueue = 256
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Hub{
		opts:   opts,
		rooms:  make(map[string]map[*Conn]struct{}),
		byUser: make(map[int64]map[*Conn]struct{}),
	}
}

// Conn is one live connection. A user may hold several (phone + web);
// each gets every event addressed to the user or their rooms.
type Conn struct {
	UserID int64

	sock  socket
	out   chan []byte
	once  sync.Once
	hub   *Hub
	roomN map[string]struct{} // guarded by hub.mu
}

// Register creates a connection, joins the user's personal room and
// starts the write loop. The caller owns the read side.
func (h *Hub) Register(userID int64, sock socket) *Conn {
	c := &Conn{
		UserID: userID,
		sock:   sock,
		out:    make(chan []byte, h.opts.SendQueue),
		hub:    h,
		roomN:  make(map[string]struct{}),
	}

	h.mu.Lock()
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*Conn]struct{})
	}
	h.byUser[userID][c] = struct{}{}
	h.joinLocked(c, event.PersonalRoom(userID))
	h.mu.Unlock()

	metrics.OnlineConns.Inc()
	go c.writeLoop(h.opts.WriteTimeout)
	return c
}

// Unregister removes the connection from every room and closes its
// write loop. Safe to call more than once.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	for room := range c.roomN {
		h.leaveLocked(c, room)
	}
	if set := h.byUser[c.UserID]; set != nil {
		if _, ok := set[c]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byUser, c.UserID)
			}
			metrics.OnlineConns.Dec()
		}
	}
	h.mu.Unlock()

	c.once.Do(func() { close(c.out) })
}

// JoinRoom is idempotent; joining a room twice is a no-op.
func (h *Hub) JoinRoom(c *Conn, room string) {
	h.mu.Lock()
	h.joinLocked(c, room)
	h.mu.Unlock()
}

// LeaveRoom is idempotent; leaving a room the connection never joined
// is a no-op. The personal room cannot be left.
func (h *Hub) LeaveRoom(c *Conn, room string) {
	if room == event.PersonalRoom(c.UserID) {
		return
	}
	h.mu.Lock()
	h.leaveLocked(c, room)
	h.mu.Unlock()
}

func (h *Hub) joinLocked(c *Conn, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	c.roomN[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Conn, room string) {
	if set := h.rooms[room]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.roomN, room)
}

// Broadcast sends one envelope to every connection in the room. An
// empty room is silently a no-op.
func (h *Hub) Broadcast(room string, env event.Envelope) {
	h.broadcast(room, env, nil)
}

// BroadcastExcept behaves like Broadcast but skips connections owned by
// exceptUserID (typing relays never echo to the typist).
func (h *Hub) BroadcastExcept(room string, exceptUserID int64, env event.Envelope) {
	h.broadcast(room, env, func(c *Conn) bool { return c.UserID == exceptUserID })
}

// SendUser addresses every connection of one user via the personal room.
func (h *Hub) SendUser(userID int64, env event.Envelope) {
	h.Broadcast(event.PersonalRoom(userID), env)
}

func (h *Hub) broadcast(room string, env event.Envelope, skip func(*Conn) bool) {
	b, err := json.Marshal(env)
	if err != nil {
		h.opts.Logger.Error("marshal envelope", zap.String("event", env.Event), zap.Error(err))
		return
	}

	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[room]))
	for c := range h.rooms[room] {
		if skip != nil && skip(c) {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	metrics.FanoutEvents.Inc()
	for _, c := range conns {
		c.enqueue(b, h.opts.Logger, env.Event)
	}
}

// Online reports whether the user has at least one live connection.
func (h *Hub) Online(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// InRoom reports whether any of the user's connections joined the room.
// The push pipeline uses it to skip users actively viewing a chat.
func (h *Hub) InRoom(userID int64, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		if _, ok := c.roomN[room]; ok {
			return true
		}
	}
	return false
}

// Send writes one envelope to this connection only (catch-up batches).
func (c *Conn) Send(env event.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	c.enqueue(b, c.hub.opts.Logger, env.Event)
}

func (c *Conn) enqueue(b []byte, log *zap.Logger, ev string) {
	defer func() {
		// Losing the race with Unregister closing out is tolerable; the
		// connection is gone either way.
		if recover() != nil {
			metrics.FanoutDropped.Inc()
		}
	}()
	select {
	case c.out <- b:
	default:
		metrics.FanoutDropped.Inc()
		log.Warn("send queue full, dropping event",
			zap.Int64("user_id", c.UserID), zap.String("event", ev))
	}
}

func (c *Conn) writeLoop(timeout time.Duration) {
	for b := range c.out {
		_ = c.sock.SetWriteDeadline(time.Now().Add(timeout))
		if err := c.sock.WriteMessage(websocket.TextMessage, b); err != nil {
			break
		}
	}
	_ = c.sock.Close()
}
