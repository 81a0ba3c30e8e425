// Package api exposes the REST surface: message create/delete,
// reactions, groups and membership, read acks, device tokens, history.
// Everything except /healthz sits behind bearer-token auth.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/negi-jagdish/village-im/internal/chat"
	"github.com/negi-jagdish/village-im/internal/errs"
	"github.com/negi-jagdish/village-im/internal/model"
	"github.com/negi-jagdish/village-im/pkg/event"
)

type service interface {
	SendMessage(ctx context.Context, req chat.SendRequest) (*event.Message, error)
	DeleteMessage(ctx context.Context, actorID, msgID int64) error
	ToggleReaction(ctx context.Context, msgID, userID int64, symbol string) (model.ReactionMap, error)
	GetReactionDetails(ctx context.Context, msgID int64) (*chat.ReactionDetails, error)
	CreateGroup(ctx context.Context, req chat.CreateGroupRequest) (*model.Group, error)
	GetGroup(ctx context.Context, groupID int64) (*model.Group, error)
	History(ctx context.Context, userID, groupID int64, before time.Time, limit int) ([]event.Message, error)
	AddMember(ctx context.Context, actorID, groupID, userID int64) error
	RemoveMember(ctx context.Context, actorID, groupID, userID int64) error
	UpdateRole(ctx context.Context, actorID, groupID, userID int64, role string) error
	Leave(ctx context.Context, userID, groupID int64) error
	MarkRead(ctx context.Context, msgIDs []int64, recipientID int64) ([]int64, error)
	RegisterDevice(ctx context.Context, userID int64, token string) error
}

type verifier interface {
	FromRequest(r *http.Request) string
	Verify(ctx context.Context, token string) (int64, error)
}

type presenceReader interface {
	LastSeen(ctx context.Context, userID int64) (time.Time, bool, error)
}

type Server struct {
	chat     service
	auth     verifier
	presence presenceReader
	log      *zap.Logger
}

func New(chat service, auth verifier, presence presenceReader, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{chat: chat, auth: auth, presence: presence, log: log}
}

// Router builds the full handler chain including CORS.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/messages", s.createMessage).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id:[0-9]+}", s.deleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/messages/{id:[0-9]+}/reactions", s.toggleReaction).Methods(http.MethodPost)
	api.HandleFunc("/messages/{id:[0-9]+}/reactions", s.reactionDetails).Methods(http.MethodGet)
	api.HandleFunc("/messages/read", s.markRead).Methods(http.MethodPost)

	api.HandleFunc("/groups", s.createGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id:[0-9]+}", s.getGroup).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id:[0-9]+}/messages", s.history).Methods(http.MethodGet)
	api.HandleFunc("/groups/{id:[0-9]+}/members", s.addMember).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id:[0-9]+}/members/{uid:[0-9]+}", s.removeMember).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id:[0-9]+}/members/{uid:[0-9]+}/role", s.updateRole).Methods(http.MethodPut)
	api.HandleFunc("/groups/{id:[0-9]+}/leave", s.leaveGroup).Methods(http.MethodPost)

	api.HandleFunc("/device", s.registerDevice).Methods(http.MethodPut)
	api.HandleFunc("/members/{uid:[0-9]+}/last-seen", s.lastSeen).Methods(http.MethodGet)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}).Handler(r)
}

type ctxKey int

const userKey ctxKey = 0

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.Verify(r.Context(), s.auth.FromRequest(r))
		if err != nil {
			writeErr(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userID)))
	})
}

func callerID(r *http.Request) int64 {
	uid, _ := r.Context().Value(userKey).(int64)
	return uid
}

// response is the uniform JSON frame: code 0 means success.
type response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func writeOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response{Code: 0, Msg: "ok", Data: data})
}

func writeErr(w http.ResponseWriter, err error) {
	code := errs.GetCode(err)
	status := http.StatusInternalServerError
	switch code {
	case errs.CodeAuth:
		status = http.StatusUnauthorized
	case errs.CodeNotMember:
		status = http.StatusForbidden
	case errs.CodeNotFound:
		status = http.StatusNotFound
	case errs.CodeInvalid:
		status = http.StatusBadRequest
	}
	msg := "temporary failure"
	var ce *errs.Error
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{Code: code, Msg: msg})
}
