package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/negi-jagdish/village-im/internal/chat"
	"github.com/negi-jagdish/village-im/internal/errs"
)

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.ErrInvalid.WrapMsg("malformed request body")
	}
	return nil
}

type createMessageReq struct {
	GroupID   int64             `json:"groupId"`
	Kind      string            `json:"kind"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata"`
	ReplyTo   int64             `json:"replyTo"`
	Forwarded bool              `json:"forwarded"`
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageReq
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	msg, err := s.chat.SendMessage(r.Context(), chat.SendRequest{
		GroupID:   req.GroupID,
		SenderID:  callerID(r),
		Kind:      req.Kind,
		Content:   req.Content,
		Metadata:  req.Metadata,
		ReplyTo:   req.ReplyTo,
		Forwarded: req.Forwarded,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, msg)
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.DeleteMessage(r.Context(), callerID(r), pathID(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) toggleReaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	m, err := s.chat.ToggleReaction(r.Context(), pathID(r, "id"), callerID(r), req.Symbol)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, m)
}

func (s *Server) reactionDetails(w http.ResponseWriter, r *http.Request) {
	d, err := s.chat.GetReactionDetails(r.Context(), pathID(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, d)
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MessageIDs []int64 `json:"messageIds"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	ids, err := s.chat.MarkRead(r.Context(), req.MessageIDs, callerID(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"marked": ids})
}

type createGroupReq struct {
	Name        string  `json:"name"`
	Kind        string  `json:"kind"`
	Icon        string  `json:"icon"`
	Description string  `json:"description"`
	MemberIDs   []int64 `json:"memberIds"`
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupReq
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	g, err := s.chat.CreateGroup(r.Context(), chat.CreateGroupRequest{
		CreatorID:   callerID(r),
		Name:        req.Name,
		Kind:        req.Kind,
		Icon:        req.Icon,
		Description: req.Description,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, g)
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.chat.GetGroup(r.Context(), pathID(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, g)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	var before time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			before = time.UnixMilli(ms)
		}
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := s.chat.History(r.Context(), callerID(r), pathID(r, "id"), before, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, msgs)
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.chat.AddMember(r.Context(), callerID(r), pathID(r, "id"), req.UserID); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.RemoveMember(r.Context(), callerID(r), pathID(r, "id"), pathID(r, "uid")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := s.chat.UpdateRole(r.Context(), callerID(r), pathID(r, "id"), pathID(r, "uid"), req.Role); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) leaveGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Leave(r.Context(), callerID(r), pathID(r, "id")); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Token == "" {
		writeErr(w, errs.ErrInvalid.WrapMsg("token required"))
		return
	}
	if err := s.chat.RegisterDevice(r.Context(), callerID(r), req.Token); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) lastSeen(w http.ResponseWriter, r *http.Request) {
	at, ok, err := s.presence.LastSeen(r.Context(), pathID(r, "uid"))
	if err != nil {
		writeErr(w, errs.ErrTransient.Wrap(err))
		return
	}
	data := map[string]any{"known": ok}
	if ok {
		data["lastSeen"] = at.UnixMilli()
	}
	writeOK(w, data)
}
