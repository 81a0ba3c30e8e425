package chat

import (
	"context"
	"database/sql"
	"errors"

	"github.com/negi-jagdish/village-im/internal/errs"
	"github.com/negi-jagdish/village-im/internal/model"
	"github.com/negi-jagdish/village-im/pkg/event"
)

// ToggleReaction flips one user's reaction on a message and broadcasts
// the resulting aggregate to the message's room. The storage layer
// guarantees at most one symbol per user per message.
func (s *Service) ToggleReaction(ctx context.Context, msgID, userID int64, symbol string) (model.ReactionMap, error) {
	m, err := s.opts.Messages.Get(ctx, msgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}

	ok, err := s.opts.Groups.IsMember(ctx, m.GroupID, userID)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	if !ok {
		return nil, errs.ErrNotMember
	}

	reactions, err := s.opts.Reactions.Toggle(ctx, msgID, userID, symbol)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}

	s.opts.Hub.Broadcast(event.GroupRoom(m.GroupID), event.Envelope{
		Event: event.Reaction,
		Data:  event.ReactionUpdate{MsgID: msgID, Reactions: reactions},
	})
	return reactions, nil
}

// SymbolDetail is one symbol's reactors, resolved to display profiles.
type SymbolDetail struct {
	Symbol string          `json:"symbol"`
	Users  []model.Profile `json:"users"`
}

// ReactionDetails is the per-symbol breakdown plus the flat list backing
// an "All" tab.
type ReactionDetails struct {
	Symbols []SymbolDetail  `json:"symbols"`
	All     []model.Profile `json:"all"`
}

// GetReactionDetails resolves reactor ids to member profiles.
func (s *Service) GetReactionDetails(ctx context.Context, msgID int64) (*ReactionDetails, error) {
	rows, err := s.opts.Reactions.ListRows(ctx, msgID)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	if len(rows) == 0 {
		return &ReactionDetails{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.UserID)
	}
	profiles, err := s.opts.Members.List(ctx, ids)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	byID := make(map[int64]model.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.UserID] = p
	}
	profileOf := func(uid int64) model.Profile {
		if p, ok := byID[uid]; ok {
			return p
		}
		return model.Profile{UserID: uid}
	}

	// Preserve first-seen symbol order and row order within a symbol.
	var details ReactionDetails
	index := make(map[string]int)
	for _, r := range rows {
		i, ok := index[r.Symbol]
		if !ok {
			i = len(details.Symbols)
			index[r.Symbol] = i
			details.Symbols = append(details.Symbols, SymbolDetail{Symbol: r.Symbol})
		}
		p := profileOf(r.UserID)
		details.Symbols[i].Users = append(details.Symbols[i].Users, p)
		details.All = append(details.All, p)
	}
	return &details, nil
}
