package chat

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/negi-jagdish/village-im/internal/errs"
	"github.com/negi-jagdish/village-im/internal/model"
)

// CreateGroupRequest covers both explicit group creation and the first
// DM between two users.
type CreateGroupRequest struct {
	CreatorID   int64
	Name        string
	Kind        string
	Icon        string
	Description string
	MemberIDs   []int64 // excluding the creator
}

// CreateGroup creates a group and seeds its membership. For private
// kind it first looks up an existing pair chat so a duplicate DM is
// never created.
func (s *Service) CreateGroup(ctx context.Context, req CreateGroupRequest) (*model.Group, error) {
	if req.Kind == "" {
		req.Kind = model.GroupKindGroup
	}

	if req.Kind == model.GroupKindPrivate {
		if len(req.MemberIDs) != 1 {
			return nil, errs.ErrInvalid.WrapMsg("private chat needs exactly one peer")
		}
		if id, found, err := s.opts.Groups.FindPrivatePair(ctx, req.CreatorID, req.MemberIDs[0]); err != nil {
			return nil, errs.ErrTransient.Wrap(err)
		} else if found {
			return s.GetGroup(ctx, id)
		}
	}

	gid, err := s.opts.IDs.NextID()
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	g := &model.Group{
		GroupID:     int64(gid),
		Name:        req.Name,
		Kind:        req.Kind,
		Icon:        req.Icon,
		Description: req.Description,
	}
	if err := s.opts.Groups.Insert(ctx, g); err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}

	creatorRole := model.RoleAdmin
	if req.Kind == model.GroupKindPrivate {
		creatorRole = model.RoleMember
	}
	if err := s.opts.Groups.AddMember(ctx, g.GroupID, req.CreatorID, creatorRole); err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	for _, uid := range req.MemberIDs {
		if err := s.opts.Groups.AddMember(ctx, g.GroupID, uid, model.RoleMember); err != nil {
			return nil, errs.ErrTransient.Wrap(err)
		}
	}

	// Private chats start silent; groups open with an audit line.
	if req.Kind != model.GroupKindPrivate {
		s.sendSystem(ctx, g.GroupID, s.nickname(ctx, req.CreatorID)+" created the group")
	}
	return g, nil
}

func (s *Service) GetGroup(ctx context.Context, groupID int64) (*model.Group, error) {
	g, err := s.opts.Groups.Get(ctx, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	return g, nil
}

// AddMember adds a user; any current member may invite. The change is
// audited as a system message in the transcript.
func (s *Service) AddMember(ctx context.Context, actorID, groupID, userID int64) error {
	if err := s.requireMember(ctx, groupID, actorID); err != nil {
		return err
	}
	if err := s.opts.Groups.AddMember(ctx, groupID, userID, model.RoleMember); err != nil {
		return errs.ErrTransient.Wrap(err)
	}
	s.sendSystem(ctx, groupID, s.nickname(ctx, actorID)+" added "+s.nickname(ctx, userID))
	return nil
}

// RemoveMember requires admin role. The mutation runs before the audit
// line: removing a user who was never a member must leave no trace in
// the transcript.
func (s *Service) RemoveMember(ctx context.Context, actorID, groupID, userID int64) error {
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	if err := s.opts.Groups.RemoveMember(ctx, groupID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotFound.WrapMsg("not a member")
		}
		return errs.ErrTransient.Wrap(err)
	}
	s.sendSystem(ctx, groupID, s.nickname(ctx, userID)+" was removed by "+s.nickname(ctx, actorID))
	return nil
}

// UpdateRole requires admin role.
func (s *Service) UpdateRole(ctx context.Context, actorID, groupID, userID int64, role string) error {
	if role != model.RoleAdmin && role != model.RoleMember {
		return errs.ErrInvalid.WrapMsg("unknown role " + role)
	}
	if err := s.requireAdmin(ctx, groupID, actorID); err != nil {
		return err
	}
	if err := s.opts.Groups.UpdateRole(ctx, groupID, userID, role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotFound.WrapMsg("not a member")
		}
		return errs.ErrTransient.Wrap(err)
	}
	s.sendSystem(ctx, groupID, s.nickname(ctx, userID)+" is now "+role)
	return nil
}

// Leave removes the caller themselves. Membership is mutated first so a
// caller who is not a member writes nothing into the transcript.
func (s *Service) Leave(ctx context.Context, userID, groupID int64) error {
	if err := s.opts.Groups.RemoveMember(ctx, groupID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.ErrNotMember
		}
		return errs.ErrTransient.Wrap(err)
	}
	s.sendSystem(ctx, groupID, s.nickname(ctx, userID)+" left the group")
	return nil
}

func (s *Service) requireMember(ctx context.Context, groupID, userID int64) error {
	ok, err := s.opts.Groups.IsMember(ctx, groupID, userID)
	if err != nil {
		return errs.ErrTransient.Wrap(err)
	}
	if !ok {
		return errs.ErrNotMember
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, groupID, userID int64) error {
	role, err := s.opts.Groups.MemberRole(ctx, groupID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotMember
	}
	if err != nil {
		return errs.ErrTransient.Wrap(err)
	}
	if role != model.RoleAdmin {
		return errs.ErrNotMember.WrapMsg("admin role required")
	}
	return nil
}

// sendSystem writes an audit message with a null sender and fans it out
// like any other message. Failures are logged; the triggering mutation
// already committed.
func (s *Service) sendSystem(ctx context.Context, groupID int64, content string) {
	m := &model.Message{
		GroupID: groupID,
		Kind:    model.KindSystem,
		Content: content,
	}
	wire, err := s.persistAndRead(ctx, m)
	if err != nil {
		s.opts.Logger.Warn("system message", zap.Int64("group_id", groupID), zap.Error(err))
		return
	}
	s.fanout(ctx, wire)
}

func (s *Service) nickname(ctx context.Context, userID int64) string {
	if p, err := s.opts.Members.Get(ctx, userID); err == nil && p.Nickname != "" {
		return p.Nickname
	}
	return "member"
}
