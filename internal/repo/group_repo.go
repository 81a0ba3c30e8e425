package repo

import (
	"context"
	"database/sql"

	"github.com/negi-jagdish/village-im/internal/model"
)

type GroupRepo struct {
	db *sql.DB
}

func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{db: db} }

func (r *GroupRepo) Insert(ctx context.Context, g *model.Group) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO im_group (group_id, name, kind, icon, description)
VALUES (?, ?, ?, ?, ?)
`, g.GroupID, g.Name, g.Kind, g.Icon, g.Description)
	return err
}

func (r *GroupRepo) Get(ctx context.Context, groupID int64) (*model.Group, error) {
	var g model.Group
	err := r.db.QueryRowContext(ctx, `
SELECT group_id, name, kind, icon, description FROM im_group WHERE group_id = ?
`, groupID).Scan(&g.GroupID, &g.Name, &g.Kind, &g.Icon, &g.Description)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// FindPrivatePair looks up an existing two-member private group for the
// given pair so a duplicate DM chat is never created.
func (r *GroupRepo) FindPrivatePair(ctx context.Context, a, b int64) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
SELECT g.group_id
FROM im_group g
JOIN im_group_member ma ON ma.group_id = g.group_id AND ma.user_id = ?
JOIN im_group_member mb ON mb.group_id = g.group_id AND mb.user_id = ?
WHERE g.kind = 'private'
LIMIT 1
`, a, b).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ListBroadcastIDs returns every broadcast-kind group. Broadcast groups
// are visible to all members regardless of membership rows.
func (r *GroupRepo) ListBroadcastIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT group_id FROM im_group WHERE kind = 'broadcast'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *GroupRepo) AddMember(ctx context.Context, groupID, userID int64, role string) error {
	if role == "" {
		role = model.RoleMember
	}
	_, err := r.db.ExecContext(ctx, `
INSERT IGNORE INTO im_group_member (group_id, user_id, role, joined_at)
VALUES (?, ?, ?, NOW(3))
`, groupID, userID, role)
	return err
}

func (r *GroupRepo) RemoveMember(ctx context.Context, groupID, userID int64) error {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM im_group_member WHERE group_id = ? AND user_id = ?
`, groupID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *GroupRepo) UpdateRole(ctx context.Context, groupID, userID int64, role string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE im_group_member SET role = ? WHERE group_id = ? AND user_id = ?
`, role, groupID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
SELECT 1 FROM im_group_member WHERE group_id = ? AND user_id = ? LIMIT 1
`, groupID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *GroupRepo) MemberRole(ctx context.Context, groupID, userID int64) (string, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `
SELECT role FROM im_group_member WHERE group_id = ? AND user_id = ?
`, groupID, userID).Scan(&role)
	if err != nil {
		return "", err
	}
	return role, nil
}

func (r *GroupRepo) ListMemberIDs(ctx context.Context, groupID int64, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 2000
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT user_id FROM im_group_member WHERE group_id = ? ORDER BY user_id ASC LIMIT ?
`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]int64, 0, 16)
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

// ListGroupIDsOf returns every group the user belongs to (catch-up scope,
// together with ListBroadcastIDs).
func (r *GroupRepo) ListGroupIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT group_id FROM im_group_member WHERE user_id = ? ORDER BY group_id ASC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// OtherPrivateMember resolves the peer of a two-member private group.
func (r *GroupRepo) OtherPrivateMember(ctx context.Context, groupID, viewerID int64) (int64, error) {
	var uid int64
	err := r.db.QueryRowContext(ctx, `
SELECT user_id FROM im_group_member WHERE group_id = ? AND user_id <> ? LIMIT 1
`, groupID, viewerID).Scan(&uid)
	if err != nil {
		return 0, err
	}
	return uid, nil
}
