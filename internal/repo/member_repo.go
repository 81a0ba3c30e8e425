package repo

import (
	"context"
	"database/sql"

	"github.com/negi-jagdish/village-im/internal/model"
)

// MemberRepo reads the member-directory projection. The directory itself
// is managed by the wider committee platform; this side only looks up
// display data.
type MemberRepo struct {
	db *sql.DB
}

func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

func (r *MemberRepo) Get(ctx context.Context, userID int64) (*model.Profile, error) {
	var p model.Profile
	err := r.db.QueryRowContext(ctx, `
SELECT user_id, nickname, avatar FROM im_member WHERE user_id = ?
`, userID).Scan(&p.UserID, &p.Nickname, &p.Avatar)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *MemberRepo) List(ctx context.Context, userIDs []int64) ([]model.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(userIDs))
	for _, id := range userIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT user_id, nickname, avatar FROM im_member
WHERE user_id IN (`+placeholders(len(userIDs))+`)
`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Profile, 0, len(userIDs))
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.UserID, &p.Nickname, &p.Avatar); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
