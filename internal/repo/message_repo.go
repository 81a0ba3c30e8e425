package repo

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/negi-jagdish/village-im/internal/model"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

const messageViewCols = `
m.msg_id, m.group_id, m.sender_id, m.kind, m.content, m.metadata,
m.reply_to, m.forwarded, m.deleted, m.created_at,
COALESCE(s.nickname, ''), COALESCE(s.avatar, ''),
p.content, COALESCE(ps.nickname, '')`

const messageViewJoins = `
LEFT JOIN im_member s ON s.user_id = m.sender_id
LEFT JOIN im_message p ON p.msg_id = m.reply_to
LEFT JOIN im_member ps ON ps.user_id = p.sender_id`

func scanMessageView(row interface{ Scan(...any) error }) (*model.MessageView, error) {
	var v model.MessageView
	err := row.Scan(
		&v.MsgID, &v.GroupID, &v.SenderID, &v.Kind, &v.Content, &v.Metadata,
		&v.ReplyTo, &v.Forwarded, &v.Deleted, &v.CreatedAt,
		&v.SenderName, &v.SenderAvatar,
		&v.ReplyContent, &v.ReplySender,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *MessageRepo) Insert(ctx context.Context, m *model.Message) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO im_message (msg_id, group_id, sender_id, kind, content, metadata, reply_to, forwarded, deleted, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, NOW(3))
`, m.MsgID, m.GroupID, m.SenderID, m.Kind, m.Content, m.Metadata, m.ReplyTo, m.Forwarded)
	return err
}

func (r *MessageRepo) Get(ctx context.Context, msgID int64) (*model.Message, error) {
	var m model.Message
	err := r.db.QueryRowContext(ctx, `
SELECT msg_id, group_id, sender_id, kind, content, metadata, reply_to, forwarded, deleted, created_at
FROM im_message WHERE msg_id = ?
`, msgID).Scan(&m.MsgID, &m.GroupID, &m.SenderID, &m.Kind, &m.Content, &m.Metadata,
		&m.ReplyTo, &m.Forwarded, &m.Deleted, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetView re-reads a message joined with sender display data and, for
// replies, the parent's content and sender for the preview.
func (r *MessageRepo) GetView(ctx context.Context, msgID int64) (*model.MessageView, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+messageViewCols+`
FROM im_message m`+messageViewJoins+`
WHERE m.msg_id = ?
`, msgID)
	return scanMessageView(row)
}

// ListWindow returns every message in the given groups created after
// since, chronological ascending. It feeds the catch-up sync batch.
func (r *MessageRepo) ListWindow(ctx context.Context, groupIDs []int64, since time.Time) ([]model.MessageView, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(groupIDs)+1)
	for _, id := range groupIDs {
		args = append(args, id)
	}
	args = append(args, since)

	rows, err := r.db.QueryContext(ctx, `
SELECT `+messageViewCols+`
FROM im_message m`+messageViewJoins+`
WHERE m.group_id IN (`+placeholders(len(groupIDs))+`) AND m.created_at > ?
ORDER BY m.created_at ASC
`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageView
	for rows.Next() {
		v, err := scanMessageView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// ListByGroup returns up to limit messages for one group ordered newest
// first (history pagination for the REST layer).
func (r *MessageRepo) ListByGroup(ctx context.Context, groupID int64, before time.Time, limit int) ([]model.MessageView, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+messageViewCols+`
FROM im_message m`+messageViewJoins+`
WHERE m.group_id = ? AND m.created_at < ?
ORDER BY m.created_at DESC
LIMIT ?
`, groupID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MessageView
	for rows.Next() {
		v, err := scanMessageView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// SoftDelete rewrites the message to a system placeholder. The row stays
// until the retention sweep removes it.
func (r *MessageRepo) SoftDelete(ctx context.Context, msgID int64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE im_message SET deleted = 1, kind = ?, content = ?
WHERE msg_id = ? AND deleted = 0
`, model.KindSystem, model.DeletedPlaceholder, msgID)
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

// PurgeOlderThan removes messages past the retention horizon. Receipts
// and reactions go with them through the FK cascade.
func (r *MessageRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM im_message WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
