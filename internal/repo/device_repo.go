package repo

import (
	"context"
	"database/sql"
)

// DeviceRepo keeps one push token per user (latest device wins).
type DeviceRepo struct {
	db *sql.DB
}

func NewDeviceRepo(db *sql.DB) *DeviceRepo { return &DeviceRepo{db: db} }

func (r *DeviceRepo) Upsert(ctx context.Context, userID int64, token string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO im_device_token (user_id, token) VALUES (?, ?)
ON DUPLICATE KEY UPDATE token = VALUES(token)
`, userID, token)
	return err
}

// TokensFor returns tokens for the given users; users without a token
// are simply absent from the result.
func (r *DeviceRepo) TokensFor(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(userIDs))
	for _, id := range userIDs {
		args = append(args, id)
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT user_id, token FROM im_device_token
WHERE user_id IN (`+placeholders(len(userIDs))+`)
`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]string, len(userIDs))
	for rows.Next() {
		var uid int64
		var tok string
		if err := rows.Scan(&uid, &tok); err != nil {
			return nil, err
		}
		out[uid] = tok
	}
	return out, rows.Err()
}
