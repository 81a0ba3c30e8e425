package repo

import (
	"context"
	"database/sql"
)

// ReceiptRepo writes the two insert-only receipt tables. Rows are never
// updated, so INSERT IGNORE makes every ack idempotent and the
// absent -> delivered -> read progression monotonic by construction.
type ReceiptRepo struct {
	db *sql.DB
}

func NewReceiptRepo(db *sql.DB) *ReceiptRepo { return &ReceiptRepo{db: db} }

// MarkDelivered inserts delivery receipts for the given messages and
// returns only the ids that were actually new, so callers can skip
// notifying senders about re-acknowledged messages.
func (r *ReceiptRepo) MarkDelivered(ctx context.Context, msgIDs []int64, userID int64) ([]int64, error) {
	return r.mark(ctx, "im_receipt_delivery", msgIDs, userID)
}

// MarkRead behaves like MarkDelivered for the read table.
func (r *ReceiptRepo) MarkRead(ctx context.Context, msgIDs []int64, userID int64) ([]int64, error) {
	return r.mark(ctx, "im_receipt_read", msgIDs, userID)
}

func (r *ReceiptRepo) mark(ctx context.Context, table string, msgIDs []int64, userID int64) ([]int64, error) {
	if len(msgIDs) == 0 {
		return nil, nil
	}
	inserted := make([]int64, 0, len(msgIDs))
	for _, id := range msgIDs {
		res, err := r.db.ExecContext(ctx,
			`INSERT IGNORE INTO `+table+` (msg_id, user_id, at) VALUES (?, ?, NOW(3))`,
			id, userID)
		if err != nil {
			return inserted, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		if n > 0 {
			inserted = append(inserted, id)
		}
	}
	return inserted, nil
}

// HasDelivered reports whether a delivery receipt exists for the pair.
func (r *ReceiptRepo) HasDelivered(ctx context.Context, msgID, userID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
SELECT 1 FROM im_receipt_delivery WHERE msg_id = ? AND user_id = ? LIMIT 1
`, msgID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountOrphans reports receipts whose message no longer exists. With the
// FK cascade in place this should always be zero; the sweep asserts it.
func (r *ReceiptRepo) CountOrphans(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `
SELECT
  (SELECT COUNT(*) FROM im_receipt_delivery d
     LEFT JOIN im_message m ON m.msg_id = d.msg_id WHERE m.msg_id IS NULL)
+ (SELECT COUNT(*) FROM im_receipt_read rr
     LEFT JOIN im_message m ON m.msg_id = rr.msg_id WHERE m.msg_id IS NULL)
`).Scan(&n)
	return n, err
}
