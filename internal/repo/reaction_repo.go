package repo

import (
	"context"
	"database/sql"

	"github.com/negi-jagdish/village-im/internal/model"
)

// ReactionRepo stores reactions as (msg_id, user_id, symbol) rows with
// UNIQUE(msg_id, user_id). The single-reaction-per-user rule therefore
// holds at the storage layer; concurrent toggles serialize on the row
// lock instead of racing a whole-document rewrite.
type ReactionRepo struct {
	db *sql.DB
}

func NewReactionRepo(db *sql.DB) *ReactionRepo { return &ReactionRepo{db: db} }

// Toggle applies one toggle and returns the resulting aggregated map:
//   - no row for the user        -> insert (turn on)
//   - row with the same symbol   -> delete (withdraw)
//   - row with another symbol    -> overwrite (switch symbols)
func (r *ReactionRepo) Toggle(ctx context.Context, msgID, userID int64, symbol string) (model.ReactionMap, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `
SELECT symbol FROM im_reaction WHERE msg_id = ? AND user_id = ? FOR UPDATE
`, msgID, userID).Scan(&current)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `
INSERT INTO im_reaction (msg_id, user_id, symbol, created_at) VALUES (?, ?, ?, NOW(3))
`, msgID, userID, symbol)
	case err != nil:
		return nil, err
	case current == symbol:
		_, err = tx.ExecContext(ctx, `
DELETE FROM im_reaction WHERE msg_id = ? AND user_id = ?
`, msgID, userID)
	default:
		_, err = tx.ExecContext(ctx, `
UPDATE im_reaction SET symbol = ?, created_at = NOW(3) WHERE msg_id = ? AND user_id = ?
`, symbol, msgID, userID)
	}
	if err != nil {
		return nil, err
	}

	rows, err := listRowsTx(ctx, tx, msgID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return model.BuildReactionMap(rows), nil
}

// ListRows returns the raw rows for one message ordered by creation.
func (r *ReactionRepo) ListRows(ctx context.Context, msgID int64) ([]model.ReactionRow, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT msg_id, user_id, symbol, created_at
FROM im_reaction WHERE msg_id = ? ORDER BY created_at ASC
`, msgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReactionRows(rows)
}

func listRowsTx(ctx context.Context, tx *sql.Tx, msgID int64) ([]model.ReactionRow, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT msg_id, user_id, symbol, created_at
FROM im_reaction WHERE msg_id = ? ORDER BY created_at ASC
`, msgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReactionRows(rows)
}

func scanReactionRows(rows *sql.Rows) ([]model.ReactionRow, error) {
	var out []model.ReactionRow
	for rows.Next() {
		var rr model.ReactionRow
		if err := rows.Scan(&rr.MsgID, &rr.UserID, &rr.Symbol, &rr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}
