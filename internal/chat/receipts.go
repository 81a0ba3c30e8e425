package chat

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/negi-jagdish/village-im/internal/errs"
	"github.com/negi-jagdish/village-im/internal/metrics"
	"github.com/negi-jagdish/village-im/pkg/event"
)

// MarkDelivered records delivery receipts and notifies each affected
// sender with one batched status event. Already-acknowledged ids are
// silently skipped, so replays after reconnect cost nothing.
func (s *Service) MarkDelivered(ctx context.Context, msgIDs []int64, recipientID int64) error {
	inserted, err := s.opts.Receipts.MarkDelivered(ctx, msgIDs, recipientID)
	if err != nil {
		return errs.ErrTransient.Wrap(err)
	}
	if len(inserted) == 0 {
		return nil
	}
	metrics.ReceiptsDelivered.Add(float64(len(inserted)))

	// Batch per sender: acknowledging 50 messages from 2 senders costs 2
	// status events, not 50.
	bySender := make(map[int64][]event.StatusDetail)
	for _, id := range inserted {
		m, err := s.opts.Messages.Get(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			continue // purged between insert and read
		}
		if err != nil {
			s.opts.Logger.Warn("receipt: load message", zap.Int64("msg_id", id), zap.Error(err))
			continue
		}
		if !m.SenderID.Valid || m.SenderID.Int64 == recipientID {
			continue
		}
		bySender[m.SenderID.Int64] = append(bySender[m.SenderID.Int64],
			event.StatusDetail{MsgID: id, DeliveredTo: recipientID})
	}

	for senderID, details := range bySender {
		s.opts.Hub.SendUser(senderID, event.Envelope{
			Event: event.StatusUpdate,
			Data:  event.Status{Status: event.StatusDelivered, Details: details},
		})
	}
	return nil
}

// MarkRead records read receipts and returns the ids actually marked so
// the caller can avoid redundant re-marking. Read implies delivered: a
// REST read ack can land for a message the live channel never
// acknowledged, so the delivery receipt is backfilled first and a pair
// can never be read-but-undelivered. Read state itself stays server-side
// display data; no status event is pushed for it.
func (s *Service) MarkRead(ctx context.Context, msgIDs []int64, recipientID int64) ([]int64, error) {
	if err := s.MarkDelivered(ctx, msgIDs, recipientID); err != nil {
		return nil, err
	}
	inserted, err := s.opts.Receipts.MarkRead(ctx, msgIDs, recipientID)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	metrics.ReceiptsRead.Add(float64(len(inserted)))
	return inserted, nil
}
