package chat

import (
	"context"

	"github.com/negi-jagdish/village-im/internal/errs"
	"github.com/negi-jagdish/village-im/pkg/event"
)

// CatchUp returns every message in the retention window across the
// user's groups plus all broadcast groups, chronological ascending. The
// gateway sends it as one sync_messages batch to the new connection only.
func (s *Service) CatchUp(ctx context.Context, userID int64) ([]event.Message, error) {
	groupIDs, err := s.opts.Groups.ListGroupIDsOf(ctx, userID)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}
	broadcastIDs, err := s.opts.Groups.ListBroadcastIDs(ctx)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}

	seen := make(map[int64]struct{}, len(groupIDs)+len(broadcastIDs))
	all := make([]int64, 0, len(groupIDs)+len(broadcastIDs))
	for _, id := range append(groupIDs, broadcastIDs...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		all = append(all, id)
	}
	if len(all) == 0 {
		return nil, nil
	}

	since := s.now().Add(-s.opts.Horizon)
	views, err := s.opts.Messages.ListWindow(ctx, all, since)
	if err != nil {
		return nil, errs.ErrTransient.Wrap(err)
	}

	out := make([]event.Message, 0, len(views))
	for i := range views {
		out = append(out, *toWire(&views[i]))
	}
	return out, nil
}
