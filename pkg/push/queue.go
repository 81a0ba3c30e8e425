package push

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/negi-jagdish/village-im/internal/metrics"
)

// dedup is the slice of *redis.Client the queue needs.
type dedup interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

const dedupTTL = 24 * time.Hour

type Options struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	Logger      *zap.Logger
}

// Queue fans notifications through a fixed worker pool. Enqueue never
// blocks; a full queue drops the push (the in-app sync still delivers
// the message).
type Queue struct {
	provider Provider
	rdb      dedup
	opts     Options

	jobs chan Notification
	wg   sync.WaitGroup
}

func NewQueue(provider Provider, rdb dedup, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 8
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 4096
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	q := &Queue{
		provider: provider,
		rdb:      rdb,
		opts:     opts,
		jobs:     make(chan Notification, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	return q
}

// Enqueue submits one notification; false means the queue was full.
func (q *Queue) Enqueue(n Notification) bool {
	select {
	case q.jobs <- n:
		return true
	default:
		q.opts.Logger.Warn("push queue full, dropping",
			zap.Int64("user_id", n.UserID), zap.Int64("msg_id", n.MsgID))
		metrics.PushFail.Inc()
		return false
	}
}

// Close drains the queue and stops the workers.
func (q *Queue) Close() {
	close(q.jobs)
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for n := range q.jobs {
		q.deliver(n)
	}
}

func (q *Queue) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), q.opts.SendTimeout)
	defer cancel()

	// One push per (user, message), whatever path triggered it.
	key := "push:sent:" + strconv.FormatInt(n.UserID, 10) + ":" + strconv.FormatInt(n.MsgID, 10)
	fresh, err := q.rdb.SetNX(ctx, key, 1, dedupTTL).Result()
	if err != nil {
		// Redis down: send anyway, a duplicate beats a silent drop.
		q.opts.Logger.Warn("push dedup check failed", zap.Error(err))
	} else if !fresh {
		metrics.PushDeduped.Inc()
		return
	}

	if err := q.provider.Send(ctx, n); err != nil {
		metrics.PushFail.Inc()
		q.opts.Logger.Warn("push send failed",
			zap.Int64("user_id", n.UserID), zap.Int64("msg_id", n.MsgID), zap.Error(err))
		return
	}
	metrics.PushOK.Inc()
}
