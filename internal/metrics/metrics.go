package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "im_server_online_conns",
		Help: "Current online websocket connections (approx).",
	})

	MessagesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_messages_ingested_total",
		Help: "Total messages persisted by the ingestion path.",
	})
	FanoutEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_fanout_events_total",
		Help: "Total events broadcast to rooms or personal rooms.",
	})
	FanoutDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_fanout_dropped_total",
		Help: "Total events dropped because a connection's send queue was full.",
	})

	ReceiptsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_receipts_delivered_total",
		Help: "Total delivery receipts inserted (duplicates excluded).",
	})
	ReceiptsRead = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_receipts_read_total",
		Help: "Total read receipts inserted (duplicates excluded).",
	})

	PushOK = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_push_ok_total",
		Help: "Total push-provider notifications accepted.",
	})
	PushFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_push_fail_total",
		Help: "Total push-provider notifications that failed (logged, not retried).",
	})
	PushDeduped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_push_deduped_total",
		Help: "Total push notifications suppressed by the idempotency key.",
	})

	SweepPurged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_sweep_purged_total",
		Help: "Total messages removed by the retention sweep.",
	})
	SweepRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "im_server_sweep_runs_total",
		Help: "Total retention sweep runs (including failed ones).",
	})
)

func Register() {
	prometheus.MustRegister(
		OnlineConns,
		MessagesIngested, FanoutEvents, FanoutDropped,
		ReceiptsDelivered, ReceiptsRead,
		PushOK, PushFail, PushDeduped,
		SweepPurged, SweepRuns,
	)
}
