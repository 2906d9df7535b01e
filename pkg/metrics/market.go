package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "marketsim"

// 下单结果 label
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders received, by side and result.",
		},
		[]string{"side", "result"},
	)

	TradesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_total",
		Help:      "Trades executed.",
	})

	TradedQuantityTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "traded_quantity_total",
		Help:      "Sum of executed trade quantities.",
	})

	DroppedQuantityTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_quantity_total",
		Help:      "Unfilled remainders discarded because resting them would break the minimum spread.",
	})

	SpreadPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "spread_percent",
		Help:      "Current (ask-bid)/ask*100; 0 when one side is empty.",
	})

	BookLevels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_levels",
			Help:      "Distinct price levels per side.",
		},
		[]string{"side"},
	)

	MailboxFullTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_mailbox_full_total",
		Help:      "Commands refused because the engine mailbox was full.",
	})

	EventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_events_dropped_total",
		Help:      "Engine events dropped because the event bus was full.",
	})

	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_rate_limited_total",
		Help:      "Commands refused by the admission rate limiter.",
	})

	HTTPRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_http_rate_limited_total",
			Help:      "Ops HTTP requests refused by the per-client limiter, by route.",
		},
		[]string{"route"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		OrdersTotal, TradesTotal, TradedQuantityTotal, DroppedQuantityTotal,
		SpreadPercent, BookLevels, MailboxFullTotal, EventsDroppedTotal, RateLimitedTotal,
		HTTPRateLimitedTotal,
	}
}

// Register 注册到指定 registry，测试里用独立 registry
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister 注册到默认 registry
func MustRegister() {
	prometheus.MustRegister(collectors()...)
}
